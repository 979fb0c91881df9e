package tracker

import (
	"testing"

	"relay/internal/model"
)

func TestStartAssignsUUIDAndPublishesNewTCP(t *testing.T) {
	trk := New()
	sub := trk.Subscribe()
	defer trk.Unsubscribe(sub)

	rec := trk.Start(model.InboundContext{})
	if rec.UUID == "" {
		t.Fatalf("expected a non-empty uuid")
	}

	ev := <-sub
	if ev.Kind != model.EventNewTCP || ev.UUID != rec.UUID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestStopFiresKillSignalOnce(t *testing.T) {
	trk := New()
	rec := trk.Start(model.InboundContext{})

	if rec.Killed() {
		t.Fatalf("record should not start killed")
	}
	if !trk.Stop(rec.UUID) {
		t.Fatalf("expected stop to find the record")
	}
	if !rec.Killed() {
		t.Fatalf("expected record to be killed after stop")
	}
	// idempotent: killing twice must not panic
	rec.Kill()
}

func TestStopUnknownUUIDReturnsFalse(t *testing.T) {
	trk := New()
	if trk.Stop("nonexistent") {
		t.Fatalf("expected stop on unknown uuid to return false")
	}
}

func TestStopAllReturnsCount(t *testing.T) {
	trk := New()
	trk.Start(model.InboundContext{})
	trk.Start(model.InboundContext{})
	trk.Start(model.InboundContext{})

	if n := trk.StopAll(); n != 3 {
		t.Fatalf("expected stop_all to report 3, got %d", n)
	}
}

func TestSnapshotAggregatesBytes(t *testing.T) {
	trk := New()
	a := trk.Start(model.InboundContext{})
	b := trk.Start(model.InboundContext{})

	a.AddIn(10)
	a.AddOut(5)
	b.AddIn(20)

	snap := trk.Snapshot()
	if snap.TotalBytesIn != 30 || snap.TotalBytesOut != 5 {
		t.Fatalf("unexpected totals: %+v", snap)
	}
	if len(snap.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(snap.Connections))
	}
}

func TestDropRemovesRecordAndPublishesClose(t *testing.T) {
	trk := New()
	sub := trk.Subscribe()
	defer trk.Unsubscribe(sub)

	rec := trk.Start(model.InboundContext{})
	<-sub // drain the NewTcp event

	trk.Drop(rec)
	ev := <-sub
	if ev.Kind != model.EventClose || ev.UUID != rec.UUID {
		t.Fatalf("expected close event, got %+v", ev)
	}

	snap := trk.Snapshot()
	if len(snap.Connections) != 0 {
		t.Fatalf("expected record removed, got %+v", snap.Connections)
	}
}

func TestFilteredSnapshotOmitsConnectionDetail(t *testing.T) {
	trk := New()
	rec := trk.Start(model.InboundContext{})
	rec.AddIn(7)

	filtered := trk.FilteredSnapshot()
	if filtered.Count != 1 || filtered.TotalBytesIn != 7 {
		t.Fatalf("unexpected filtered snapshot: %+v", filtered)
	}
}
