// Package tracker implements C7: per-flow connection records, a
// single-producer/multi-consumer event bus, and kill-signal plumbing for
// wrapper streams (C8).
package tracker

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/model"
	"relay/internal/tracing"
)

// Record is one flow's live state: atomic byte counters plus a kill-signal
// channel wrapper streams observe before every I/O operation.
type Record struct {
	UUID      string
	Ctx       model.InboundContext
	StartedAt time.Time

	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	killOnce sync.Once
	kill     chan struct{}
}

func newRecord(uuid string, ctx model.InboundContext) *Record {
	return &Record{UUID: uuid, Ctx: ctx, StartedAt: time.Now(), kill: make(chan struct{})}
}

// Killed reports whether this record's kill-signal has fired, the check
// every wrapper stream makes before delegating an I/O operation (§4.8).
func (r *Record) Killed() bool {
	select {
	case <-r.kill:
		return true
	default:
		return false
	}
}

// Kill fires the kill-signal; idempotent.
func (r *Record) Kill() { r.killOnce.Do(func() { close(r.kill) }) }

// AddIn/AddOut bump this record's byte counters; called by wrapper streams
// (C8) after a successful read/write.
func (r *Record) AddIn(n int)  { r.bytesIn.Add(int64(n)) }
func (r *Record) AddOut(n int) { r.bytesOut.Add(int64(n)) }

// Snapshot is a point-in-time, JSON-serializable view of one record.
type Snapshot struct {
	UUID      string              `json:"uuid"`
	Ctx       model.InboundContext `json:"ctx"`
	StartedAt time.Time           `json:"started_at"`
	BytesIn   int64               `json:"bytes_in"`
	BytesOut  int64               `json:"bytes_out"`
}

func (r *Record) snapshot() Snapshot {
	return Snapshot{
		UUID:      r.UUID,
		Ctx:       r.Ctx,
		StartedAt: r.StartedAt,
		BytesIn:   r.bytesIn.Load(),
		BytesOut:  r.bytesOut.Load(),
	}
}

// FullSnapshot is the complete tracker state at one instant: total bytes
// across all surviving connections plus the per-connection list.
type FullSnapshot struct {
	TotalBytesIn  int64      `json:"total_bytes_in"`
	TotalBytesOut int64      `json:"total_bytes_out"`
	Connections   []Snapshot `json:"connections"`
}

// FilteredSnapshot omits per-connection detail, exposing only aggregate
// totals and count (the control plane's without_connections view).
type FilteredSnapshot struct {
	TotalBytesIn  int64 `json:"total_bytes_in"`
	TotalBytesOut int64 `json:"total_bytes_out"`
	Count         int   `json:"count"`
}

// Event is one published stream event, mirroring model.EventKind.
type Event = model.Event

// Tracker owns the connection map, the kill-signal bus, and the connection
// event bus consumed by the control plane's WS streams.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

func New() *Tracker {
	return &Tracker{records: map[string]*Record{}, subs: map[chan Event]struct{}{}}
}

// Start assigns a fresh UUID to a new flow and registers its record.
func (t *Tracker) Start(ctx model.InboundContext) *Record {
	uuid := tracing.NewConnectionID()
	rec := newRecord(uuid, ctx)

	t.mu.Lock()
	t.records[uuid] = rec
	t.mu.Unlock()

	t.publish(Event{Kind: model.EventNewTCP, UUID: uuid, Addr: ctx.Target, Ctx: marshalCtx(ctx)})
	return rec
}

// StartUDP is Start's UDP-flow counterpart, publishing EventNewUDP instead.
func (t *Tracker) StartUDP(ctx model.InboundContext) *Record {
	uuid := tracing.NewConnectionID()
	rec := newRecord(uuid, ctx)

	t.mu.Lock()
	t.records[uuid] = rec
	t.mu.Unlock()

	t.publish(Event{Kind: model.EventNewUDP, UUID: uuid, Addr: ctx.Target, Ctx: marshalCtx(ctx)})
	return rec
}

// marshalCtx renders an InboundContext for an Event's Ctx field; marshal
// failure is unreachable for this struct's field types, so it degrades to
// nil rather than surfacing an error Start/StartUDP have no way to return.
func marshalCtx(ctx model.InboundContext) json.RawMessage {
	b, err := json.Marshal(ctx)
	if err != nil {
		return nil
	}
	return b
}

// Drop removes rec from the tracker and publishes its Close event; called
// once by a wrapper stream's idempotent Close.
func (t *Tracker) Drop(rec *Record) {
	t.mu.Lock()
	delete(t.records, rec.UUID)
	t.mu.Unlock()
	t.publish(Event{Kind: model.EventClose, UUID: rec.UUID})
}

// Publish broadcasts ev to every subscriber, dropping it for any subscriber
// whose channel is full rather than blocking the caller.
func (t *Tracker) Publish(ev Event) { t.publish(ev) }

func (t *Tracker) publish(ev Event) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// slow consumer: drop rather than block the producer (§4.12's
			// "lossy; slow consumers drop" applies to the log bus; the
			// connection event bus follows the same discipline so no
			// subscriber can stall I/O).
		}
	}
}

// Subscribe registers a new consumer channel; call Unsubscribe to stop
// receiving and release it.
func (t *Tracker) Subscribe() chan Event {
	ch := make(chan Event, 64)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()
	return ch
}

func (t *Tracker) Unsubscribe(ch chan Event) {
	t.subMu.Lock()
	delete(t.subs, ch)
	t.subMu.Unlock()
}

// Stop fires one connection's kill-signal. Returns false if uuid is
// unknown.
func (t *Tracker) Stop(uuid string) bool {
	t.mu.RLock()
	rec, ok := t.records[uuid]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	rec.Kill()
	return true
}

// StopAll fires every live connection's kill-signal, returning the count.
func (t *Tracker) StopAll() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, rec := range t.records {
		rec.Kill()
	}
	return len(t.records)
}

// Snapshot takes a consistent full snapshot under a single lock, per §5's
// "any two snapshots are mutually consistent in bytes per uuid".
func (t *Tracker) Snapshot() FullSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := FullSnapshot{Connections: make([]Snapshot, 0, len(t.records))}
	for _, rec := range t.records {
		s := rec.snapshot()
		out.Connections = append(out.Connections, s)
		out.TotalBytesIn += s.BytesIn
		out.TotalBytesOut += s.BytesOut
	}
	return out
}

// FilteredSnapshot is Snapshot without the per-connection detail.
func (t *Tracker) FilteredSnapshot() FilteredSnapshot {
	full := t.Snapshot()
	return FilteredSnapshot{TotalBytesIn: full.TotalBytesIn, TotalBytesOut: full.TotalBytesOut, Count: len(full.Connections)}
}
