package registry

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"relay/internal/model"
)

type stubNet struct{ name string }

func (s stubNet) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) { return nil, nil }
func (s stubNet) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	return nil, nil
}
func (s stubNet) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	return nil, nil
}
func (s stubNet) LookupHost(ctx context.Context, host string) ([]net.IP, error) { return nil, nil }

func leafFactory(name string) NetFactory {
	return func(opt json.RawMessage, get Getter) (model.Net, error) {
		return stubNet{name: name}, nil
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	if err := r.RegisterNet("leaf", "leaf", nil, nil, leafFactory("leaf")); err != nil {
		t.Fatalf("register leaf: %v", err)
	}
	if err := r.RegisterNet("select", "select", nil, []string{"list"}, func(opt json.RawMessage, get Getter) (model.Net, error) {
		var parsed struct {
			List []string `json:"list"`
		}
		if err := json.Unmarshal(opt, &parsed); err != nil {
			return nil, err
		}
		for _, id := range parsed.List {
			if _, err := get(id); err != nil {
				return nil, err
			}
		}
		return stubNet{name: "select"}, nil
	}); err != nil {
		t.Fatalf("register select: %v", err)
	}
	return r
}

func TestBuildAllResolvesDependencyOrder(t *testing.T) {
	r := newTestRegistry(t)
	descs := map[string]model.NetDescriptor{
		"a": {ID: "a", Type: "leaf"},
		"b": {ID: "b", Type: "select", Opt: json.RawMessage(`{"list":["a"]}`), ReferencedNets: []string{"a"}},
	}
	// A stable handle must exist for every id being built in this batch
	// before BuildAll runs, mirroring what C6's reconcile pre-creates; the
	// "select" factory above resolves its list eagerly at construction.
	handles := map[string]model.Net{"a": stubNet{name: "a"}, "b": stubNet{name: "b"}}
	built, err := r.BuildAll(context.Background(), descs, handles)
	if err != nil {
		t.Fatalf("build all: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("expected 2 built nets, got %d", len(built))
	}
}

func TestBuildAllDetectsCycle(t *testing.T) {
	r := newTestRegistry(t)
	descs := map[string]model.NetDescriptor{
		"a": {ID: "a", Type: "select", Opt: json.RawMessage(`{"list":["b"]}`), ReferencedNets: []string{"b"}},
		"b": {ID: "b", Type: "select", Opt: json.RawMessage(`{"list":["a"]}`), ReferencedNets: []string{"a"}},
	}
	_, err := r.BuildAll(context.Background(), descs, nil)
	if err == nil {
		t.Fatalf("expected cycle detection error")
	}
}

func TestBuildAllUnresolvedReferent(t *testing.T) {
	r := newTestRegistry(t)
	descs := map[string]model.NetDescriptor{
		"a": {ID: "a", Type: "select", Opt: json.RawMessage(`{"list":["missing"]}`), ReferencedNets: []string{"missing"}},
	}
	_, err := r.BuildAll(context.Background(), descs, nil)
	if err == nil {
		t.Fatalf("expected unresolved net error")
	}
}

func TestBuildAllUsesExistingForUntouchedReferences(t *testing.T) {
	r := newTestRegistry(t)
	existing := map[string]model.Net{"a": stubNet{name: "a"}}
	descs := map[string]model.NetDescriptor{
		"b": {ID: "b", Type: "select", Opt: json.RawMessage(`{"list":["a"]}`), ReferencedNets: []string{"a"}},
	}
	built, err := r.BuildAll(context.Background(), descs, existing)
	if err != nil {
		t.Fatalf("build all: %v", err)
	}
	if _, ok := built["a"]; ok {
		t.Fatalf("expected existing net a to not be rebuilt")
	}
	if _, ok := built["b"]; !ok {
		t.Fatalf("expected b to be built")
	}
}

func TestReferencedNetsWalksListField(t *testing.T) {
	r := newTestRegistry(t)
	refs, err := r.ReferencedNets("select", json.RawMessage(`{"list":["x","y"]}`))
	if err != nil {
		t.Fatalf("referenced nets: %v", err)
	}
	if len(refs) != 2 || refs[0] != "x" || refs[1] != "y" {
		t.Fatalf("unexpected refs: %v", refs)
	}
}
