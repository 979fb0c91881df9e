package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"

	"relay/internal/model"
	"relay/internal/registry"
	"relay/internal/tracker"
)

type stubNet struct{ tag string }

// TCPConnect reports its own tag as an error so tests can observe which
// concrete net a dispatch actually reached without a real net.Conn.
func (s stubNet) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	return nil, fmt.Errorf("stub:%s", s.tag)
}
func (s stubNet) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	return nil, nil
}
func (s stubNet) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	return nil, nil
}
func (s stubNet) LookupHost(ctx context.Context, host string) ([]net.IP, error) { return nil, nil }

// refNet holds a Getter rather than a resolved Net, so every dispatch
// re-resolves target through whatever handle the caller passed at
// construction, exactly like a selector or rule net.
type refNet struct {
	target string
	get    registry.Getter
}

func (r refNet) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	inner, err := r.get(r.target)
	if err != nil {
		return nil, err
	}
	return inner.TCPConnect(ctx, addr)
}
func (r refNet) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	return nil, nil
}
func (r refNet) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	return nil, nil
}
func (r refNet) LookupHost(ctx context.Context, host string) ([]net.IP, error) { return nil, nil }

type stubServerHandle struct{ stopped bool }

func (h *stubServerHandle) Stop(ctx context.Context) error {
	h.stopped = true
	return nil
}

func newTestRegistries(t *testing.T) (*registry.Registry, *registry.ServerRegistry) {
	t.Helper()
	netReg := registry.New()
	if err := netReg.RegisterNet("leaf", "leaf", nil, nil, func(opt json.RawMessage, get registry.Getter) (model.Net, error) {
		tag := "leaf"
		var parsed struct {
			Tag string `json:"tag"`
		}
		if len(opt) > 0 && json.Unmarshal(opt, &parsed) == nil && parsed.Tag != "" {
			tag = parsed.Tag
		}
		return stubNet{tag: tag}, nil
	}); err != nil {
		t.Fatalf("register leaf: %v", err)
	}

	// ref dispatches lazily through get(target) on every call, never
	// resolving target at construction time — the same discipline rule.New
	// and selector.New use for their own net-references.
	if err := netReg.RegisterNet("ref", "ref", nil, []string{"target"}, func(opt json.RawMessage, get registry.Getter) (model.Net, error) {
		var parsed struct {
			Target string `json:"target"`
		}
		if err := json.Unmarshal(opt, &parsed); err != nil {
			return nil, err
		}
		return refNet{target: parsed.Target, get: get}, nil
	}); err != nil {
		t.Fatalf("register ref: %v", err)
	}

	srvReg := registry.NewServerRegistry()
	if err := srvReg.RegisterServer("stub", nil, func(ctx context.Context, opt json.RawMessage, listenNet, outboundNet model.Net) (registry.ServerHandle, error) {
		return &stubServerHandle{}, nil
	}); err != nil {
		t.Fatalf("register server: %v", err)
	}
	return netReg, srvReg
}

func TestReconcileAddsNetsAndServers(t *testing.T) {
	netReg, srvReg := newTestRegistries(t)
	g := New(netReg, srvReg, tracker.New())

	cfg := &model.Config{
		Net: map[string]model.NetDescriptor{"direct": {ID: "direct", Type: "leaf"}},
		Server: map[string]model.ServerDescriptor{
			"in": {ID: "in", Type: "stub", ListenNet: "direct", Net: "direct"},
		},
	}
	if err := g.Reconcile(context.Background(), cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if _, err := g.Net("direct"); err != nil {
		t.Fatalf("expected direct net to be live: %v", err)
	}
	states := g.ServerStates()
	if states["in"] != StateRunning {
		t.Fatalf("expected server in to be running, got %v", states["in"])
	}
}

func TestReconcileUpdatePreservesHandleIdentity(t *testing.T) {
	netReg, srvReg := newTestRegistries(t)
	g := New(netReg, srvReg, tracker.New())

	cfg1 := &model.Config{Net: map[string]model.NetDescriptor{"direct": {ID: "direct", Type: "leaf"}}, Server: map[string]model.ServerDescriptor{}}
	if err := g.Reconcile(context.Background(), cfg1); err != nil {
		t.Fatalf("reconcile 1: %v", err)
	}
	handle1, _ := g.RunningNetHandle("direct")

	cfg2 := &model.Config{Net: map[string]model.NetDescriptor{"direct": {ID: "direct", Type: "leaf", Opt: json.RawMessage(`{"x":1}`)}}, Server: map[string]model.ServerDescriptor{}}
	if err := g.Reconcile(context.Background(), cfg2); err != nil {
		t.Fatalf("reconcile 2: %v", err)
	}
	handle2, _ := g.RunningNetHandle("direct")
	if handle1 != handle2 {
		t.Fatalf("expected the same RunningNet handle to survive an opt update")
	}
}

// TestReconcileUpdatePropagatesToReferrer exercises the scenario behind
// §3's running-net invariant directly: net "ref" references leaf "direct"
// in the very same reconcile batch that creates both of them (true of
// every cross-reference on initial config load). A later reconcile that
// only changes "direct"'s opt — "ref" itself is untouched — must still be
// observable through ref's original, never-rebuilt handle, proving ref
// captured direct's swappable RunningNet and not a one-time snapshot of
// its first inner.
func TestReconcileUpdatePropagatesToReferrer(t *testing.T) {
	netReg, srvReg := newTestRegistries(t)
	g := New(netReg, srvReg, tracker.New())

	cfg1 := &model.Config{
		Net: map[string]model.NetDescriptor{
			"direct": {ID: "direct", Type: "leaf", Opt: json.RawMessage(`{"tag":"v1"}`)},
			"ref":    {ID: "ref", Type: "ref", Opt: json.RawMessage(`{"target":"direct"}`), ReferencedNets: []string{"direct"}},
		},
	}
	if err := g.Reconcile(context.Background(), cfg1); err != nil {
		t.Fatalf("reconcile 1: %v", err)
	}
	refHandle, _ := g.RunningNetHandle("ref")

	_, err := refHandle.TCPConnect(context.Background(), model.Address{})
	if err == nil || !strings.Contains(err.Error(), "stub:v1") {
		t.Fatalf("expected dispatch through ref to reach direct's v1 inner, got %v", err)
	}

	cfg2 := &model.Config{
		Net: map[string]model.NetDescriptor{
			"direct": {ID: "direct", Type: "leaf", Opt: json.RawMessage(`{"tag":"v2"}`)},
			"ref":    {ID: "ref", Type: "ref", Opt: json.RawMessage(`{"target":"direct"}`), ReferencedNets: []string{"direct"}},
		},
	}
	if err := g.Reconcile(context.Background(), cfg2); err != nil {
		t.Fatalf("reconcile 2: %v", err)
	}
	refHandle2, _ := g.RunningNetHandle("ref")
	if refHandle != refHandle2 {
		t.Fatalf("expected ref's handle identity to survive an update where ref's own opt is unchanged")
	}

	_, err = refHandle.TCPConnect(context.Background(), model.Address{})
	if err == nil || !strings.Contains(err.Error(), "stub:v2") {
		t.Fatalf("expected dispatch through ref to reach direct's v2 inner after reconcile, got %v", err)
	}
}

func TestReconcileRemovesDroppedNetsAndServers(t *testing.T) {
	netReg, srvReg := newTestRegistries(t)
	g := New(netReg, srvReg, tracker.New())

	cfg1 := &model.Config{
		Net:    map[string]model.NetDescriptor{"direct": {ID: "direct", Type: "leaf"}},
		Server: map[string]model.ServerDescriptor{"in": {ID: "in", Type: "stub", ListenNet: "direct", Net: "direct"}},
	}
	if err := g.Reconcile(context.Background(), cfg1); err != nil {
		t.Fatalf("reconcile 1: %v", err)
	}

	cfg2 := &model.Config{Net: map[string]model.NetDescriptor{}, Server: map[string]model.ServerDescriptor{}}
	if err := g.Reconcile(context.Background(), cfg2); err != nil {
		t.Fatalf("reconcile 2: %v", err)
	}
	if _, err := g.Net("direct"); err == nil {
		t.Fatalf("expected direct net to be removed")
	}
	if len(g.ServerStates()) != 0 {
		t.Fatalf("expected server in to be removed")
	}
}

func TestStopDrainsAllServers(t *testing.T) {
	netReg, srvReg := newTestRegistries(t)
	g := New(netReg, srvReg, tracker.New())

	cfg := &model.Config{
		Net:    map[string]model.NetDescriptor{"direct": {ID: "direct", Type: "leaf"}},
		Server: map[string]model.ServerDescriptor{"in": {ID: "in", Type: "stub", ListenNet: "direct", Net: "direct"}},
	}
	if err := g.Reconcile(context.Background(), cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for _, rs := range g.servers {
		if rs.state != StateFinished {
			t.Fatalf("expected server to be finished after stop, got %v", rs.state)
		}
	}
}
