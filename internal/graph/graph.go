// Package graph implements C6: the running graph of nets and servers,
// reconciling configuration changes in place so in-flight connections are
// never interrupted by an unrelated update.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"relay/internal/model"
	"relay/internal/registry"
	"relay/internal/relayerr"
	"relay/internal/tracker"
)

// ServerState is one of the running-server state machine's three states
// (§4.2: "WaitConfig -> Running{opt, task, close-signal} -> Finished{result}").
type ServerState string

const (
	StateWaitConfig ServerState = "WaitConfig"
	StateRunning    ServerState = "Running"
	StateFinished   ServerState = "Finished"
)

// RunningServer tracks one server descriptor's live state.
type RunningServer struct {
	id     string
	opt    json.RawMessage
	state  ServerState
	handle registry.ServerHandle
	err    error
}

func (s *RunningServer) State() ServerState { return s.state }
func (s *RunningServer) Err() error         { return s.err }

// Graph holds every live net behind a swappable handle and every live
// server's state machine, plus the shared connection tracker.
type Graph struct {
	mu sync.RWMutex

	netDescs map[string]model.NetDescriptor
	nets     map[string]*RunningNet

	srvDescs map[string]model.ServerDescriptor
	servers  map[string]*RunningServer

	netReg *registry.Registry
	srvReg *registry.ServerRegistry
	tracker *tracker.Tracker
}

func New(netReg *registry.Registry, srvReg *registry.ServerRegistry, trk *tracker.Tracker) *Graph {
	return &Graph{
		netDescs: map[string]model.NetDescriptor{},
		nets:     map[string]*RunningNet{},
		srvDescs: map[string]model.ServerDescriptor{},
		servers:  map[string]*RunningServer{},
		netReg:   netReg,
		srvReg:   srvReg,
		tracker:  trk,
	}
}

// Tracker exposes the shared connection tracker for the control plane.
func (g *Graph) Tracker() *tracker.Tracker { return g.tracker }

// Net looks up a currently-live net by id, for callers (e.g. servers,
// control plane) that need to resolve a config-declared net reference.
func (g *Graph) Net(id string) (model.Net, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nets[id]
	if !ok {
		return nil, relayerr.UnresolvedNet(id)
	}
	return n, nil
}

// RunningNetHandle exposes the swappable handle itself, e.g. for a
// selector's post_select to reach into a selector net's live state.
func (g *Graph) RunningNetHandle(id string) (*RunningNet, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nets[id]
	return n, ok
}

func optsDiffer(a, b json.RawMessage) bool {
	var av, bv interface{}
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return string(a) != string(b)
	}
	aj, _ := json.Marshal(av)
	bj, _ := json.Marshal(bv)
	return string(aj) != string(bj)
}

// netDiff computes to_add/to_remove/to_update ids for the net descriptor
// maps, per §4.6 step 1.
func netDiff(prev, next map[string]model.NetDescriptor) (toAdd, toRemove, toUpdate []string) {
	for id := range next {
		if _, ok := prev[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for id, nd := range next {
		if pd, ok := prev[id]; ok && optsDiffer(pd.Opt, nd.Opt) {
			toUpdate = append(toUpdate, id)
		}
	}
	return
}

// Reconcile diffs cfg against the current graph and mutates it in place
// per §4.6. Net updates are applied before server updates so a server
// referencing a changed net always resolves to the new inner.
func (g *Graph) Reconcile(ctx context.Context, cfg *model.Config) error {
	if err := g.netReg.PopulateReferencedNets(cfg.Net); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	toAdd, toRemove, toUpdate := netDiff(g.netDescs, cfg.Net)

	buildSet := make(map[string]model.NetDescriptor, len(toAdd)+len(toUpdate))
	for _, id := range toAdd {
		buildSet[id] = cfg.Net[id]
	}
	for _, id := range toUpdate {
		buildSet[id] = cfg.Net[id]
	}

	// Pre-create a stable handle for every to_add id before building anything,
	// so a net built in this same batch that references another new net
	// resolves through the swappable handle instead of a one-time concrete
	// snapshot (§4.6 step 2, §3's running-net invariant). to_update and
	// untouched ids already have their handle in g.nets.
	for _, id := range toAdd {
		g.nets[id] = newRunningNet(id, nil)
	}

	handles := make(map[string]model.Net, len(g.nets))
	for id, rn := range g.nets {
		handles[id] = rn
	}

	built, err := g.netReg.BuildAll(ctx, buildSet, handles)
	if err != nil {
		for _, id := range toAdd {
			delete(g.nets, id)
		}
		return err
	}

	for _, id := range toUpdate {
		g.nets[id].Swap(built[id])
		g.netDescs[id] = cfg.Net[id]
	}
	for _, id := range toAdd {
		g.nets[id].Swap(built[id])
		g.netDescs[id] = cfg.Net[id]
	}
	for _, id := range toRemove {
		delete(g.nets, id)
		delete(g.netDescs, id)
	}

	return g.reconcileServers(ctx, cfg)
}

// reconcileServers applies the analogous diff to servers, restarting only
// those whose opt changed (§4.6 step 5); callers hold g.mu.
func (g *Graph) reconcileServers(ctx context.Context, cfg *model.Config) error {
	var toRemove []string
	for id := range g.srvDescs {
		if _, ok := cfg.Server[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		if rs := g.servers[id]; rs != nil && rs.handle != nil {
			if err := rs.handle.Stop(ctx); err != nil {
				return fmt.Errorf("graph: stop server %q: %w", id, err)
			}
		}
		delete(g.servers, id)
		delete(g.srvDescs, id)
	}

	for id, desc := range cfg.Server {
		prev, existed := g.srvDescs[id]
		if existed && !optsDiffer(prev.Opt, desc.Opt) && prev.Net == desc.Net && prev.ListenNet == desc.ListenNet {
			continue // identical opt: restart is a no-op (§4.2)
		}
		if existed {
			if rs := g.servers[id]; rs != nil && rs.handle != nil {
				if err := rs.handle.Stop(ctx); err != nil {
					return fmt.Errorf("graph: stop server %q for restart: %w", id, err)
				}
			}
		}

		netHandle, ok := g.nets[desc.Net]
		if !ok {
			return relayerr.UnresolvedNet(desc.Net)
		}
		listenHandle, ok := g.nets[desc.ListenNet]
		if !ok {
			return relayerr.UnresolvedNet(desc.ListenNet)
		}
		decorated := newInboundDecorator(id, netHandle, g.tracker)

		handle, err := g.srvReg.BuildServer(ctx, desc.Type, desc.Opt, listenHandle, decorated)
		if err != nil {
			g.servers[id] = &RunningServer{id: id, opt: desc.Opt, state: StateFinished, err: err}
			return fmt.Errorf("graph: start server %q: %w", id, err)
		}
		g.servers[id] = &RunningServer{id: id, opt: desc.Opt, state: StateRunning, handle: handle}
		g.srvDescs[id] = desc
	}
	return nil
}

// ServerStates returns a snapshot of every server's current state, for the
// control plane's GET /api/state (aggregated by the caller).
func (g *Graph) ServerStates() map[string]ServerState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]ServerState, len(g.servers))
	for id, rs := range g.servers {
		out[id] = rs.state
	}
	return out
}

// Stop drains every running server concurrently, aborting accept loops and
// waiting on their close-signals; wrapper streams already in flight finish
// their own operations independently (§4.6's full-stop rule).
func (g *Graph) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	grp, gctx := errgroup.WithContext(ctx)
	for id, rs := range g.servers {
		id, rs := id, rs
		if rs.handle == nil {
			continue
		}
		grp.Go(func() error {
			if err := rs.handle.Stop(gctx); err != nil {
				return fmt.Errorf("graph: stop server %q: %w", id, err)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	for _, rs := range g.servers {
		rs.state = StateFinished
	}
	return nil
}
