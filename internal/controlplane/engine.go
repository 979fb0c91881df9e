// Package controlplane implements C12: the HTTP+WebSocket RPC surface that
// reflects the running graph, drives the config manager (C4) and the
// connection tracker (C7), and exposes the selector/latency/userdata
// endpoints from spec.md §4.12.
package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"relay/internal/configmgr"
	"relay/internal/graph"
	"relay/internal/importer"
	"relay/internal/model"
	"relay/internal/registry"
	"relay/internal/source"
	"relay/internal/storage"
	"relay/internal/tracker"
)

// EngineState mirrors the control plane's reported GET /api/state values.
type EngineState string

const (
	StateWaitConfig EngineState = "WaitConfig"
	StateRunning    EngineState = "Running"
	StateStopped    EngineState = "Stopped"
	StateFailed     EngineState = "Failed"
)

// Engine owns the reload loop that ticks the config manager and reconciles
// the running graph, plus the shared state the control plane reflects.
type Engine struct {
	graph *graph.Graph
	mgr   *configmgr.SourcesManager

	netReg *registry.Registry
	srvReg *registry.ServerRegistry

	cache     storage.Store
	overrides storage.Store

	resolveStorage func(folder string) (storage.Store, error)

	mu      sync.RWMutex
	state   EngineState
	cfg     *model.Config
	waiters []source.Source
	err     error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine wires an Engine around an already-constructed graph and its
// supporting registries/tracker/storage.
func NewEngine(g *graph.Graph, netReg *registry.Registry, srvReg *registry.ServerRegistry, cache, overrides storage.Store, resolveStorage func(folder string) (storage.Store, error)) *Engine {
	return &Engine{
		graph:          g,
		netReg:         netReg,
		srvReg:         srvReg,
		cache:          cache,
		overrides:      overrides,
		resolveStorage: resolveStorage,
		state:          StateWaitConfig,
	}
}

// Tracker exposes the shared connection tracker for the control plane's
// connection endpoints.
func (e *Engine) Tracker() *tracker.Tracker { return e.graph.Tracker() }

// Start builds the config manager around initial and runs the reload loop
// until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context, initial source.Source) error {
	e.mu.Lock()
	e.mgr = configmgr.NewSources(initial, importer.NewRegistry(), e.cache, e.overrides, e.resolveStorage)
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})

	if err := e.tickAndReconcile(runCtx); err != nil {
		e.setFailed(err)
		close(e.done)
		return err
	}

	go e.loop(runCtx)
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	for {
		waiters := e.currentWaiters()
		if err := e.mgr.Wait(ctx, waiters); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("controlplane: wait failed", "err", err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err := e.tickAndReconcile(ctx); err != nil {
			slog.Warn("controlplane: reconcile failed, keeping prior config", "err", err)
		}
	}
}

func (e *Engine) tickAndReconcile(ctx context.Context) error {
	cfg, waiters, err := e.mgr.Tick(ctx)
	if err != nil {
		return fmt.Errorf("controlplane: tick: %w", err)
	}
	if err := e.graph.Reconcile(ctx, cfg); err != nil {
		return fmt.Errorf("controlplane: reconcile: %w", err)
	}
	e.mu.Lock()
	e.cfg = cfg
	e.waiters = waiters
	e.state = StateRunning
	e.err = nil
	e.mu.Unlock()
	return nil
}

func (e *Engine) currentWaiters() []source.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.waiters
}

func (e *Engine) setFailed(err error) {
	e.mu.Lock()
	e.state = StateFailed
	e.err = err
	e.mu.Unlock()
}

// Restart swaps in src as the config manager's root source, waking the
// reload loop immediately (§4.12 POST /api/config).
func (e *Engine) Restart(src source.Source) {
	e.mu.RLock()
	mgr := e.mgr
	e.mu.RUnlock()
	if mgr != nil {
		mgr.Replace(src)
	}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Config returns the last successfully reconciled config.
func (e *Engine) Config() *model.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Stop drains the running graph and halts the reload loop.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	return e.graph.Stop(ctx)
}

// Registries exposes the net/server registries for /api/net validation and
// POST /api/config schema checks.
func (e *Engine) Registries() (*registry.Registry, *registry.ServerRegistry) { return e.netReg, e.srvReg }

// Overrides exposes the selector-override store for POST /api/net/{name}.
func (e *Engine) Overrides() storage.Store { return e.overrides }

// RunningNet exposes the graph's stable net handle by id, e.g. for the
// selector post_select endpoint and the latency probe.
func (e *Engine) RunningNet(id string) (model.Net, error) { return e.graph.Net(id) }

// RunningNetHandle exposes the graph's *graph.RunningNet, needed by the
// selector post_select path to reach the live selector.Net underneath.
func (e *Engine) RunningNetHandle(id string) (*graph.RunningNet, bool) { return e.graph.RunningNetHandle(id) }
