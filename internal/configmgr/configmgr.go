// Package configmgr implements C4: a lazy stream of canonical configs
// folded from a raw document source through the importer pipeline (C3),
// with persisted selector-override reapplication (C10 interaction).
package configmgr

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"relay/internal/importer"
	"relay/internal/model"
	"relay/internal/source"
	"relay/internal/storage"
)

// overrideKey is the storage key selector overrides are persisted under,
// scoped per config id so a reload of a differently-sourced document never
// reapplies a stale selection.
func overrideKey(configID string) string { return "selector-override:" + configID }

// Manager ticks a root source through the importer pipeline and yields
// fully-resolved configs, reapplying persisted selector overrides each tick.
type Manager struct {
	root           source.Source
	importers      *importer.Registry
	cache          storage.Store
	overrides      storage.Store
	resolveStorage func(folder string) (storage.Store, error)
}

// New builds a Manager. cache is the scratch store importers may use (e.g.
// clash rule-set fetch caching); overrides is where selector overrides are
// persisted, keyed by overrideKey. resolveStorage resolves named storage
// folders referenced by `storage` import sources.
func New(root source.Source, importers *importer.Registry, cache, overrides storage.Store, resolveStorage func(folder string) (storage.Store, error)) *Manager {
	if importers == nil {
		importers = importer.NewRegistry()
	}
	return &Manager{root: root, importers: importers, cache: cache, overrides: overrides, resolveStorage: resolveStorage}
}

// Tick performs one full cycle of the five-step algorithm and returns the
// resolved config plus the set of waiters (the root source and every
// import's source) whose Wait the caller should race before calling Tick
// again.
func (m *Manager) Tick(ctx context.Context) (*model.Config, []source.Source, error) {
	text, err := m.root.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("configmgr: fetch root source: %w", err)
	}

	var raw model.RawDocument
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, nil, fmt.Errorf("configmgr: parse document: %w", err)
	}

	cfg, err := rawDocumentToConfig(raw)
	if err != nil {
		return nil, nil, err
	}

	resolved, waiters, err := m.importers.Apply(ctx, cfg, raw.Import, m.cache, m.resolveStorage)
	if err != nil {
		return nil, nil, err
	}

	resolved.ID = m.root.CacheKey()

	if err := m.applyOverride(resolved); err != nil {
		return nil, nil, err
	}

	return resolved, append([]source.Source{m.root}, waiters...), nil
}

// Wait blocks until the root source or any of the given import waiters
// believes new content might be available, whichever completes first.
func (m *Manager) Wait(ctx context.Context, waiters []source.Source) error {
	if len(waiters) == 0 {
		return m.root.Wait(ctx)
	}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, len(waiters))
	for _, w := range waiters {
		w := w
		go func() { errc <- w.Wait(subCtx) }()
	}
	return <-errc
}

// SourcesManager wraps a Manager whose root source can be swapped out from
// under it; Wait preempts as soon as a new source arrives on Next, per
// §4.4's "sources variant accepts a stream of sources and preempts the wait
// when a new source arrives."
type SourcesManager struct {
	mgr  *Manager
	next chan source.Source
}

// NewSources builds a SourcesManager starting from initial.
func NewSources(initial source.Source, importers *importer.Registry, cache, overrides storage.Store, resolveStorage func(folder string) (storage.Store, error)) *SourcesManager {
	return &SourcesManager{
		mgr:  New(initial, importers, cache, overrides, resolveStorage),
		next: make(chan source.Source, 1),
	}
}

// Replace swaps in a new root source, waking any in-progress Wait.
func (s *SourcesManager) Replace(src source.Source) {
	select {
	case s.next <- src:
	default:
		// drain stale pending swap, keep only the newest
		select {
		case <-s.next:
		default:
		}
		s.next <- src
	}
}

func (s *SourcesManager) Tick(ctx context.Context) (*model.Config, []source.Source, error) {
	select {
	case src := <-s.next:
		s.mgr.root = src
	default:
	}
	return s.mgr.Tick(ctx)
}

// Wait blocks on the current root/import waiters, but returns immediately
// if Replace delivers a new source in the meantime.
func (s *SourcesManager) Wait(ctx context.Context, waiters []source.Source) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.mgr.Wait(subCtx, waiters) }()

	select {
	case err := <-done:
		return err
	case src := <-s.next:
		s.next <- src // put it back for the next Tick to pick up
		return nil
	}
}

func (m *Manager) applyOverride(cfg *model.Config) error {
	if m.overrides == nil {
		return nil
	}
	item, err := m.overrides.Get(overrideKey(cfg.ID))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("configmgr: load selector override: %w", err)
	}
	var chosen map[string]string
	if err := yaml.Unmarshal(item.Content, &chosen); err != nil {
		return fmt.Errorf("configmgr: decode selector override: %w", err)
	}
	for name, pick := range chosen {
		nd, ok := cfg.Net[name]
		if !ok || nd.Type != "select" {
			continue
		}
		if !selectListContains(nd.Opt, pick) {
			continue
		}
		nd.Opt = setSelected(nd.Opt, pick)
		cfg.Net[name] = nd
	}
	return nil
}

// SaveOverride persists that `name`'s selector chose `chosen` under
// configID, for reapplication on the next Tick (§4.4, §4.10).
func SaveOverride(store storage.Store, configID, name, chosen string) error {
	existing := map[string]string{}
	if item, err := store.Get(overrideKey(configID)); err == nil {
		_ = yaml.Unmarshal(item.Content, &existing)
	} else if !storage.IsNotFound(err) {
		return err
	}
	existing[name] = chosen
	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	return store.Set(overrideKey(configID), data)
}

// selectListContains reports whether a `select` net's opt.list contains
// candidate.
func selectListContains(opt json.RawMessage, candidate string) bool {
	var parsed struct {
		List []string `json:"list"`
	}
	if err := json.Unmarshal(opt, &parsed); err != nil {
		return false
	}
	for _, v := range parsed.List {
		if v == candidate {
			return true
		}
	}
	return false
}

// setSelected rewrites a `select` net's opt.selected field to chosen,
// preserving every other field.
func setSelected(opt json.RawMessage, chosen string) json.RawMessage {
	var generic map[string]interface{}
	if err := json.Unmarshal(opt, &generic); err != nil {
		return opt
	}
	generic["selected"] = chosen
	data, err := json.Marshal(generic)
	if err != nil {
		return opt
	}
	return data
}

func marshalRawOpt(raw map[string]interface{}) (json.RawMessage, error) {
	if raw == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(raw)
}

func rawDocumentToConfig(raw model.RawDocument) (*model.Config, error) {
	cfg := &model.Config{ID: raw.ID, Net: map[string]model.NetDescriptor{}, Server: map[string]model.ServerDescriptor{}}
	for id, entry := range raw.Net {
		opt, err := marshalRawOpt(entry.Opt)
		if err != nil {
			return nil, fmt.Errorf("configmgr: net %q: %w", id, err)
		}
		cfg.Net[id] = model.NetDescriptor{ID: id, Type: entry.Type, Opt: opt}
	}
	for id, entry := range raw.Server {
		opt, err := marshalRawOpt(entry.Opt)
		if err != nil {
			return nil, fmt.Errorf("configmgr: server %q: %w", id, err)
		}
		cfg.Server[id] = model.ServerDescriptor{ID: id, Type: entry.Type, ListenNet: entry.Listen, Net: entry.Net, Opt: opt}
	}
	return cfg, nil
}
