// Package importer implements the config transform pipeline (C3): merge,
// scripted (gojq), and clash.
package importer

import (
	"context"
	"fmt"

	"relay/internal/model"
	"relay/internal/source"
	"relay/internal/storage"
)

// Importer transforms an accumulator Config given the raw text loaded from
// an import block's source.
type Importer interface {
	Process(ctx context.Context, cfg *model.Config, text string, cache storage.Store) (*model.Config, error)
}

// Registry maps an importer type name to its implementation, mirroring the
// net/server registry (C5) but scoped to the three contract-defined kinds
// plus whatever a deployment registers.
type Registry struct {
	importers map[string]Importer
}

func NewRegistry() *Registry {
	return &Registry{importers: map[string]Importer{
		"merge":    MergeImporter{},
		"scripted": ScriptedImporter{},
		"clash":    ClashImporter{},
	}}
}

func (r *Registry) Register(name string, imp Importer) { r.importers[name] = imp }

// Apply loads each import block's source via C2 and folds its importer over
// cfg in order. A failure is wrapped with the offending block's name, per
// §7's propagation rule for importer failures.
func (r *Registry) Apply(ctx context.Context, cfg *model.Config, blocks []model.ImportBlock, cache storage.Store, resolveStorage func(folder string) (storage.Store, error)) (*model.Config, []source.Source, error) {
	var waiters []source.Source
	for _, block := range blocks {
		imp, ok := r.importers[block.Type]
		if !ok {
			return nil, nil, fmt.Errorf("import block %q: unknown importer type %q", blockName(block), block.Type)
		}
		src, err := source.Build(block.Source, resolveStorage)
		if err != nil {
			return nil, nil, fmt.Errorf("import block %q: %w", blockName(block), err)
		}
		waiters = append(waiters, src)

		text, err := src.Fetch(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("import block %q: fetch: %w", blockName(block), err)
		}

		next, err := imp.Process(ctx, cfg, text, cache)
		if err != nil {
			return nil, nil, fmt.Errorf("import block %q: %w", blockName(block), err)
		}
		cfg = next
	}
	return cfg, waiters, nil
}

func blockName(b model.ImportBlock) string {
	if b.Name != "" {
		return b.Name
	}
	return b.Type
}
