package importer

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"relay/internal/model"
	"relay/internal/storage"
)

// MergeImporter parses text as a partial config and structurally merges its
// net/server maps into the accumulator; right (the import) wins on key
// conflict, per §4.3.
type MergeImporter struct{}

var _ Importer = MergeImporter{}

func (MergeImporter) Process(ctx context.Context, cfg *model.Config, text string, cache storage.Store) (*model.Config, error) {
	var doc model.RawDocument
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("merge: parse partial config: %w", err)
	}

	out := cfg.Clone()
	for id, raw := range doc.Net {
		nd, err := rawNetToDescriptor(id, raw)
		if err != nil {
			return nil, fmt.Errorf("merge: net %q: %w", id, err)
		}
		out.Net[id] = nd
	}
	for id, raw := range doc.Server {
		sd, err := rawServerToDescriptor(id, raw)
		if err != nil {
			return nil, fmt.Errorf("merge: server %q: %w", id, err)
		}
		out.Server[id] = sd
	}
	return out, nil
}

func rawNetToDescriptor(id string, raw model.RawNetEntry) (model.NetDescriptor, error) {
	opt, err := marshalOpt(raw.Opt)
	if err != nil {
		return model.NetDescriptor{}, err
	}
	return model.NetDescriptor{ID: id, Type: raw.Type, Opt: opt}, nil
}

func rawServerToDescriptor(id string, raw model.RawServerEntry) (model.ServerDescriptor, error) {
	opt, err := marshalOpt(raw.Opt)
	if err != nil {
		return model.ServerDescriptor{}, err
	}
	return model.ServerDescriptor{ID: id, Type: raw.Type, ListenNet: raw.Listen, Net: raw.Net, Opt: opt}, nil
}
