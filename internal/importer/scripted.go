package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"

	"relay/internal/model"
	"relay/internal/relayerr"
	"relay/internal/storage"
)

// ScriptedImporter evaluates a sandboxed jq expression with the current
// config bound as `config` (per §4.3 and Design Note §9: "an embedded
// expression language... do not re-expose the host language runtime").
// gojq is single-threaded, deterministic, and has a native JSON bridge,
// which is exactly the requirement.
type ScriptedImporter struct{}

var _ Importer = ScriptedImporter{}

func (ScriptedImporter) Process(ctx context.Context, cfg *model.Config, text string, cache storage.Store) (*model.Config, error) {
	query, err := gojq.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("scripted: parse: %w", err)
	}
	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$config"}))
	if err != nil {
		return nil, fmt.Errorf("scripted: compile: %w", err)
	}

	configValue, err := configToJQInput(cfg)
	if err != nil {
		return nil, fmt.Errorf("scripted: marshal config: %w", err)
	}

	iter := code.RunWithContext(ctx, configValue, configValue)
	v, ok := iter.Next()
	if !ok {
		return nil, relayerr.BadRequest("scripted: script produced no output")
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("scripted: evaluation error: %w", err)
	}
	if _, more := iter.Next(); more {
		return nil, relayerr.BadRequest("scripted: script produced more than one output")
	}

	return jqOutputToConfig(v)
}

func configToJQInput(cfg *model.Config) (interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func jqOutputToConfig(v interface{}) (*model.Config, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("scripted: marshal script output: %w", err)
	}
	var cfg model.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("scripted: script output is not a config document: %w", err)
	}
	if cfg.Net == nil {
		cfg.Net = map[string]model.NetDescriptor{}
	}
	if cfg.Server == nil {
		cfg.Server = map[string]model.ServerDescriptor{}
	}
	return &cfg, nil
}
