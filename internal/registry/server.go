package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// ServerHandle is what a running server looks like to the graph: it can be
// asked to stop, draining in-flight connections per §4.6's full-stop rule.
type ServerHandle interface {
	Stop(ctx context.Context) error
}

// ServerFactory starts a server given its two resolved net references: the
// listen net its accept loop binds through, and the outbound net each
// accepted flow is forwarded over (already wrapped by the inbound
// decorator). Both are already-live model.Net handles; the factory owns
// interpreting its own opt for the bind address.
type ServerFactory func(ctx context.Context, opt json.RawMessage, listenNet, outboundNet model.Net) (ServerHandle, error)

type serverEntry struct {
	schema  *jsonschema.Schema
	factory ServerFactory
}

// ServerRegistry is the C5 name -> {schema, factory} table for server
// types, kept distinct from the net Registry since server construction
// needs a resolved Net, not a Getter.
type ServerRegistry struct {
	servers map[string]serverEntry
}

func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{servers: map[string]serverEntry{}}
}

func (r *ServerRegistry) RegisterServer(typeName string, schemaJSON []byte, factory ServerFactory) error {
	var compiled *jsonschema.Schema
	if len(schemaJSON) > 0 {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(typeName, mustDecodeSchema(schemaJSON)); err != nil {
			return fmt.Errorf("registry: add server schema for %q: %w", typeName, err)
		}
		s, err := c.Compile(typeName)
		if err != nil {
			return fmt.Errorf("registry: compile server schema for %q: %w", typeName, err)
		}
		compiled = s
	}
	r.servers[typeName] = serverEntry{schema: compiled, factory: factory}
	return nil
}

func (r *ServerRegistry) ValidateServerOpt(typeName string, opt json.RawMessage) error {
	entry, ok := r.servers[typeName]
	if !ok {
		return relayerr.BadRequest("unknown server type: " + typeName)
	}
	if entry.schema == nil {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(opt, &v); err != nil {
		return relayerr.BadRequest("server opt is not valid JSON: " + err.Error())
	}
	if err := entry.schema.Validate(v); err != nil {
		return relayerr.BadRequest(fmt.Sprintf("server opt for type %q failed schema validation: %v", typeName, err))
	}
	return nil
}

func (r *ServerRegistry) BuildServer(ctx context.Context, typeName string, opt json.RawMessage, listenNet, outboundNet model.Net) (ServerHandle, error) {
	entry, ok := r.servers[typeName]
	if !ok {
		return nil, relayerr.BadRequest("unknown server type: " + typeName)
	}
	if err := r.ValidateServerOpt(typeName, opt); err != nil {
		return nil, err
	}
	return entry.factory(ctx, opt, listenNet, outboundNet)
}

func (r *ServerRegistry) HasServerType(typeName string) bool {
	_, ok := r.servers[typeName]
	return ok
}
