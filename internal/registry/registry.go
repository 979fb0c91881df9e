// Package registry implements C5: name -> {schema, factory} for nets,
// servers and importers, with a dependency-resolving builder that
// topologically sorts referenced nets before constructing them.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// Getter resolves a net id to its currently-live Net, used by factories to
// resolve net-references declared in their own config.
type Getter func(id string) (model.Net, error)

// NetFactory constructs a Net from raw JSON options, given a Getter to
// resolve any net-references the Opt contains.
type NetFactory func(opt json.RawMessage, get Getter) (model.Net, error)

// netEntry is what's registered for one net type.
type netEntry struct {
	pluginName string
	schema     *jsonschema.Schema
	factory    NetFactory
	refFields  []string // JSON field names within Opt holding net-id references
}

// Registry is the C5 name -> {schema, factory} table for net types. Server
// and importer registries follow the analogous but separately-typed shape
// in server.go / the importer package.
type Registry struct {
	nets map[string]netEntry
}

func New() *Registry {
	return &Registry{nets: map[string]netEntry{}}
}

// RegisterNet adds a net type. schemaJSON may be nil to skip opt validation
// (used by types whose opt has no useful static shape, e.g. noop).
// refFields names which top-level Opt JSON fields are net-id references
// (strings) or lists of net-id references ([]string), mirroring §3's
// "referenced_nets is derived from opt by walking fields marked as
// net-references during schema visiting".
func (r *Registry) RegisterNet(typeName, pluginName string, schemaJSON []byte, refFields []string, factory NetFactory) error {
	var compiled *jsonschema.Schema
	if len(schemaJSON) > 0 {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(typeName, mustDecodeSchema(schemaJSON)); err != nil {
			return fmt.Errorf("registry: add schema for %q: %w", typeName, err)
		}
		s, err := c.Compile(typeName)
		if err != nil {
			return fmt.Errorf("registry: compile schema for %q: %w", typeName, err)
		}
		compiled = s
	}
	r.nets[typeName] = netEntry{pluginName: pluginName, schema: compiled, factory: factory, refFields: refFields}
	return nil
}

func mustDecodeSchema(schemaJSON []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(schemaJSON, &v); err != nil {
		panic(fmt.Sprintf("registry: invalid schema literal: %v", err))
	}
	return v
}

// ValidateNetOpt validates opt against the registered schema for typeName,
// if one was registered.
func (r *Registry) ValidateNetOpt(typeName string, opt json.RawMessage) error {
	entry, ok := r.nets[typeName]
	if !ok {
		return relayerr.BadRequest("unknown net type: " + typeName)
	}
	if entry.schema == nil {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(opt, &v); err != nil {
		return relayerr.BadRequest("net opt is not valid JSON: " + err.Error())
	}
	if err := entry.schema.Validate(v); err != nil {
		return relayerr.BadRequest(fmt.Sprintf("net opt for type %q failed schema validation: %v", typeName, err))
	}
	return nil
}

// ReferencedNets walks opt's registered ref fields and returns the set of
// net ids it references, populating NetDescriptor.ReferencedNets (§3).
func (r *Registry) ReferencedNets(typeName string, opt json.RawMessage) ([]string, error) {
	entry, ok := r.nets[typeName]
	if !ok {
		return nil, relayerr.BadRequest("unknown net type: " + typeName)
	}
	if len(entry.refFields) == 0 {
		return nil, nil
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(opt, &generic); err != nil {
		return nil, relayerr.BadRequest("net opt is not a JSON object: " + err.Error())
	}

	var out []string
	for _, field := range entry.refFields {
		raw, present := generic[field]
		if !present {
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil {
			out = append(out, single)
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			out = append(out, list...)
			continue
		}
	}
	return out, nil
}

// BuildNet constructs a net of the given type with the given validated opt,
// using get to resolve any net-references.
func (r *Registry) BuildNet(typeName string, opt json.RawMessage, get Getter) (model.Net, error) {
	entry, ok := r.nets[typeName]
	if !ok {
		return nil, relayerr.BadRequest("unknown net type: " + typeName)
	}
	if err := r.ValidateNetOpt(typeName, opt); err != nil {
		return nil, err
	}
	return entry.factory(opt, get)
}

// HasNetType reports whether typeName is registered.
func (r *Registry) HasNetType(typeName string) bool {
	_, ok := r.nets[typeName]
	return ok
}
