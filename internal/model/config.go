package model

import "encoding/json"

// NetDescriptor is the declarative description of one outbound net.
type NetDescriptor struct {
	ID             string          `json:"id" yaml:"-"`
	Type           string          `json:"type" yaml:"type"`
	Opt            json.RawMessage `json:"opt,omitempty" yaml:"-"`
	ReferencedNets []string        `json:"referenced_nets,omitempty" yaml:"-"`
}

// ServerDescriptor is the declarative description of one inbound listener.
type ServerDescriptor struct {
	ID       string          `json:"id" yaml:"-"`
	Type     string          `json:"type" yaml:"type"`
	ListenNet string         `json:"listen_net" yaml:"listen"`
	Net      string          `json:"net" yaml:"net"`
	Opt      json.RawMessage `json:"opt,omitempty" yaml:"-"`
}

// ImportSource is the tagged union of where an importer's source text comes
// from: path / poll / storage / text.
type ImportSource struct {
	Path    string            `json:"path,omitempty" yaml:"path,omitempty"`
	Poll    *PollSource       `json:"poll,omitempty" yaml:"poll,omitempty"`
	Storage *StorageSource    `json:"storage,omitempty" yaml:"storage,omitempty"`
	Text    string            `json:"text,omitempty" yaml:"text,omitempty"`
}

type PollSource struct {
	URL      string `json:"url" yaml:"url"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
}

type StorageSource struct {
	Folder string `json:"folder" yaml:"folder"`
	Key    string `json:"key" yaml:"key"`
}

// ImportBlock is one entry of the config document's `import:` list.
type ImportBlock struct {
	Name   string       `json:"name,omitempty" yaml:"name,omitempty"`
	Type   string       `json:"type" yaml:"type"`
	Source ImportSource `json:"source" yaml:"source"`
	Opt    json.RawMessage `json:"opt,omitempty" yaml:"-"`
}

// Config is the canonical, fully-resolved configuration document the
// running graph reconciles against.
type Config struct {
	ID     string                      `json:"id"`
	Net    map[string]NetDescriptor    `json:"net"`
	Server map[string]ServerDescriptor `json:"server"`
}

// Clone returns a deep-enough copy for reconcile diffing (descriptors are
// value types except for Opt/ReferencedNets, which we also copy).
func (c *Config) Clone() *Config {
	out := &Config{ID: c.ID, Net: make(map[string]NetDescriptor, len(c.Net)), Server: make(map[string]ServerDescriptor, len(c.Server))}
	for k, v := range c.Net {
		nv := v
		nv.Opt = append(json.RawMessage(nil), v.Opt...)
		nv.ReferencedNets = append([]string(nil), v.ReferencedNets...)
		out.Net[k] = nv
	}
	for k, v := range c.Server {
		sv := v
		sv.Opt = append(json.RawMessage(nil), v.Opt...)
		out.Server[k] = sv
	}
	return out
}

// RawDocument mirrors the YAML shape of §6's External Interfaces for initial
// parsing, before net-ref walking and import folding populate Config.
type RawDocument struct {
	ID     string                     `yaml:"id,omitempty"`
	Net    map[string]RawNetEntry     `yaml:"net"`
	Server map[string]RawServerEntry  `yaml:"server"`
	Import []ImportBlock              `yaml:"import"`
}

// RawNetEntry keeps Opt as a generic map so the registry's net-reference
// walker can inspect it before the typed Opt is known.
type RawNetEntry struct {
	Type string                 `yaml:"type"`
	Opt  map[string]interface{} `yaml:",inline"`
}

type RawServerEntry struct {
	Type   string                 `yaml:"type"`
	Listen string                 `yaml:"listen"`
	Net    string                 `yaml:"net"`
	Opt    map[string]interface{} `yaml:",inline"`
}
