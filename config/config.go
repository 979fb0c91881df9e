// Package config handles the engine process's own configuration: where the
// control plane binds, its bearer token, the web UI directory, and the
// on-disk storage roots — distinct from the proxied net/server graph
// document, which flows through internal/source, internal/importer and
// internal/configmgr instead.
//
// It is stored at $XDG_CONFIG_HOME/relay/config.yaml (defaults to
// ~/.config/relay/config.yaml), mirroring the teacher's config path
// resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration `cmd/relay serve` loads, merged
// with command-line flags (flags win on conflict).
type Config struct {
	Bind  string `yaml:"bind,omitempty"`  // control plane listen address
	Token string `yaml:"token,omitempty"` // control plane bearer token; empty disables auth
	WebUI string `yaml:"web_ui,omitempty"` // static web UI directory; empty disables it

	CacheDir    string `yaml:"cache_dir,omitempty"`    // poll-cache storage folder
	OverrideDir string `yaml:"override_dir,omitempty"` // selector-override storage folder
	UserdataDir string `yaml:"userdata_dir,omitempty"` // control-plane userdata storage folder

	LogLevel string `yaml:"log_level,omitempty"`
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/relay/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "relay", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "relay", "config.yaml")
}

// Load reads the config file. If the file does not exist, a zero Config is
// returned (not an error) so a fresh install runs on flag defaults alone.
func Load() (*Config, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating directories as needed.
func (c *Config) Save() error {
	p := Path()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultCacheDir/OverrideDir/UserdataDir resolve storage folders relative
// to a platform cache directory when the config/flags leave them unset.
func DefaultCacheDir() string    { return defaultDir("cache") }
func DefaultOverrideDir() string { return defaultDir("overrides") }
func DefaultUserdataDir() string { return defaultDir("userdata") }

func defaultDir(name string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "relay", name)
}

// Merge overlays non-empty fields from flags onto c, returning the result
// flags take precedence over the file.
func (c *Config) Merge(flags Config) Config {
	out := *c
	if flags.Bind != "" {
		out.Bind = flags.Bind
	}
	if flags.Token != "" {
		out.Token = flags.Token
	}
	if flags.WebUI != "" {
		out.WebUI = flags.WebUI
	}
	if flags.CacheDir != "" {
		out.CacheDir = flags.CacheDir
	}
	if flags.OverrideDir != "" {
		out.OverrideDir = flags.OverrideDir
	}
	if flags.UserdataDir != "" {
		out.UserdataDir = flags.UserdataDir
	}
	if flags.LogLevel != "" {
		out.LogLevel = flags.LogLevel
	}
	return out
}
