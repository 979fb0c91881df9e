package config

import "testing"

func TestMergePrefersFlags(t *testing.T) {
	base := &Config{Bind: "127.0.0.1:1080", Token: "file-token"}
	merged := base.Merge(Config{Token: "flag-token"})
	if merged.Bind != "127.0.0.1:1080" {
		t.Fatalf("expected file bind to survive, got %q", merged.Bind)
	}
	if merged.Token != "flag-token" {
		t.Fatalf("expected flag token to win, got %q", merged.Token)
	}
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bind != "" || cfg.Token != "" {
		t.Fatalf("expected zero-value config, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := &Config{Bind: "0.0.0.0:8080", LogLevel: "debug"}
	if err := cfg.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Bind != cfg.Bind || loaded.LogLevel != cfg.LogLevel {
		t.Fatalf("round trip mismatch: got %+v", loaded)
	}
}
