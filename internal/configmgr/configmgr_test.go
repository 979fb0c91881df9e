package configmgr

import (
	"context"
	"encoding/json"
	"testing"

	"relay/internal/importer"
	"relay/internal/source"
	"relay/internal/storage"
)

func TestTickFoldsImportAndSetsID(t *testing.T) {
	doc := `
net:
  direct:
    type: local
import:
  - type: merge
    source:
      text: |
        net:
          direct:
            type: blackhole
`
	root := source.NewText(doc)
	mgr := New(root, importer.NewRegistry(), storage.NewMemory(), storage.NewMemory(), nil)

	cfg, waiters, err := mgr.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if cfg.Net["direct"].Type != "blackhole" {
		t.Fatalf("expected import to override direct net, got %+v", cfg.Net["direct"])
	}
	if cfg.ID != root.CacheKey() {
		t.Fatalf("expected config id %q, got %q", root.CacheKey(), cfg.ID)
	}
	if len(waiters) == 0 {
		t.Fatalf("expected at least the root source as a waiter")
	}
}

func TestApplyOverrideReappliesOnlyWhenChosenStillInList(t *testing.T) {
	overrides := storage.NewMemory()
	doc := `
net:
  auto:
    type: select
    selected: a
    list: [a, b]
`
	root := source.NewText(doc)
	mgr := New(root, importer.NewRegistry(), storage.NewMemory(), overrides, nil)

	if err := SaveOverride(overrides, root.CacheKey(), "auto", "b"); err != nil {
		t.Fatalf("save override: %v", err)
	}

	cfg, _, err := mgr.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !selectListContains(cfg.Net["auto"].Opt, "b") {
		t.Fatalf("sanity: list should contain b")
	}
	var parsed struct {
		Selected string `json:"selected"`
	}
	if err := json.Unmarshal(cfg.Net["auto"].Opt, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Selected != "b" {
		t.Fatalf("expected override to reapply selected=b, got %q", parsed.Selected)
	}
}

func TestApplyOverrideIgnoredWhenChosenNotInReloadedList(t *testing.T) {
	overrides := storage.NewMemory()
	doc := `
net:
  auto:
    type: select
    selected: a
    list: [a]
`
	root := source.NewText(doc)
	mgr := New(root, importer.NewRegistry(), storage.NewMemory(), overrides, nil)

	if err := SaveOverride(overrides, root.CacheKey(), "auto", "gone"); err != nil {
		t.Fatalf("save override: %v", err)
	}

	cfg, _, err := mgr.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	var parsed struct {
		Selected string `json:"selected"`
	}
	if err := json.Unmarshal(cfg.Net["auto"].Opt, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Selected != "a" {
		t.Fatalf("expected stale override to be ignored, got %q", parsed.Selected)
	}
}
