package importer

import (
	"context"
	"encoding/json"
	"testing"

	"relay/internal/model"
	"relay/internal/storage"
)

func emptyConfig() *model.Config {
	return &model.Config{Net: map[string]model.NetDescriptor{}, Server: map[string]model.ServerDescriptor{}}
}

func TestMergeImporterRightWinsOnConflict(t *testing.T) {
	cfg := emptyConfig()
	cfg.Net["a"] = model.NetDescriptor{ID: "a", Type: "local"}

	text := `
net:
  a:
    type: blackhole
  b:
    type: local
`
	out, err := MergeImporter{}.Process(context.Background(), cfg, text, storage.NewMemory())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Net["a"].Type != "blackhole" {
		t.Fatalf("expected import to win on conflict, got %q", out.Net["a"].Type)
	}
	if out.Net["b"].Type != "local" {
		t.Fatalf("expected new net b to be added, got %+v", out.Net["b"])
	}
}

func TestScriptedImporterReplacesConfig(t *testing.T) {
	cfg := emptyConfig()
	cfg.Net["a"] = model.NetDescriptor{ID: "a", Type: "local"}

	script := `$config | .net.a.type = "blackhole"`
	out, err := ScriptedImporter{}.Process(context.Background(), cfg, script, storage.NewMemory())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Net["a"].Type != "blackhole" {
		t.Fatalf("expected script mutation to apply, got %+v", out.Net["a"])
	}
}

func TestScriptedImporterMultipleOutputsIsError(t *testing.T) {
	cfg := emptyConfig()
	_, err := ScriptedImporter{}.Process(context.Background(), cfg, `$config, $config`, storage.NewMemory())
	if err == nil {
		t.Fatalf("expected error for multi-output script")
	}
}

func TestClashImporterProxyGroupBecomesSelectNet(t *testing.T) {
	cfg := emptyConfig()
	text := `
proxies:
  - name: us
    type: trojan
    server: example.com
    port: 443
proxy-groups:
  - name: auto
    type: select
    proxies: [us]
rules:
  - DOMAIN-SUFFIX,example.com,us
  - MATCH,auto
`
	out, err := ClashImporter{}.Process(context.Background(), cfg, text, storage.NewMemory())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Net["us"].Type != "trojan" {
		t.Fatalf("expected proxy net us, got %+v", out.Net["us"])
	}
	if out.Net["auto"].Type != "select" {
		t.Fatalf("expected proxy-group to become select net, got %+v", out.Net["auto"])
	}
	rule, ok := out.Net["clash-rules"]
	if !ok || rule.Type != "rule" {
		t.Fatalf("expected a rule net, got %+v", rule)
	}
	var parsed struct {
		Rules []ruleItem `json:"rules"`
	}
	if err := json.Unmarshal(rule.Opt, &parsed); err != nil {
		t.Fatalf("unmarshal rule opt: %v", err)
	}
	if len(parsed.Rules) != 2 {
		t.Fatalf("expected 2 rule items, got %d", len(parsed.Rules))
	}
	if parsed.Rules[1].Target != "auto" {
		t.Fatalf("expected MATCH rule to target auto, got %q", parsed.Rules[1].Target)
	}
}

func TestCoalesceRuleItemsUnionsAdjacentSameTargetSameKind(t *testing.T) {
	mk := func(target string, domains ...string) ruleItem {
		raw, _ := json.Marshal(domainMatcherOpt{Kind: "domain", Method: "match", Domain: domains})
		return ruleItem{Matcher: raw, Target: target}
	}
	items := []ruleItem{mk("T", "a", "b"), mk("T", "c")}
	out := coalesceRuleItems(items)
	if len(out) != 1 {
		t.Fatalf("expected coalesced single item, got %d", len(out))
	}
	var m domainMatcherOpt
	if err := json.Unmarshal(out[0].Matcher, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Domain) != 3 {
		t.Fatalf("expected union of 3 domains, got %v", m.Domain)
	}
}

func TestCoalesceRuleItemsDoesNotMergeDifferentTargets(t *testing.T) {
	mk := func(target string, domains ...string) ruleItem {
		raw, _ := json.Marshal(domainMatcherOpt{Kind: "domain", Method: "match", Domain: domains})
		return ruleItem{Matcher: raw, Target: target}
	}
	items := []ruleItem{mk("A", "a"), mk("B", "b")}
	out := coalesceRuleItems(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 separate items, got %d", len(out))
	}
}
