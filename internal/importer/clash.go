package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"relay/internal/model"
	"relay/internal/relayerr"
	"relay/internal/source"
	"relay/internal/storage"
)

// clashDoc is the subset of a Clash YAML document this importer understands:
// proxies, proxy-groups, and a rule list. Field mapping beyond this is an
// external collaborator's concern (§1: "Clash-specific field mapping (only
// the importer contract is fixed)").
type clashDoc struct {
	Proxies      []map[string]interface{} `yaml:"proxies"`
	ProxyGroups  []clashProxyGroup        `yaml:"proxy-groups"`
	Rules        []string                 `yaml:"rules"`
	RuleProviders map[string]clashRuleProvider `yaml:"rule-providers"`
}

type clashProxyGroup struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Proxies []string `yaml:"proxies"`
}

type clashRuleProvider struct {
	Type    string `yaml:"type"` // "http", "file", or the unspecified "classical"
	Behavior string `yaml:"behavior"`
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
}

// ClashImporter translates a Clash YAML document into native nets: each
// proxy becomes one net of the corresponding type, each proxy-group becomes
// a `select` net, and the rule list becomes one `rule` net with
// source-order-preserving, adjacent-same-target-same-kind coalescing
// (§4.3).
type ClashImporter struct{}

var _ Importer = ClashImporter{}

func (ClashImporter) Process(ctx context.Context, cfg *model.Config, text string, cache storage.Store) (*model.Config, error) {
	var doc clashDoc
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("clash: parse: %w", err)
	}

	out := cfg.Clone()

	for _, proxy := range doc.Proxies {
		name, _ := proxy["name"].(string)
		ptype, _ := proxy["type"].(string)
		if name == "" || ptype == "" {
			return nil, fmt.Errorf("clash: proxy entry missing name/type")
		}
		opt, err := json.Marshal(proxy)
		if err != nil {
			return nil, fmt.Errorf("clash: proxy %q: %w", name, err)
		}
		out.Net[name] = model.NetDescriptor{ID: name, Type: ptype, Opt: opt}
	}

	for _, group := range doc.ProxyGroups {
		opt, err := json.Marshal(map[string]interface{}{
			"selected": firstOr(group.Proxies, ""),
			"list":     group.Proxies,
		})
		if err != nil {
			return nil, fmt.Errorf("clash: proxy-group %q: %w", group.Name, err)
		}
		out.Net[group.Name] = model.NetDescriptor{ID: group.Name, Type: "select", Opt: opt}
	}

	if len(doc.Rules) > 0 {
		items, err := parseClashRules(doc.Rules, doc.RuleProviders, cache)
		if err != nil {
			return nil, err
		}
		items = coalesceRuleItems(items)
		opt, err := json.Marshal(map[string]interface{}{"rules": items})
		if err != nil {
			return nil, fmt.Errorf("clash: marshal rule net: %w", err)
		}
		const ruleNetID = "clash-rules"
		out.Net[ruleNetID] = model.NetDescriptor{ID: ruleNetID, Type: "rule", Opt: opt}
	}

	return out, nil
}

func firstOr(list []string, def string) string {
	if len(list) > 0 {
		return list[0]
	}
	return def
}

// ruleItem mirrors internal/nets/rule's wire Opt shape; duplicated here
// rather than imported to avoid a dependency cycle between importer and
// nets/rule (the importer only produces JSON, never constructs the net).
type ruleItem struct {
	Matcher json.RawMessage `json:"matcher"`
	Target  string          `json:"target"`
}

type domainMatcherOpt struct {
	Kind   string   `json:"kind"`
	Method string   `json:"method,omitempty"`
	Domain []string `json:"domain,omitempty"`
}

type cidrMatcherOpt struct {
	Kind string   `json:"kind"`
	CIDR []string `json:"cidr,omitempty"`
}

func parseClashRules(rules []string, providers map[string]clashRuleProvider, cache storage.Store) ([]ruleItem, error) {
	var items []ruleItem
	for _, line := range rules {
		item, err := parseClashRuleLine(line, providers, cache)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseClashRuleLine(line string, providers map[string]clashRuleProvider, cache storage.Store) (ruleItem, error) {
	parts := splitClashRule(line)
	if len(parts) < 2 {
		return ruleItem{}, fmt.Errorf("clash: malformed rule %q", line)
	}
	kind, rest, target := parts[0], parts[1:len(parts)-1], parts[len(parts)-1]

	var matcher domainMatcherOpt
	switch kind {
	case "DOMAIN":
		matcher = domainMatcherOpt{Kind: "domain", Method: "match", Domain: rest}
	case "DOMAIN-SUFFIX":
		matcher = domainMatcherOpt{Kind: "domain", Method: "suffix", Domain: rest}
	case "DOMAIN-KEYWORD":
		matcher = domainMatcherOpt{Kind: "domain", Method: "keyword", Domain: rest}
	case "IP-CIDR", "IP-CIDR6":
		raw, _ := json.Marshal(map[string]interface{}{"kind": "ip_cidr", "cidr": rest})
		return ruleItem{Matcher: raw, Target: target}, nil
	case "SRC-IP-CIDR":
		raw, _ := json.Marshal(map[string]interface{}{"kind": "src_ip_cidr", "cidr": rest})
		return ruleItem{Matcher: raw, Target: target}, nil
	case "GEOIP":
		raw, _ := json.Marshal(map[string]interface{}{"kind": "geoip", "country": firstOr(rest, "")})
		return ruleItem{Matcher: raw, Target: target}, nil
	case "RULE-SET":
		return parseClashRuleSet(firstOr(rest, ""), target, providers, cache)
	case "MATCH":
		raw, _ := json.Marshal(map[string]interface{}{"kind": "any"})
		return ruleItem{Matcher: raw, Target: target}, nil
	default:
		return ruleItem{}, fmt.Errorf("clash: unsupported rule kind %q", kind)
	}

	raw, err := json.Marshal(matcher)
	if err != nil {
		return ruleItem{}, err
	}
	return ruleItem{Matcher: raw, Target: target}, nil
}

// parseClashRuleSet resolves a RULE-SET reference by fetching the named
// provider's content via C2 (source.Build) and folding it as a domain set.
// `classical` providers are left as BadRequest per the Open Question in
// §9.
func parseClashRuleSet(name, target string, providers map[string]clashRuleProvider, cache storage.Store) (ruleItem, error) {
	provider, ok := providers[name]
	if !ok {
		return ruleItem{}, fmt.Errorf("clash: rule-set %q not declared in rule-providers", name)
	}

	switch provider.Type {
	case "http":
		src := source.NewPoll(provider.URL, 0)
		text, err := src.Fetch(context.Background())
		if err != nil {
			return ruleItem{}, fmt.Errorf("clash: rule-set %q: %w", name, err)
		}
		return ruleSetToItem(text, target)
	case "file":
		src := source.NewPath(provider.Path)
		text, err := src.Fetch(context.Background())
		if err != nil {
			return ruleItem{}, fmt.Errorf("clash: rule-set %q: %w", name, err)
		}
		return ruleSetToItem(text, target)
	case "classical":
		return ruleItem{}, relayerr.BadRequest(fmt.Sprintf("clash: rule-set %q: classical rule-set providers are not supported", name))
	default:
		return ruleItem{}, fmt.Errorf("clash: rule-set %q: unknown provider type %q", name, provider.Type)
	}
}

type ruleSetPayload struct {
	Payload []string `yaml:"payload"`
}

func ruleSetToItem(text, target string) (ruleItem, error) {
	var payload ruleSetPayload
	if err := yaml.Unmarshal([]byte(text), &payload); err != nil {
		return ruleItem{}, fmt.Errorf("clash: parse rule-set payload: %w", err)
	}
	raw, err := json.Marshal(domainMatcherOpt{Kind: "domain", Method: "suffix", Domain: payload.Payload})
	if err != nil {
		return ruleItem{}, err
	}
	return ruleItem{Matcher: raw, Target: target}, nil
}

// splitClashRule splits "KIND,arg1,arg2,...,TARGET" on commas.
func splitClashRule(line string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] == ',' {
			parts = append(parts, line[start:i])
			start = i + 1
		}
	}
	parts = append(parts, line[start:])
	return parts
}

// coalesceRuleItems merges adjacent rule items that share the same target
// and the same domain- or ip_cidr-matcher kind by set-union, per §4.9's
// coalescing invariant and §80's "set union for domain/ipcidr lists"; this
// must be semantically equivalent to the expanded form because first-match
// dispatch only cares about the union of accepted hosts, not the original
// item boundaries.
func coalesceRuleItems(items []ruleItem) []ruleItem {
	if len(items) == 0 {
		return items
	}
	out := make([]ruleItem, 0, len(items))
	out = append(out, items[0])

	for _, cur := range items[1:] {
		last := &out[len(out)-1]
		merged, ok := tryCoalesce(*last, cur)
		if ok {
			*last = merged
			continue
		}
		out = append(out, cur)
	}
	return out
}

func tryCoalesce(a, b ruleItem) (ruleItem, bool) {
	if a.Target != b.Target {
		return ruleItem{}, false
	}
	if merged, ok := tryCoalesceDomain(a, b); ok {
		return merged, true
	}
	return tryCoalesceCIDR(a, b)
}

func tryCoalesceDomain(a, b ruleItem) (ruleItem, bool) {
	var ma, mb domainMatcherOpt
	if json.Unmarshal(a.Matcher, &ma) != nil || json.Unmarshal(b.Matcher, &mb) != nil {
		return ruleItem{}, false
	}
	if ma.Kind != "domain" || mb.Kind != "domain" || ma.Method != mb.Method {
		return ruleItem{}, false
	}

	union := unionStrings(ma.Domain, mb.Domain)
	merged := domainMatcherOpt{Kind: "domain", Method: ma.Method, Domain: union}
	raw, err := json.Marshal(merged)
	if err != nil {
		return ruleItem{}, false
	}
	return ruleItem{Matcher: raw, Target: a.Target}, true
}

func tryCoalesceCIDR(a, b ruleItem) (ruleItem, bool) {
	var ma, mb cidrMatcherOpt
	if json.Unmarshal(a.Matcher, &ma) != nil || json.Unmarshal(b.Matcher, &mb) != nil {
		return ruleItem{}, false
	}
	if ma.Kind != "ip_cidr" || mb.Kind != "ip_cidr" {
		return ruleItem{}, false
	}

	union := unionStrings(ma.CIDR, mb.CIDR)
	merged := cidrMatcherOpt{Kind: "ip_cidr", CIDR: union}
	raw, err := json.Marshal(merged)
	if err != nil {
		return ruleItem{}, false
	}
	return ruleItem{Matcher: raw, Target: a.Target}, true
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var union []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			union = append(union, s)
		}
	}
	return union
}
