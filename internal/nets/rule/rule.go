// Package rule implements C9: first-match rule dispatch over an ordered
// list of {matcher, target} items, delegating every capability to whichever
// inner net the matched target resolves to.
package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// aho-corasick / trie threshold: below this many domains per matcher, a
// linear scan is cheaper than building an automaton (§4.9).
const largeSetThreshold = 64

// MatcherKind tags which of the five matcher shapes a rule item holds.
type MatcherKind string

const (
	MatcherDomain    MatcherKind = "domain"
	MatcherIPCIDR    MatcherKind = "ip_cidr"
	MatcherSrcIPCIDR MatcherKind = "src_ip_cidr"
	MatcherGeoIP     MatcherKind = "geoip"
	MatcherAny       MatcherKind = "any"
)

// DomainMethod is how a domain matcher's set is tested.
type DomainMethod string

const (
	MethodSuffix  DomainMethod = "suffix"
	MethodKeyword DomainMethod = "keyword"
	MethodMatch   DomainMethod = "match"
)

type wireMatcher struct {
	Kind    MatcherKind  `json:"kind"`
	Method  DomainMethod `json:"method,omitempty"`
	Domain  []string     `json:"domain,omitempty"`
	CIDR    []string     `json:"cidr,omitempty"`
	Country string       `json:"country,omitempty"`
}

type wireItem struct {
	Matcher json.RawMessage `json:"matcher"`
	Target  string          `json:"target"`
}

// Opt is the rule net's declarative config: an ordered list of items.
type Opt struct {
	Rules []wireItem `json:"rules"`
}

// GeoLookup resolves an IP to an ISO country code; an opaque collaborator
// per §4.9 ("tested against an external geo lookup"). The maxminddb-backed
// internal/geoip.DB satisfies this.
type GeoLookup interface {
	Country(ip net.IP) (string, bool)
}

type matcher interface {
	// matches tests whether this matcher accepts domain (may be empty) or
	// ip (may be nil); srcIP is the inbound context's source IP.
	matches(domain string, ip net.IP, srcIP net.IP) bool
}

type compiledItem struct {
	m      matcher
	target string
}

// Net dispatches tcp_connect/tcp_bind/udp_bind/lookup_host to the first
// matching target's inner net; a miss returns NoRuleMatched.
type Net struct {
	items []compiledItem
	get   func(id string) (model.Net, error)
}

var _ model.Net = (*Net)(nil)

// New compiles opt's rule list and binds get to resolve each item's
// target lazily (targets are resolved per-dispatch, not at construction,
// so a selector target's current choice is always honored).
func New(opt json.RawMessage, get func(id string) (model.Net, error), geo GeoLookup) (*Net, error) {
	var parsed Opt
	if err := json.Unmarshal(opt, &parsed); err != nil {
		return nil, relayerr.BadRequest("rule: invalid opt: " + err.Error())
	}

	items := make([]compiledItem, 0, len(parsed.Rules))
	for i, raw := range parsed.Rules {
		var wm wireMatcher
		if err := json.Unmarshal(raw.Matcher, &wm); err != nil {
			return nil, relayerr.BadRequest(fmt.Sprintf("rule: item %d: invalid matcher: %v", i, err))
		}
		m, err := compileMatcher(wm, geo)
		if err != nil {
			return nil, fmt.Errorf("rule: item %d: %w", i, err)
		}
		items = append(items, compiledItem{m: m, target: raw.Target})
	}
	return &Net{items: items, get: get}, nil
}

func compileMatcher(wm wireMatcher, geo GeoLookup) (matcher, error) {
	switch wm.Kind {
	case MatcherDomain:
		return newDomainMatcher(wm.Method, wm.Domain), nil
	case MatcherIPCIDR:
		return newCIDRMatcher(wm.CIDR, false)
	case MatcherSrcIPCIDR:
		return newCIDRMatcher(wm.CIDR, true)
	case MatcherGeoIP:
		if geo == nil {
			return nil, relayerr.NotEnabled("rule: geoip matcher configured without a geo lookup")
		}
		return geoMatcher{geo: geo, country: wm.Country}, nil
	case MatcherAny:
		return anyMatcher{}, nil
	default:
		return nil, relayerr.BadRequest("rule: unknown matcher kind: " + string(wm.Kind))
	}
}

// ErrNoRuleMatched is returned when no item in the ordered list accepts the
// destination.
var ErrNoRuleMatched = relayerr.New(relayerr.KindUnresolvedNet, "no rule matched")

func srcIPFrom(ctx context.Context) net.IP {
	ic, ok := model.InboundContextFrom(ctx)
	if !ok || ic.SourceAddr.Kind != model.AddrSocket {
		return nil
	}
	return ic.SourceAddr.IP
}

func (n *Net) dispatch(addr model.Address, srcIP net.IP) (model.Net, error) {
	var domain string
	var ip net.IP
	if addr.Kind == model.AddrDomain {
		domain = addr.Domain
	} else {
		ip = addr.IP
	}
	for _, item := range n.items {
		if item.m.matches(domain, ip, srcIP) {
			return n.get(item.target)
		}
	}
	return nil, ErrNoRuleMatched
}

func (n *Net) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	inner, err := n.dispatch(addr, srcIPFrom(ctx))
	if err != nil {
		return nil, err
	}
	return inner.TCPConnect(ctx, addr)
}

func (n *Net) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	inner, err := n.dispatch(addr, srcIPFrom(ctx))
	if err != nil {
		return nil, err
	}
	return inner.TCPBind(ctx, addr)
}

func (n *Net) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	inner, err := n.dispatch(addr, srcIPFrom(ctx))
	if err != nil {
		return nil, err
	}
	return inner.UDPBind(ctx, addr)
}

func (n *Net) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	inner, err := n.dispatch(model.DomainAddr(host, 0), srcIPFrom(ctx))
	if err != nil {
		return nil, err
	}
	return inner.LookupHost(ctx, host)
}

// --- matchers ---

type anyMatcher struct{}

func (anyMatcher) matches(string, net.IP, net.IP) bool { return true }

type geoMatcher struct {
	geo     GeoLookup
	country string
}

func (g geoMatcher) matches(_ string, ip net.IP, _ net.IP) bool {
	if ip == nil {
		return false
	}
	code, ok := g.geo.Country(ip)
	return ok && strings.EqualFold(code, g.country)
}

type cidrMatcher struct {
	prefixes []netip.Prefix
	bySource bool
}

func newCIDRMatcher(cidrs []string, bySource bool) (*cidrMatcher, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, relayerr.BadRequest("rule: invalid cidr " + c + ": " + err.Error())
		}
		out = append(out, p)
	}
	sortPrefixes(out)
	return &cidrMatcher{prefixes: out, bySource: bySource}, nil
}

func sortPrefixes(p []netip.Prefix) {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && p[j-1].Addr().Less(p[j].Addr()); j-- {
			p[j-1], p[j] = p[j], p[j-1]
		}
	}
}

func (c *cidrMatcher) matches(_ string, ip net.IP, src net.IP) bool {
	target := ip
	if c.bySource {
		target = src
	}
	if target == nil {
		return false
	}
	addr, ok := netip.AddrFromSlice(target)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
