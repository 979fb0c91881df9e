// Package dns implements a resolution-only net backed by an upstream DNS
// server, plus a reverse-mapping overlay: every resolved domain's answer
// addresses are remembered so a later IP-keyed rule lookup (e.g. GeoIP or
// IP-CIDR matching on a connection that only carries the resolved address)
// can be attributed back to the domain that produced it. Grounded on
// bassosimone-nop's direct `github.com/miekg/dns` dependency.
package dns

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"relay/internal/model"
	"relay/internal/relayerr"
)

// Opt is the dns net's declarative config.
type Opt struct {
	Upstream string `json:"upstream"` // "host:port", default port 53
	Timeout  string `json:"timeout,omitempty"`
}

// Net resolves LookupHost via an upstream DNS server and records a
// reverse IP->domain overlay. It does not carry traffic itself: TCP/UDP
// capabilities return NotImplemented, matching its role as a pure
// resolution overlay sitting in front of a routing net (§1, enrichment
// beyond the distilled spec's scope).
type Net struct {
	upstream string
	timeout  time.Duration
	client   *dns.Client

	mu      sync.RWMutex
	reverse map[string]string // ip string -> domain
}

var _ model.Net = (*Net)(nil)

func New(opt json.RawMessage) (*Net, error) {
	var parsed Opt
	if err := json.Unmarshal(opt, &parsed); err != nil {
		return nil, relayerr.BadRequest("dns: invalid opt: " + err.Error())
	}
	if parsed.Upstream == "" {
		return nil, relayerr.BadRequest("dns: upstream is required")
	}
	upstream := parsed.Upstream
	if _, _, err := net.SplitHostPort(upstream); err != nil {
		upstream = net.JoinHostPort(upstream, "53")
	}
	timeout := 5 * time.Second
	if parsed.Timeout != "" {
		d, err := time.ParseDuration(parsed.Timeout)
		if err != nil {
			return nil, relayerr.BadRequest("dns: invalid timeout: " + err.Error())
		}
		timeout = d
	}
	return &Net{
		upstream: upstream,
		timeout:  timeout,
		client:   &dns.Client{Timeout: timeout},
		reverse:  map[string]string{},
	}, nil
}

func (n *Net) TCPConnect(context.Context, model.Address) (net.Conn, error) {
	return nil, relayerr.NotImplemented("dns: tcp_connect")
}

func (n *Net) TCPBind(context.Context, model.Address) (net.Listener, error) {
	return nil, relayerr.NotImplemented("dns: tcp_bind")
}

func (n *Net) UDPBind(context.Context, model.Address) (net.PacketConn, error) {
	return nil, relayerr.NotImplemented("dns: udp_bind")
}

// LookupHost queries the upstream server for A and AAAA records, recording
// each answer into the reverse overlay before returning.
func (n *Net) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	fqdn := dns.Fqdn(host)

	var out []net.IP
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		resp, _, err := n.client.ExchangeContext(ctx, msg, n.upstream)
		if err != nil {
			lastErr = err
			continue // best-effort: one record type failing shouldn't void the other
		}
		for _, rr := range resp.Answer {
			var ip net.IP
			switch rec := rr.(type) {
			case *dns.A:
				ip = rec.A
			case *dns.AAAA:
				ip = rec.AAAA
			default:
				continue
			}
			out = append(out, ip)
			n.recordReverse(ip, host)
		}
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, relayerr.Upstream("dns: exchange failed", lastErr)
		}
		return nil, relayerr.NotFound("dns: no records for " + host)
	}
	return out, nil
}

func (n *Net) recordReverse(ip net.IP, domain string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reverse[ip.String()] = domain
}

// ReverseLookup returns the domain that last resolved to ip via this net,
// if any.
func (n *Net) ReverseLookup(ip net.IP) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	d, ok := n.reverse[ip.String()]
	return d, ok
}
