// Package local implements the `local` terminal net: plain OS sockets via
// the standard library dialer/listener/resolver.
package local

import (
	"context"
	"encoding/json"
	"net"

	"relay/internal/model"
)

// Opt is local's declarative config: an optional bind device/address for
// outbound dials (the machine's default route is used when empty).
type Opt struct {
	BindAddr string `json:"bind_addr,omitempty"`
}

// Net dials and listens directly on the host network stack.
type Net struct {
	dialer *net.Dialer
	lc     *net.ListenConfig
	res    *net.Resolver
}

var _ model.Net = (*Net)(nil)

func New(opt json.RawMessage) (*Net, error) {
	var parsed Opt
	if len(opt) > 0 {
		if err := json.Unmarshal(opt, &parsed); err != nil {
			return nil, err
		}
	}
	dialer := &net.Dialer{}
	if parsed.BindAddr != "" {
		local, err := net.ResolveTCPAddr("tcp", parsed.BindAddr)
		if err == nil {
			dialer.LocalAddr = local
		}
	}
	return &Net{dialer: dialer, lc: &net.ListenConfig{}, res: net.DefaultResolver}, nil
}

func (n *Net) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	return n.dialer.DialContext(ctx, "tcp", addr.String())
}

func (n *Net) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	return n.lc.Listen(ctx, "tcp", addr.String())
}

func (n *Net) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	return n.lc.ListenPacket(ctx, "udp", addr.String())
}

func (n *Net) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := n.res.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, len(addrs))
	for i, a := range addrs {
		out[i] = a.IP
	}
	return out, nil
}
