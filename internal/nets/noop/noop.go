// Package noop implements a net whose every capability is disabled,
// returning NotImplemented — useful as a placeholder target while a real
// net type is wired in. Named directly after bassosimone-nop's package,
// whose whole design is "do-nothing" composable primitives.
package noop

import (
	"context"
	"net"

	"relay/internal/model"
	"relay/internal/relayerr"
)

type Net struct{}

var _ model.Net = Net{}

func New() Net { return Net{} }

func (Net) TCPConnect(context.Context, model.Address) (net.Conn, error) {
	return nil, relayerr.NotImplemented("noop: tcp_connect")
}

func (Net) TCPBind(context.Context, model.Address) (net.Listener, error) {
	return nil, relayerr.NotImplemented("noop: tcp_bind")
}

func (Net) UDPBind(context.Context, model.Address) (net.PacketConn, error) {
	return nil, relayerr.NotImplemented("noop: udp_bind")
}

func (Net) LookupHost(context.Context, string) ([]net.IP, error) {
	return nil, relayerr.NotImplemented("noop: lookup_host")
}
