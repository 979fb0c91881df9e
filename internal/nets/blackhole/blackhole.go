// Package blackhole implements a terminal net that accepts every
// connection attempt and silently discards all traffic: writes succeed and
// vanish, reads block until the connection is closed. Useful for rule
// targets that should drop a category of traffic without a per-rule reject
// status (a SUPPLEMENTED FEATURE: the distilled spec only implies this
// behavior via the clash importer's worked example, never states its
// semantics explicitly).
package blackhole

import (
	"context"
	"net"
	"time"

	"relay/internal/model"
)

type Net struct{}

var _ model.Net = Net{}

func New() Net { return Net{} }

func (Net) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	return newSinkConn(addr), nil
}

func (Net) TCPBind(context.Context, model.Address) (net.Listener, error) {
	return nil, errBindUnsupported
}

func (Net) UDPBind(context.Context, model.Address) (net.PacketConn, error) {
	return newSinkPacketConn(), nil
}

func (Net) LookupHost(context.Context, string) ([]net.IP, error) {
	return nil, errLookupUnsupported
}

var errBindUnsupported = &blackholeError{"blackhole: tcp_bind is not supported"}
var errLookupUnsupported = &blackholeError{"blackhole: lookup_host is not supported"}

type blackholeError struct{ msg string }

func (e *blackholeError) Error() string { return e.msg }

// sinkConn discards every write and blocks reads until closed, at which
// point reads return net.ErrClosed.
type sinkConn struct {
	addr   model.Address
	closed chan struct{}
}

func newSinkConn(addr model.Address) *sinkConn {
	return &sinkConn{addr: addr, closed: make(chan struct{})}
}

func (c *sinkConn) Read(b []byte) (int, error) {
	<-c.closed
	return 0, net.ErrClosed
}

func (c *sinkConn) Write(b []byte) (int, error) { return len(b), nil }

func (c *sinkConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *sinkConn) LocalAddr() net.Addr                { return sinkAddr{} }
func (c *sinkConn) RemoteAddr() net.Addr               { return sinkAddr{} }
func (c *sinkConn) SetDeadline(time.Time) error        { return nil }
func (c *sinkConn) SetReadDeadline(time.Time) error     { return nil }
func (c *sinkConn) SetWriteDeadline(time.Time) error    { return nil }

type sinkAddr struct{}

func (sinkAddr) Network() string { return "blackhole" }
func (sinkAddr) String() string  { return "blackhole" }

type sinkPacketConn struct {
	closed chan struct{}
}

func newSinkPacketConn() *sinkPacketConn { return &sinkPacketConn{closed: make(chan struct{})} }

func (p *sinkPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	<-p.closed
	return 0, nil, net.ErrClosed
}

func (p *sinkPacketConn) WriteTo(b []byte, addr net.Addr) (int, error) { return len(b), nil }

func (p *sinkPacketConn) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}

func (p *sinkPacketConn) LocalAddr() net.Addr               { return sinkAddr{} }
func (p *sinkPacketConn) SetDeadline(time.Time) error       { return nil }
func (p *sinkPacketConn) SetReadDeadline(time.Time) error   { return nil }
func (p *sinkPacketConn) SetWriteDeadline(time.Time) error  { return nil }
