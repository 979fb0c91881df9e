// Package stream implements C8: TCP/UDP wrapper streams that check a
// connection's kill-signal before every I/O operation and publish stream
// events onto the connection tracker's bus. Grounded directly on
// bassosimone-nop's observedConn, adapted from slog-logging to
// event-publishing and given kill-signal preemption.
package stream

import (
	"net"
	"sync"
	"time"

	"relay/internal/model"
	"relay/internal/relayerr"
	"relay/internal/tracker"
)

// Conn wraps a net.Conn, publishing Inbound/Outbound events to rec and
// refusing I/O once rec's kill-signal has fired.
type Conn struct {
	inner net.Conn
	rec   *tracker.Record
	trk   *tracker.Tracker

	closeOnce sync.Once
}

// NewConn wraps inner as a tracked TCP stream. uuid's record has already
// been created via trk.Start/StartUDP before this call.
func NewConn(inner net.Conn, trk *tracker.Tracker, rec *tracker.Record) *Conn {
	return &Conn{inner: inner, trk: trk, rec: rec}
}

var _ net.Conn = (*Conn)(nil)

func (c *Conn) Read(b []byte) (int, error) {
	if c.rec.Killed() {
		return 0, relayerr.ErrConnectionAborted
	}
	n, err := c.inner.Read(b)
	if n > 0 {
		c.rec.AddIn(n)
		c.trk.Publish(model.Event{Kind: model.EventInbound, UUID: c.rec.UUID, N: n})
	}
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	if c.rec.Killed() {
		return 0, relayerr.ErrConnectionAborted
	}
	n, err := c.inner.Write(b)
	if n > 0 {
		c.rec.AddOut(n)
		c.trk.Publish(model.Event{Kind: model.EventOutbound, UUID: c.rec.UUID, N: n})
	}
	return n, err
}

// Close is idempotent: only the first call publishes Close and drops the
// tracker record (§4.8).
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.inner.Close()
		c.trk.Drop(c.rec)
	})
	return err
}

func (c *Conn) LocalAddr() net.Addr                  { return c.inner.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr                 { return c.inner.RemoteAddr() }
func (c *Conn) SetDeadline(t time.Time) error         { return c.inner.SetDeadline(t) }
func (c *Conn) SetReadDeadline(t time.Time) error     { return c.inner.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error    { return c.inner.SetWriteDeadline(t) }

// PacketConn wraps a net.PacketConn for UDP flows, publishing
// UdpInbound/UdpOutbound events.
type PacketConn struct {
	inner net.PacketConn
	rec   *tracker.Record
	trk   *tracker.Tracker

	closeOnce sync.Once
}

func NewPacketConn(inner net.PacketConn, trk *tracker.Tracker, rec *tracker.Record) *PacketConn {
	return &PacketConn{inner: inner, trk: trk, rec: rec}
}

var _ net.PacketConn = (*PacketConn)(nil)

func (p *PacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	if p.rec.Killed() {
		return 0, nil, relayerr.ErrConnectionAborted
	}
	n, addr, err := p.inner.ReadFrom(b)
	if n > 0 {
		p.rec.AddIn(n)
		p.trk.Publish(model.Event{Kind: model.EventUDPInbound, UUID: p.rec.UUID, N: n, From: addrFromNetAddr(addr)})
	}
	return n, addr, err
}

func (p *PacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if p.rec.Killed() {
		return 0, relayerr.ErrConnectionAborted
	}
	n, err := p.inner.WriteTo(b, addr)
	if n > 0 {
		p.rec.AddOut(n)
		p.trk.Publish(model.Event{Kind: model.EventUDPOutbound, UUID: p.rec.UUID, N: n, To: addrFromNetAddr(addr)})
	}
	return n, err
}

func (p *PacketConn) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.inner.Close()
		p.trk.Drop(p.rec)
	})
	return err
}

func (p *PacketConn) LocalAddr() net.Addr            { return p.inner.LocalAddr() }
func (p *PacketConn) SetDeadline(t time.Time) error  { return p.inner.SetDeadline(t) }
func (p *PacketConn) SetReadDeadline(t time.Time) error  { return p.inner.SetReadDeadline(t) }
func (p *PacketConn) SetWriteDeadline(t time.Time) error { return p.inner.SetWriteDeadline(t) }

func addrFromNetAddr(addr net.Addr) model.Address {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return model.Address{}
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return model.DomainAddr(host, parsePort(port))
	}
	return model.SocketAddr(ip, parsePort(port))
}

func parsePort(s string) uint16 {
	var n uint16
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + uint16(c-'0')
	}
	return n
}
