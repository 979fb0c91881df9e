package graph

import (
	"context"
	"net"

	"relay/internal/model"
	"relay/internal/stream"
	"relay/internal/tracker"
)

// inboundDecorator wraps a server's resolved outbound net so every flow it
// originates is stamped with the server chain and wrapped by C8's
// accounting streams, per §4.6: "the decorator stamps the call context with
// the server chain, records destination domain/socket pairs, and
// constructs the wrapper stream (C8) for returned TCP/UDP handles."
type inboundDecorator struct {
	serverName string
	inner      model.Net
	trk        *tracker.Tracker
}

var _ model.Net = (*inboundDecorator)(nil)

func newInboundDecorator(serverName string, inner model.Net, trk *tracker.Tracker) *inboundDecorator {
	return &inboundDecorator{serverName: serverName, inner: inner, trk: trk}
}

func (d *inboundDecorator) stampedCtx(ctx context.Context, target model.Address) context.Context {
	ic := model.InboundContext{ServerChain: []string{d.serverName}, Target: target}
	if prev, ok := model.InboundContextFrom(ctx); ok {
		ic.ServerChain = append(append([]string{}, prev.ServerChain...), d.serverName)
		ic.SourceAddr = prev.SourceAddr
	}
	return model.WithInboundContext(ctx, ic)
}

func (d *inboundDecorator) TCPConnect(ctx context.Context, addr model.Address) (net.Conn, error) {
	stamped := d.stampedCtx(ctx, addr)
	ic, _ := model.InboundContextFrom(stamped)
	rec := d.trk.Start(ic)

	conn, err := d.inner.TCPConnect(stamped, addr)
	if err != nil {
		d.trk.Drop(rec)
		return nil, err
	}
	return stream.NewConn(conn, d.trk, rec), nil
}

func (d *inboundDecorator) TCPBind(ctx context.Context, addr model.Address) (net.Listener, error) {
	return d.inner.TCPBind(ctx, addr)
}

func (d *inboundDecorator) UDPBind(ctx context.Context, addr model.Address) (net.PacketConn, error) {
	stamped := d.stampedCtx(ctx, addr)
	ic, _ := model.InboundContextFrom(stamped)
	rec := d.trk.StartUDP(ic)

	pc, err := d.inner.UDPBind(stamped, addr)
	if err != nil {
		d.trk.Drop(rec)
		return nil, err
	}
	return stream.NewPacketConn(pc, d.trk, rec), nil
}

func (d *inboundDecorator) LookupHost(ctx context.Context, host string) ([]net.IP, error) {
	return d.inner.LookupHost(ctx, host)
}

// WithSourceAddr stamps ctx with the connection's source address ahead of
// calling through a server's decorated net, so downstream SrcIpCidr rule
// matchers can see it.
func WithSourceAddr(ctx context.Context, source model.Address) context.Context {
	return model.WithInboundContext(ctx, model.InboundContext{SourceAddr: source})
}
