package model

import "context"

type inboundContextKey struct{}

// WithInboundContext stamps ctx with the per-flow InboundContext, as done by
// the inbound decorator (C6) before a net's capabilities are invoked.
func WithInboundContext(ctx context.Context, ic InboundContext) context.Context {
	return context.WithValue(ctx, inboundContextKey{}, ic)
}

// InboundContextFrom retrieves the InboundContext stamped by
// WithInboundContext, if any.
func InboundContextFrom(ctx context.Context) (InboundContext, bool) {
	ic, ok := ctx.Value(inboundContextKey{}).(InboundContext)
	return ic, ok
}
