package controlplane

import (
	"context"
	"log/slog"
	"sync"
)

// logBus is a lossy broadcast of formatted log lines to WS subscribers,
// mirroring tracker.Tracker's subscribe/publish discipline: a slow consumer
// drops frames rather than stall the logger that's producing them.
type logBus struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func newLogBus() *logBus {
	return &logBus{subs: map[chan []byte]struct{}{}}
}

func (b *logBus) subscribe() chan []byte {
	ch := make(chan []byte, 256)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *logBus) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *logBus) publish(line []byte) {
	// Copy so every subscriber gets its own backing array; the handler
	// reuses its encoding buffer across calls.
	cp := make([]byte, len(line))
	copy(cp, line)

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- cp:
		default:
		}
	}
}

// logBusHandler wraps a slog.Handler, republishing every formatted record's
// bytes to the log bus in addition to delegating to the wrapped handler.
type logBusHandler struct {
	slog.Handler
	bus *logBus
	mu  sync.Mutex
	buf []byte
}

func newLogBusHandler(next slog.Handler, bus *logBus) *logBusHandler {
	return &logBusHandler{Handler: next, bus: bus}
}

func (h *logBusHandler) Handle(ctx context.Context, rec slog.Record) error {
	h.mu.Lock()
	h.buf = h.buf[:0]
	h.buf = append(h.buf, rec.Time.Format("15:04:05.000")...)
	h.buf = append(h.buf, ' ')
	h.buf = append(h.buf, rec.Level.String()...)
	h.buf = append(h.buf, ' ')
	h.buf = append(h.buf, rec.Message...)
	rec.Attrs(func(a slog.Attr) bool {
		h.buf = append(h.buf, ' ')
		h.buf = append(h.buf, a.Key...)
		h.buf = append(h.buf, '=')
		h.buf = append(h.buf, a.Value.String()...)
		return true
	})
	h.bus.publish(h.buf)
	h.mu.Unlock()

	return h.Handler.Handle(ctx, rec)
}

func (h *logBusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logBusHandler{Handler: h.Handler.WithAttrs(attrs), bus: h.bus}
}

func (h *logBusHandler) WithGroup(name string) slog.Handler {
	return &logBusHandler{Handler: h.Handler.WithGroup(name), bus: h.bus}
}
