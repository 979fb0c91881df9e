// Package httpconnect implements the HTTP CONNECT proxy server (C11): the
// representative inbound protocol state machine, speaking HTTP/1.1 with
// preserved header casing, tunnel upgrade on CONNECT, and absolute-form
// rewriting plus hop-by-hop scrubbing on every other method.
package httpconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"relay/internal/model"
	"relay/internal/registry"
)

// Server is the running accept loop; it satisfies registry.ServerHandle.
type Server struct {
	ln  net.Listener
	log *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

var _ registry.ServerHandle = (*Server)(nil)

// New is a registry.ServerFactory: it binds the listen net at opt.Bind and
// starts the accept loop, returning a handle the graph can later Stop.
func New(ctx context.Context, rawOpt json.RawMessage, listenNet, outboundNet model.Net) (registry.ServerHandle, error) {
	var opt Opt
	if err := json.Unmarshal(rawOpt, &opt); err != nil {
		return nil, fmt.Errorf("httpconnect: decode opt: %w", err)
	}
	bindAddr, err := model.ParseAddress(opt.Bind)
	if err != nil {
		return nil, fmt.Errorf("httpconnect: parse bind address: %w", err)
	}

	ln, err := listenNet.TCPBind(ctx, bindAddr)
	if err != nil {
		return nil, fmt.Errorf("httpconnect: bind %s: %w", opt.Bind, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		ln:     ln,
		log:    slog.With("component", "httpconnect", "bind", opt.Bind),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	h := &handler{opt: opt, outbound: outboundNet, log: srv.log}
	go srv.acceptLoop(runCtx, h)

	return srv, nil
}

// acceptLoop accepts connections until the listener is closed by Stop; a
// per-connection failure never aborts the loop itself (§4.11's invariant).
func (s *Server) acceptLoop(ctx context.Context, h *handler) {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("accept failed", "err", err)
			continue
		}
		go h.serve(ctx, conn)
	}
}

// Stop closes the listener, unblocking Accept, and waits for the accept
// loop goroutine to observe the close and return. In-flight connections are
// left to finish or to observe the tracker's own kill signal; this only
// drains the accept loop per §4.6's full-stop contract.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("httpconnect: close listener: %w", err)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// SchemaJSON is registered alongside New so the server registry validates a
// server opt of this type before calling New.
func SchemaJSON() []byte { return schemaJSON }
