package controlplane

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"relay/internal/storage"
)

// Server is the HTTP+WS control-plane surface (§4.12): it wraps an Engine,
// the userdata store, and the log broadcast bus behind a routed
// http.ServeMux, gated by an optional shared bearer token.
type Server struct {
	engine   *Engine
	userdata storage.Store

	resolveStorage func(folder string) (storage.Store, error)

	upgrader websocket.Upgrader
	logs     *logBus

	httpSrv *http.Server
}

// New wires a Server around an already-started Engine. token, if non-empty,
// is compared literally against every request's Authorization header.
func New(engine *Engine, userdata storage.Store, resolveStorage func(folder string) (storage.Store, error), token string) *Server {
	s := &Server{
		engine:         engine,
		userdata:       userdata,
		resolveStorage: resolveStorage,
		upgrader:       websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logs:           newLogBus(),
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, requireToken(token, h))
	}

	route("GET /api/get", s.handleGetElided)
	route("GET /api/state", s.handleState)
	route("GET /api/config", s.handleGetConfig)
	route("POST /api/config", s.handlePostConfig)
	route("POST /api/net/{name}", s.handlePostSelect)
	route("GET /api/net/{name}/delay", s.handleDelay)
	route("DELETE /api/connection/{uuid}", s.handleDeleteConnection)
	route("DELETE /api/connection", s.handleDeleteAllConnections)
	route("GET /api/userdata", s.handleUserdata)
	route("GET /api/userdata/{key}", s.handleUserdata)
	route("PUT /api/userdata/{key}", s.handleUserdata)
	route("DELETE /api/userdata", s.handleUserdata)
	route("DELETE /api/userdata/{key}", s.handleUserdata)
	route("GET /api/stream/connection", s.handleStreamConnections)
	route("GET /api/stream/logs", s.handleStreamLogs)

	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// LogHandler wraps next so every formatted record is also broadcast to the
// log bus behind /api/stream/logs.
func (s *Server) LogHandler(next slog.Handler) slog.Handler {
	return newLogBusHandler(next, s.logs)
}

// ListenAndServe binds addr and serves until ctx is cancelled or Stop is
// called, mirroring the accept-loop-as-goroutine shutdown idiom used by the
// proxy servers (C11).
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv.Addr = addr

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts the HTTP server down, waiting at most until ctx's
// deadline for in-flight requests (including open WS streams) to drain.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
