// Package relayerr defines the engine's error taxonomy and the mapping from
// those errors to HTTP status codes for the control plane.
package relayerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is one of the abstract error kinds from the error handling design.
type Kind string

const (
	KindNotEnabled        Kind = "not_enabled"
	KindNotImplemented    Kind = "not_implemented"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindBadRequest        Kind = "bad_request"
	KindCycleDetected     Kind = "cycle_detected"
	KindUnresolvedNet     Kind = "unresolved_net"
	KindConnectionAborted Kind = "connection_aborted"
	KindTimeout           Kind = "timeout"
	KindUpstream          Kind = "upstream"
)

// Error is a taxonomy-tagged error carrying an HTTP status code.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// StatusCode returns the HTTP status this error maps to.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest, KindCycleDetected, KindUnresolvedNet, KindNotEnabled, KindNotImplemented:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindConnectionAborted:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, msg string) *Error                 { return &Error{Kind: kind, Message: msg} }
func Wrap(kind Kind, msg string, err error) *Error      { return &Error{Kind: kind, Message: msg, Wrapped: err} }
func NotFound(msg string) *Error                        { return New(KindNotFound, msg) }
func BadRequest(msg string) *Error                      { return New(KindBadRequest, msg) }
func Unauthorized(msg string) *Error                    { return New(KindUnauthorized, msg) }
func NotEnabled(msg string) *Error                      { return New(KindNotEnabled, msg) }
func NotImplemented(msg string) *Error                  { return New(KindNotImplemented, msg) }
func Timeout(msg string) *Error                         { return New(KindTimeout, msg) }
func ConnectionAborted() *Error                         { return New(KindConnectionAborted, "connection aborted") }
func CycleDetected(msg string) *Error                   { return New(KindCycleDetected, msg) }
func UnresolvedNet(id string) *Error                    { return New(KindUnresolvedNet, "unresolved net: "+id) }
func Upstream(msg string, err error) *Error             { return Wrap(KindUpstream, msg, err) }

// ErrConnectionAborted is returned by wrapper streams once the kill-signal
// for their connection has fired; compare with errors.Is.
var ErrConnectionAborted = ConnectionAborted()

// Is implements errors.Is support so wrapper streams can return the
// package-level sentinel without allocating.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// StatusCode extracts the HTTP status for any error, following the teacher's
// errors.As-cascade-then-string-match idiom (adapted from gRPC codes to
// HTTP status since this control plane speaks HTTP+WebSocket, not gRPC).
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "token"):
		return http.StatusUnauthorized
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed") || strings.Contains(msg, "parse"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
