// Package tracing generates correlation identifiers for connections and spans.
package tracing

import "github.com/google/uuid"

// NewSpanID returns a UUIDv7 string suitable for correlating log lines
// belonging to the same operation.
func NewSpanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Extraordinarily unlikely (exhausted system randomness); fall back
		// to a v4 UUID rather than panicking a live proxy engine.
		return uuid.New().String()
	}
	return id.String()
}

// NewConnectionID returns a UUID identifying a connection record.
func NewConnectionID() string {
	return uuid.New().String()
}
