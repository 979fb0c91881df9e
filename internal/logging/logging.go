package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Configure installs a process-wide slog default logger.
//
// Supported levels: debug, info, warn, error.
func Configure(level string) error {
	return ConfigureWithWrap(level, nil)
}

// ConfigureWithWrap is Configure, but passes the text handler through wrap
// first if non-nil — used to tee records into the control plane's log bus
// (§4.12 WS /api/stream/logs) without changing stderr output.
func ConfigureWithWrap(level string, wrap func(slog.Handler) slog.Handler) error {
	parsed, err := parseLevel(level)
	if err != nil {
		return err
	}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	if wrap != nil {
		h = wrap(h)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", LevelInfo:
		return slog.LevelInfo, nil
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	case LevelError:
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}
