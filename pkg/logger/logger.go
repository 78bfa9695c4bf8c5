// Package logger configures the process-wide slog logger and carries a
// request id through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type requestIDKey struct{}

// Setup installs the default logger. format is "json" or "text"; anything
// else falls back to text. Unknown levels fall back to info. Debug logging
// also records the source location.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a logger writing to w with the same rules as Setup.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl <= slog.LevelDebug}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel accepts the slog level names in any case, including offsets
// such as "debug+2".
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// FromContext returns the default logger, tagged with the request id if ctx
// carries one.
func FromContext(ctx context.Context) *slog.Logger {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// Duration starts timing op and returns a func that logs the elapsed time at
// debug level. Typical use is defer logger.Duration(log, "op")().
func Duration(log *slog.Logger, op string) func() {
	start := time.Now()
	return func() {
		log.Debug("operation finished",
			"op", op,
			"duration_ms", float64(time.Since(start).Microseconds())/1000,
		)
	}
}
