package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
)

// newLogger creates a logger with "HH:MM:SS.ms" timestamps.
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// ctxKey is the type for context keys used in this package.
type ctxKey int

const (
	loggerKey ctxKey = iota
	repoPathKey
)

// withLogger returns a new context with the logger attached.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger, falling back to log.Default().
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// withRepoPath records the --repo flag value.
func withRepoPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, repoPathKey, path)
}

// repoPathFromContext retrieves the --repo flag value, defaulting to ".".
func repoPathFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(repoPathKey).(string); ok && p != "" {
		return p
	}
	return "."
}
