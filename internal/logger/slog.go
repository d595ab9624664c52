// Package logger provides the relay's structured logging surface: a
// package-level slog.Logger plus context-scoped helpers keyed by session,
// peer and request id.
package logger

import (
	"context"
	"log/slog"
	"os"
)

var slogger *slog.Logger

// Init initializes the package-level logger. jsonOutput selects JSON vs.
// text handler; the relay targets LAN/localhost deployment and logs to
// stdout only, so there is no log file or rotation concern here.
func Init(jsonOutput bool, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slogger = slog.New(handler)
	slog.SetDefault(slogger)
}

// Slog returns the package logger, falling back to slog.Default() if Init
// was never called (e.g. in tests).
func Slog() *slog.Logger {
	if slogger == nil {
		return slog.Default()
	}
	return slogger
}

type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeySessionID contextKey = "session_id"
	ContextKeyPeerID    contextKey = "peer_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, id)
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, id)
}

func WithPeerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyPeerID, id)
}

// WithContext returns a logger enriched with whichever of
// request/session/peer id are present on ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := Slog()
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		l = l.With("request_id", v)
	}
	if v := ctx.Value(ContextKeySessionID); v != nil {
		l = l.With("session_id", v)
	}
	if v := ctx.Value(ContextKeyPeerID); v != nil {
		l = l.With("peer_id", v)
	}
	return l
}

func InfoContext(ctx context.Context, msg string, args ...any)  { WithContext(ctx).Info(msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { WithContext(ctx).Error(msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { WithContext(ctx).Warn(msg, args...) }
func DebugContext(ctx context.Context, msg string, args ...any) { WithContext(ctx).Debug(msg, args...) }
