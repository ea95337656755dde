package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	keyRID ctxKey = iota
	keyUpdateID
	keyUserID
	keyChatID
	keyLogger
	keyHandler
	keyTraceID
)

func withValue(ctx context.Context, key ctxKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func valueFrom[T any](ctx context.Context, key ctxKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return zero
}

// WithLogger stores log in ctx so deeper layers inherit its attributes.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if log == nil {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if lg := valueFrom[*slog.Logger](ctx, keyLogger); lg != nil {
		return lg
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withValue(ctx, keyRID, rid)
}

// RIDFrom extracts rid from context if present.
func RIDFrom(ctx context.Context) string { return valueFrom[string](ctx, keyRID) }

// WithUpdateMeta attaches update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = withValue(ctx, keyUpdateID, updateID)
	ctx = withValue(ctx, keyUserID, userID)
	return withValue(ctx, keyChatID, chatID)
}

// WithUser attaches only the user id; used outside of Telegram updates (timers, sweeps).
func WithUser(ctx context.Context, userID int64) context.Context {
	return withValue(ctx, keyUserID, userID)
}

// UserIDFrom extracts the user id from context.
func UserIDFrom(ctx context.Context) int64 { return valueFrom[int64](ctx, keyUserID) }

// ChatIDFrom extracts the chat id from context.
func ChatIDFrom(ctx context.Context) int64 { return valueFrom[int64](ctx, keyChatID) }

// UpdateIDFrom extracts the update id from context.
func UpdateIDFrom(ctx context.Context) int { return valueFrom[int](ctx, keyUpdateID) }

// WithHandler records which handler is serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, keyHandler, handler)
}

// HandlerFrom returns the handler name from context if present.
func HandlerFrom(ctx context.Context) string { return valueFrom[string](ctx, keyHandler) }

// WithTrace attaches a trace id that survives across the outbound calls of one update.
func WithTrace(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withValue(ctx, keyTraceID, traceID)
}

// TraceIDFrom extracts the trace id from context.
func TraceIDFrom(ctx context.Context) string { return valueFrom[string](ctx, keyTraceID) }
