// Package logger provides structured logging for dzmesh.
package logger

import "context"

type contextKey string

const (
	loggerKey       contextKey = "dzmesh.logger"
	messageIDKey    contextKey = "dzmesh.message_id"
	expeditionIDKey contextKey = "dzmesh.expedition_id"
	requestIDKey    contextKey = "dzmesh.request_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context.
// Returns the default logger if none is set.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithMessageID tags the context with the envelope id being handled.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey, id)
}

// MessageIDFromContext returns the envelope id, or "".
func MessageIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey).(string)
	return id
}

// WithExpeditionID tags the context with the expedition being changed.
func WithExpeditionID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, expeditionIDKey, id)
}

// ExpeditionIDFromContext returns the expedition id, or 0.
func ExpeditionIDFromContext(ctx context.Context) uint32 {
	id, _ := ctx.Value(expeditionIDKey).(uint32)
	return id
}

// WithRequestID adds an admin HTTP request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// L is FromContext enriched with the ids carried by ctx.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id := MessageIDFromContext(ctx); id != "" {
		l = l.With("message_id", id)
	}
	if id := ExpeditionIDFromContext(ctx); id != 0 {
		l = l.With("expedition_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With("request_id", id)
	}
	return l
}
