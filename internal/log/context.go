// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	sessionIDKey ctxKey = "session_id"
	requestIDKey ctxKey = "request_id"
)

// ContextWithRequestID stores the HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithSessionID stores the bridge session ID in the context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session ID from context if present.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithComponentFromContext returns a component logger enriched with the
// session and request IDs from ctx, when present.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	logger := WithComponent(component)
	if sid := SessionIDFromContext(ctx); sid != "" {
		logger = logger.With().Str("session_id", sid).Logger()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		logger = logger.With().Str("request_id", rid).Logger()
	}
	return logger
}
