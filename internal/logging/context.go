package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. "request_dispatched").
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldUserID identifies the user a request or message concerns.
	FieldUserID = "user_id"
	// FieldRequestKind names the flag request kind being processed.
	FieldRequestKind = "request_kind"
	// FieldRequestKey is the disambiguating key from a flag file name.
	FieldRequestKey = "request_key"
	// FieldChannel names a delivery channel.
	FieldChannel = "channel"
)

type contextKey int

const (
	userIDKey contextKey = iota
	requestKindKey
	requestKeyKey
)

// WithUserID tags ctx with the user a call is acting on.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
}

// WithRequest tags ctx with the flag request being dispatched.
func WithRequest(ctx context.Context, kind, key string) context.Context {
	ctx = context.WithValue(ctx, requestKindKey, kind)
	return context.WithValue(ctx, requestKeyKey, key)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldUserID, v))
	}
	if v, ok := ctx.Value(requestKindKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRequestKind, v))
	}
	if v, ok := ctx.Value(requestKeyKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRequestKey, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
