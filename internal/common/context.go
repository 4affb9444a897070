package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyCaseID    contextKey = "case_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithCaseID adds the case under evaluation to the context
func WithCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, ContextKeyCaseID, caseID)
}

// CaseIDFromContext extracts the case ID from context
func CaseIDFromContext(ctx context.Context) string {
	if caseID, ok := ctx.Value(ContextKeyCaseID).(string); ok {
		return caseID
	}
	return ""
}
