// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Context
	// Set by: auth.Middleware (pkg/auth/middleware.go)
	// Required by: all protected API endpoints, record service, security context builder
	AuthKey Key = "auth_context"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// AuditLoggerKey contains audit.Logger
	// Set by: audit.Middleware (pkg/audit/middleware.go)
	AuditLoggerKey Key = "audit_logger"
)

// WithAuth adds authentication context to the context
func WithAuth(ctx context.Context, authCtx interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, authCtx)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID extracts the request ID from the context, or "" if unset
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}
