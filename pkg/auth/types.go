// Package auth implements API key authentication: key generation and
// storage, bearer-token middleware, and scope checks.
package auth

import (
	"context"
	"time"

	"github.com/hearthcrm/hearth/pkg/contextkeys"
)

// API key scopes
const (
	ScopeRecordsRead  = "records:read"
	ScopeRecordsWrite = "records:write"
	ScopeAdmin        = "admin"
)

// APIKey is a stored API key. The plaintext token is returned exactly once
// at creation; only its SHA-256 hash is persisted.
type APIKey struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Hash       string     `json:"-"`
	Scopes     []string   `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Context is the authenticated caller attached to a request
type Context struct {
	UserID int64
	KeyID  string
	Scopes []string
}

// HasScope reports whether the caller holds the scope. The admin scope
// implies every other scope.
func (c *Context) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// FromContext retrieves the authenticated caller, or nil
func FromContext(ctx context.Context) *Context {
	if v, ok := ctx.Value(contextkeys.AuthKey).(*Context); ok {
		return v
	}
	return nil
}

// UserID returns the authenticated user's ID, or 0 when unauthenticated
func UserID(ctx context.Context) int64 {
	if c := FromContext(ctx); c != nil {
		return c.UserID
	}
	return 0
}
