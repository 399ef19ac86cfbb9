// Package roles manages roles, user role assignments, teams, and the
// per-role field permission matrix.
package roles

import "time"

// Role represents a named permission bundle. Permissions map object API
// names to allowed actions; the wildcard entry "*": ["*"] marks a
// full-admin role.
type Role struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Label       string              `json:"label"`
	Description string              `json:"description,omitempty"`
	Permissions map[string][]string `json:"permissions"`
	IsBuiltIn   bool                `json:"is_built_in"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// UserRole assigns a role to a user, optionally with an expiry
type UserRole struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	RoleID    int64      `json:"role_id"`
	GrantedBy *int64     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Team groups users for sharing-rule targeting
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeamMember is a user's membership in a team
type TeamMember struct {
	ID      int64     `json:"id"`
	TeamID  int64     `json:"team_id"`
	UserID  int64     `json:"user_id"`
	AddedBy *int64    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// FieldPermissionRow is a stored (role, field) visibility/editability
// override. No row for a (role, field) pair means default-allow.
type FieldPermissionRow struct {
	ID         int64     `json:"id"`
	RoleID     int64     `json:"role_id"`
	FieldID    int64     `json:"field_id"`
	IsVisible  bool      `json:"is_visible"`
	IsEditable bool      `json:"is_editable"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
