// Package sharing implements record-level sharing: criteria-based sharing
// rules, individually granted manual shares, and the access evaluator the
// security context builder consults for read/write access beyond ownership.
//
// Sharing extends read and write access only. It never grants delete or
// sharing-management rights.
package sharing

import "time"

// Access levels a rule or share can grant
const (
	AccessLevelRead      = "read"
	AccessLevelReadWrite = "read_write"
)

// SharingRule grants access to records of one object. The rule matches a
// record when OwnerTeamID is nil (any owner) or the record's owner belongs
// to that team. It applies to a user holding the grantee role or team
// membership.
type SharingRule struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	ObjectAPIName string    `json:"object_api_name"`
	OwnerTeamID   *int64    `json:"owner_team_id,omitempty"`
	GranteeTeamID *int64    `json:"grantee_team_id,omitempty"`
	GranteeRoleID *int64    `json:"grantee_role_id,omitempty"`
	AccessLevel   string    `json:"access_level"`
	CreatedBy     *int64    `json:"created_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ManualShare grants one user or team access to one record
type ManualShare struct {
	ID            int64      `json:"id"`
	ObjectAPIName string     `json:"object_api_name"`
	RecordID      string     `json:"record_id"`
	GranteeUserID *int64     `json:"grantee_user_id,omitempty"`
	GranteeTeamID *int64     `json:"grantee_team_id,omitempty"`
	AccessLevel   string     `json:"access_level"`
	GrantedBy     *int64     `json:"granted_by,omitempty"`
	GrantedAt     time.Time  `json:"granted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}
