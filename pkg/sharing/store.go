package sharing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a rule or share does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidAccessLevel is returned for access levels other than
	// read and read_write
	ErrInvalidAccessLevel = errors.New("invalid access level")
	// ErrNoGrantee is returned when neither a user nor a team grantee is set
	ErrNoGrantee = errors.New("a grantee user or team is required")
)

func validateAccessLevel(level string) error {
	if level != AccessLevelRead && level != AccessLevelReadWrite {
		return fmt.Errorf("%q: %w", level, ErrInvalidAccessLevel)
	}
	return nil
}

// Store handles sharing rule and manual share persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new sharing store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRule creates a sharing rule
func (s *Store) CreateRule(ctx context.Context, rule *SharingRule) error {
	if err := validateAccessLevel(rule.AccessLevel); err != nil {
		return err
	}
	if rule.GranteeTeamID == nil && rule.GranteeRoleID == nil {
		return ErrNoGrantee
	}

	query := `
		INSERT INTO sharing_rules (name, object_api_name, owner_team_id, grantee_team_id, grantee_role_id, access_level, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		rule.Name,
		rule.ObjectAPIName,
		rule.OwnerTeamID,
		rule.GranteeTeamID,
		rule.GranteeRoleID,
		rule.AccessLevel,
		rule.CreatedBy,
		now,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("failed to create sharing rule: %w", err)
	}

	rule.CreatedAt = now
	return nil
}

// ListRules retrieves sharing rules, optionally filtered by object
func (s *Store) ListRules(ctx context.Context, objectAPIName string) ([]SharingRule, error) {
	query := `
		SELECT id, name, object_api_name, owner_team_id, grantee_team_id, grantee_role_id, access_level, created_by, created_at
		FROM sharing_rules
		WHERE ($1 = '' OR object_api_name = $1)
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to list sharing rules: %w", err)
	}
	defer rows.Close()

	var result []SharingRule
	for rows.Next() {
		var rule SharingRule
		var ownerTeam, granteeTeam, granteeRole, createdBy sql.NullInt64
		if err := rows.Scan(
			&rule.ID,
			&rule.Name,
			&rule.ObjectAPIName,
			&ownerTeam,
			&granteeTeam,
			&granteeRole,
			&rule.AccessLevel,
			&createdBy,
			&rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sharing rule: %w", err)
		}
		rule.OwnerTeamID = nullableInt64(ownerTeam)
		rule.GranteeTeamID = nullableInt64(granteeTeam)
		rule.GranteeRoleID = nullableInt64(granteeRole)
		rule.CreatedBy = nullableInt64(createdBy)
		result = append(result, rule)
	}
	return result, rows.Err()
}

// DeleteRule deletes a sharing rule
func (s *Store) DeleteRule(ctx context.Context, ruleID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sharing_rules WHERE id = $1", ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete sharing rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %d: %w", ruleID, ErrNotFound)
	}
	return nil
}

// CreateShare grants one user or team access to one record
func (s *Store) CreateShare(ctx context.Context, share *ManualShare) error {
	if err := validateAccessLevel(share.AccessLevel); err != nil {
		return err
	}
	if share.GranteeUserID == nil && share.GranteeTeamID == nil {
		return ErrNoGrantee
	}

	query := `
		INSERT INTO manual_shares (object_api_name, record_id, grantee_user_id, grantee_team_id, access_level, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		share.ObjectAPIName,
		share.RecordID,
		share.GranteeUserID,
		share.GranteeTeamID,
		share.AccessLevel,
		share.GrantedBy,
		now,
		share.ExpiresAt,
	).Scan(&share.ID)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}

	share.GrantedAt = now
	return nil
}

// DeleteShare revokes a manual share
func (s *Store) DeleteShare(ctx context.Context, shareID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM manual_shares WHERE id = $1", shareID)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("share %d: %w", shareID, ErrNotFound)
	}
	return nil
}

// ListSharesForRecord retrieves the unexpired shares on one record
func (s *Store) ListSharesForRecord(ctx context.Context, objectAPIName, recordID string) ([]ManualShare, error) {
	query := `
		SELECT id, object_api_name, record_id, grantee_user_id, grantee_team_id, access_level, granted_by, granted_at, expires_at
		FROM manual_shares
		WHERE object_api_name = $1 AND record_id = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, objectAPIName, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var result []ManualShare
	for rows.Next() {
		var share ManualShare
		var granteeUser, granteeTeam, grantedBy sql.NullInt64
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&share.ID,
			&share.ObjectAPIName,
			&share.RecordID,
			&granteeUser,
			&granteeTeam,
			&share.AccessLevel,
			&grantedBy,
			&share.GrantedAt,
			&expiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		share.GranteeUserID = nullableInt64(granteeUser)
		share.GranteeTeamID = nullableInt64(granteeTeam)
		share.GrantedBy = nullableInt64(grantedBy)
		if expiresAt.Valid {
			t := expiresAt.Time
			share.ExpiresAt = &t
		}
		result = append(result, share)
	}
	return result, rows.Err()
}

// hasManualShare reports whether an unexpired manual share grants the user
// (directly or via team membership) the required level on the record
func (s *Store) hasManualShare(ctx context.Context, userID int64, objectAPIName, recordID string, writeRequired bool) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM manual_shares ms
		WHERE ms.object_api_name = $1 AND ms.record_id = $2
		  AND (ms.expires_at IS NULL OR ms.expires_at > NOW())
		  AND (
			ms.grantee_user_id = $3
			OR ms.grantee_team_id IN (SELECT team_id FROM team_members WHERE user_id = $3)
		  )
		  AND ($4 = FALSE OR ms.access_level = 'read_write')
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, objectAPIName, recordID, userID, writeRequired).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check manual shares: %w", err)
	}
	return count > 0, nil
}

// hasRuleAccess reports whether a sharing rule grants the user the required
// level on records owned by ownerID
func (s *Store) hasRuleAccess(ctx context.Context, userID int64, objectAPIName string, ownerID int64, writeRequired bool) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM sharing_rules sr
		WHERE sr.object_api_name = $1
		  AND (
			(sr.grantee_team_id IS NOT NULL AND sr.grantee_team_id IN (SELECT team_id FROM team_members WHERE user_id = $2))
			OR (sr.grantee_role_id IS NOT NULL AND sr.grantee_role_id IN (
				SELECT role_id FROM user_roles
				WHERE user_id = $2 AND (expires_at IS NULL OR expires_at > NOW())
			))
		  )
		  AND (
			sr.owner_team_id IS NULL
			OR sr.owner_team_id IN (SELECT team_id FROM team_members WHERE user_id = $3)
		  )
		  AND ($4 = FALSE OR sr.access_level = 'read_write')
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, objectAPIName, userID, ownerID, writeRequired).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check sharing rules: %w", err)
	}
	return count > 0, nil
}

// DeleteExpiredShares removes expired manual shares. Run by the background
// cleanup job.
func (s *Store) DeleteExpiredShares(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM manual_shares WHERE expires_at IS NOT NULL AND expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired shares: %w", err)
	}
	return result.RowsAffected()
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}
