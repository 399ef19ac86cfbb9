package roles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hearthcrm/hearth/pkg/security"
)

var (
	// ErrNotFound is returned when a role, team, or assignment does not exist
	ErrNotFound = errors.New("not found")
	// ErrBuiltIn is returned on attempts to modify or delete a built-in role
	ErrBuiltIn = errors.New("built-in role is protected")
	// ErrEditableInvisible is returned when a field permission would make a
	// field editable but not visible
	ErrEditableInvisible = errors.New("a field cannot be editable without being visible")
)

// Store handles role, team, and field-permission persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new roles store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if role.Permissions == nil {
		role.Permissions = map[string][]string{}
	}
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		INSERT INTO roles (name, label, description, permissions, is_built_in, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err = s.db.QueryRowContext(ctx, query,
		role.Name,
		role.Label,
		role.Description,
		string(permissionsJSON),
		role.IsBuiltIn,
		now,
		now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

func scanRole(scan func(...interface{}) error) (*Role, error) {
	var role Role
	var permissionsJSON string
	var description sql.NullString

	err := scan(
		&role.ID,
		&role.Name,
		&role.Label,
		&description,
		&permissionsJSON,
		&role.IsBuiltIn,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		role.Description = description.String
	}
	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	return &role, nil
}

const roleColumns = "id, name, label, description, permissions, is_built_in, created_at, updated_at"

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = $1", roleID)
	role, err := scanRole(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByName retrieves a role by name
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE name = $1", name)
	role, err := scanRole(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles retrieves all roles
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var result []Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		result = append(result, *role)
	}
	return result, rows.Err()
}

// UpdateRole updates a custom role's label, description, and permissions
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := json.Marshal(role.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	query := `
		UPDATE roles
		SET label = $1, description = $2, permissions = $3, updated_at = $4
		WHERE id = $5 AND is_built_in = FALSE
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		role.Label,
		role.Description,
		string(permissionsJSON),
		now,
		role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role %d: %w", role.ID, ErrBuiltIn)
	}

	role.UpdatedAt = now
	return nil
}

// DeleteRole deletes a custom role. Built-in roles cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM roles WHERE id = $1 AND is_built_in = FALSE", roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("role %d: %w", roleID, ErrBuiltIn)
	}
	return nil
}

// AssignRole grants a role to a user, replacing any existing grant for the
// same pair
func (s *Store) AssignRole(ctx context.Context, assignment *UserRole) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		assignment.UserID,
		assignment.RoleID,
		assignment.GrantedBy,
		now,
		assignment.ExpiresAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	assignment.GrantedAt = now
	return nil
}

// RevokeRole removes a role from a user
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2", userID, roleID)
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check revoke result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("assignment user=%d role=%d: %w", userID, roleID, ErrNotFound)
	}
	return nil
}

// ListUserRoles retrieves a user's unexpired roles
func (s *Store) ListUserRoles(ctx context.Context, userID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.label, r.description, r.permissions, r.is_built_in, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY r.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	defer rows.Close()

	var result []Role
	for rows.Next() {
		role, err := scanRole(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}
		result = append(result, *role)
	}
	return result, rows.Err()
}

// IsAdmin reports whether any of the user's unexpired roles carries the
// wildcard permission
func (s *Store) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	userRoles, err := s.ListUserRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range userRoles {
		if security.HasWildcardPermission(role.Permissions) {
			return true, nil
		}
	}
	return false, nil
}

// UserFieldPermissions retrieves the stored field-permission rows relevant to
// a user for one object, merged across the user's unexpired roles. Where more
// than one role has a row for the same field, the booleans are OR-ed (most
// permissive row wins). Fields with no row at all stay absent, which the
// resolver treats as default-allow.
func (s *Store) UserFieldPermissions(ctx context.Context, userID int64, objectAPIName string) ([]security.FieldPermission, error) {
	query := `
		SELECT fp.field_id, fp.is_visible, fp.is_editable
		FROM field_permissions fp
		JOIN user_roles ur ON ur.role_id = fp.role_id
		JOIN field_definitions fd ON fd.id = fp.field_id
		JOIN object_definitions od ON od.id = fd.object_id
		WHERE ur.user_id = $1
		  AND od.api_name = $2
		  AND (ur.expires_at IS NULL OR ur.expires_at > NOW())
		ORDER BY fp.field_id
	`

	rows, err := s.db.QueryContext(ctx, query, userID, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to query field permissions: %w", err)
	}
	defer rows.Close()

	merged := make(map[int64]security.FieldPermission)
	var order []int64
	for rows.Next() {
		var p security.FieldPermission
		if err := rows.Scan(&p.FieldID, &p.IsVisible, &p.IsEditable); err != nil {
			return nil, fmt.Errorf("failed to scan field permission: %w", err)
		}
		if existing, ok := merged[p.FieldID]; ok {
			existing.IsVisible = existing.IsVisible || p.IsVisible
			existing.IsEditable = existing.IsEditable || p.IsEditable
			merged[p.FieldID] = existing
		} else {
			merged[p.FieldID] = p
			order = append(order, p.FieldID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate field permissions: %w", err)
	}

	result := make([]security.FieldPermission, 0, len(merged))
	for _, id := range order {
		result = append(result, merged[id])
	}
	return result, nil
}

// GetFieldPermissions retrieves the stored matrix rows for one role and object
func (s *Store) GetFieldPermissions(ctx context.Context, roleID int64, objectAPIName string) ([]FieldPermissionRow, error) {
	query := `
		SELECT fp.id, fp.role_id, fp.field_id, fp.is_visible, fp.is_editable, fp.created_at, fp.updated_at
		FROM field_permissions fp
		JOIN field_definitions fd ON fd.id = fp.field_id
		JOIN object_definitions od ON od.id = fd.object_id
		WHERE fp.role_id = $1 AND od.api_name = $2
		ORDER BY fp.field_id
	`

	rows, err := s.db.QueryContext(ctx, query, roleID, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to query field permission matrix: %w", err)
	}
	defer rows.Close()

	var result []FieldPermissionRow
	for rows.Next() {
		var row FieldPermissionRow
		if err := rows.Scan(
			&row.ID,
			&row.RoleID,
			&row.FieldID,
			&row.IsVisible,
			&row.IsEditable,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field permission row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SetFieldPermissions upserts matrix rows for a role in one transaction.
// Rows that would make a field editable but invisible are rejected.
func (s *Store) SetFieldPermissions(ctx context.Context, roleID int64, permissions []FieldPermissionRow) error {
	for _, p := range permissions {
		if p.IsEditable && !p.IsVisible {
			return fmt.Errorf("field %d: %w", p.FieldID, ErrEditableInvisible)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	query := `
		INSERT INTO field_permissions (role_id, field_id, is_visible, is_editable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (role_id, field_id)
		DO UPDATE SET is_visible = EXCLUDED.is_visible, is_editable = EXCLUDED.is_editable, updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	for _, p := range permissions {
		if _, err := tx.ExecContext(ctx, query, roleID, p.FieldID, p.IsVisible, p.IsEditable, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert field permission for field %d: %w", p.FieldID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit field permissions: %w", err)
	}
	return nil
}

// ResetFieldPermissions deletes a role's matrix rows for one object,
// restoring default-allow for all of its fields
func (s *Store) ResetFieldPermissions(ctx context.Context, roleID int64, objectAPIName string) error {
	query := `
		DELETE FROM field_permissions
		WHERE role_id = $1
		  AND field_id IN (
			SELECT fd.id FROM field_definitions fd
			JOIN object_definitions od ON od.id = fd.object_id
			WHERE od.api_name = $2
		  )
	`

	if _, err := s.db.ExecContext(ctx, query, roleID, objectAPIName); err != nil {
		return fmt.Errorf("failed to reset field permissions: %w", err)
	}
	return nil
}

// CreateTeam creates a new team
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	query := `
		INSERT INTO teams (name, label, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		team.Name, team.Label, team.Description, now, now,
	).Scan(&team.ID)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	team.CreatedAt = now
	team.UpdatedAt = now
	return nil
}

// ListTeams retrieves all teams
func (s *Store) ListTeams(ctx context.Context) ([]Team, error) {
	query := `
		SELECT id, name, label, COALESCE(description, ''), created_at, updated_at
		FROM teams ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var result []Team
	for rows.Next() {
		var team Team
		if err := rows.Scan(&team.ID, &team.Name, &team.Label, &team.Description, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		result = append(result, team)
	}
	return result, rows.Err()
}

// DeleteTeam deletes a team; memberships cascade
func (s *Store) DeleteTeam(ctx context.Context, teamID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM teams WHERE id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("team %d: %w", teamID, ErrNotFound)
	}
	return nil
}

// AddTeamMember adds a user to a team
func (s *Store) AddTeamMember(ctx context.Context, member *TeamMember) error {
	query := `
		INSERT INTO team_members (team_id, user_id, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		member.TeamID, member.UserID, member.AddedBy, now,
	).Scan(&member.ID)
	if err == sql.ErrNoRows {
		// already a member
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}

	member.AddedAt = now
	return nil
}

// RemoveTeamMember removes a user from a team
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM team_members WHERE team_id = $1 AND user_id = $2", teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check remove result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("membership team=%d user=%d: %w", teamID, userID, ErrNotFound)
	}
	return nil
}

// ListTeamMembers retrieves a team's members
func (s *Store) ListTeamMembers(ctx context.Context, teamID int64) ([]TeamMember, error) {
	query := `
		SELECT id, team_id, user_id, added_by, added_at
		FROM team_members WHERE team_id = $1 ORDER BY added_at
	`

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var result []TeamMember
	for rows.Next() {
		var m TeamMember
		var addedBy sql.NullInt64
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &addedBy, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		if addedBy.Valid {
			v := addedBy.Int64
			m.AddedBy = &v
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ListUserTeamIDs retrieves the IDs of the teams a user belongs to
func (s *Store) ListUserTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user teams: %w", err)
	}
	defer rows.Close()

	var result []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

// DeleteExpiredUserRoles removes expired role assignments. Run by the
// background cleanup job.
func (s *Store) DeleteExpiredUserRoles(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM user_roles WHERE expires_at IS NOT NULL AND expires_at <= NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired role assignments: %w", err)
	}
	return result.RowsAffected()
}
