package roles

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all role migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL,
					description TEXT,
					permissions JSONB NOT NULL DEFAULT '{}',
					is_built_in BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     2,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					UNIQUE(user_id, role_id)
				);

				CREATE INDEX idx_user_roles_user_id ON user_roles(user_id);
				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
				CREATE INDEX idx_user_roles_expires_at ON user_roles(expires_at);
			`,
		},
		{
			Version:     3,
			Description: "Create teams tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS team_members (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					added_by BIGINT,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, user_id)
				);

				CREATE INDEX idx_team_members_team_id ON team_members(team_id);
				CREATE INDEX idx_team_members_user_id ON team_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create field_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS field_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					field_id BIGINT NOT NULL REFERENCES field_definitions(id) ON DELETE CASCADE,
					is_visible BOOLEAN NOT NULL DEFAULT TRUE,
					is_editable BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, field_id)
				);

				CREATE INDEX idx_field_permissions_role_id ON field_permissions(role_id);
				CREATE INDEX idx_field_permissions_field_id ON field_permissions(field_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS roles_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM roles_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO roles_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
