package sharing

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

// GetMigrations returns all sharing migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create sharing_rules table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sharing_rules (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					object_api_name VARCHAR(255) NOT NULL,
					owner_team_id BIGINT REFERENCES teams(id) ON DELETE CASCADE,
					grantee_team_id BIGINT REFERENCES teams(id) ON DELETE CASCADE,
					grantee_role_id BIGINT REFERENCES roles(id) ON DELETE CASCADE,
					access_level VARCHAR(20) NOT NULL,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (grantee_team_id IS NOT NULL OR grantee_role_id IS NOT NULL),
					CHECK (access_level IN ('read', 'read_write'))
				);

				CREATE INDEX idx_sharing_rules_object ON sharing_rules(object_api_name);
			`,
		},
		{
			Version:     2,
			Description: "Create manual_shares table",
			SQL: `
				CREATE TABLE IF NOT EXISTS manual_shares (
					id BIGSERIAL PRIMARY KEY,
					object_api_name VARCHAR(255) NOT NULL,
					record_id UUID NOT NULL,
					grantee_user_id BIGINT,
					grantee_team_id BIGINT REFERENCES teams(id) ON DELETE CASCADE,
					access_level VARCHAR(20) NOT NULL,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP,
					CHECK (grantee_user_id IS NOT NULL OR grantee_team_id IS NOT NULL),
					CHECK (access_level IN ('read', 'read_write'))
				);

				CREATE INDEX idx_manual_shares_record ON manual_shares(object_api_name, record_id);
				CREATE INDEX idx_manual_shares_grantee_user ON manual_shares(grantee_user_id);
				CREATE INDEX idx_manual_shares_expires_at ON manual_shares(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sharing_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM sharing_migrations ORDER BY version")
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
			"INSERT INTO sharing_migrations (version, description) VALUES ($1, $2)",
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
