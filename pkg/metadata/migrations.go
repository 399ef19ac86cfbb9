package metadata

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

// GetMigrations returns all metadata migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create object_definitions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS object_definitions (
					id BIGSERIAL PRIMARY KEY,
					api_name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL,
					plural_name VARCHAR(255),
					is_standard BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_object_definitions_api_name ON object_definitions(api_name);
			`,
		},
		{
			Version:     2,
			Description: "Create field_definitions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS field_definitions (
					id BIGSERIAL PRIMARY KEY,
					object_id BIGINT NOT NULL REFERENCES object_definitions(id) ON DELETE CASCADE,
					api_name VARCHAR(255) NOT NULL,
					column_name VARCHAR(255) NOT NULL,
					label VARCHAR(255) NOT NULL,
					field_type VARCHAR(50) NOT NULL,
					is_standard BOOLEAN NOT NULL DEFAULT FALSE,
					is_custom BOOLEAN NOT NULL DEFAULT TRUE,
					is_sensitive BOOLEAN NOT NULL DEFAULT FALSE,
					is_visible BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(object_id, api_name)
				);

				CREATE INDEX idx_field_definitions_object_id ON field_definitions(object_id);
				CREATE INDEX idx_field_definitions_api_name ON field_definitions(api_name);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS metadata_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM metadata_migrations ORDER BY version")
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
			"INSERT INTO metadata_migrations (version, description) VALUES ($1, $2)",
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
