package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store handles record persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new record store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMigrations creates the records table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		id UUID PRIMARY KEY,
		organization_id BIGINT NOT NULL DEFAULT 0,
		object_api_name VARCHAR(255) NOT NULL,
		owner_id BIGINT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}',
		custom_fields JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_records_object ON records(object_api_name);
	CREATE INDEX IF NOT EXISTS idx_records_owner ON records(owner_id);
	CREATE INDEX IF NOT EXISTS idx_records_object_created ON records(object_api_name, created_at DESC);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// Create inserts a new record
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Data == nil {
		rec.Data = map[string]interface{}{}
	}
	if rec.CustomFields == nil {
		rec.CustomFields = map[string]interface{}{}
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}
	custom, err := json.Marshal(rec.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	query := `
		INSERT INTO records (id, organization_id, object_api_name, owner_id, data, custom_fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.OrganizationID, rec.ObjectAPIName, rec.OwnerID, data, custom, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

const recordColumns = "id, organization_id, object_api_name, owner_id, data, custom_fields, created_at, updated_at"

func scanRecord(row interface{ Scan(...interface{}) error }) (*Record, error) {
	var rec Record
	var data, custom []byte
	if err := row.Scan(
		&rec.ID,
		&rec.OrganizationID,
		&rec.ObjectAPIName,
		&rec.OwnerID,
		&data,
		&custom,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to parse record data: %w", err)
	}
	if err := json.Unmarshal(custom, &rec.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to parse custom fields: %w", err)
	}
	return &rec, nil
}

// Get retrieves a record by object and ID
func (s *Store) Get(ctx context.Context, objectAPIName, recordID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE object_api_name = $1 AND id = $2",
		objectAPIName, recordID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// List retrieves records of one object, newest first
func (s *Store) List(ctx context.Context, objectAPIName string, limit, offset int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE object_api_name = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		objectAPIName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

// Update replaces a record's data and custom fields
func (s *Store) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal record data: %w", err)
	}
	custom, err := json.Marshal(rec.CustomFields)
	if err != nil {
		return fmt.Errorf("failed to marshal custom fields: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE records SET data = $3, custom_fields = $4, updated_at = $5 WHERE object_api_name = $1 AND id = $2",
		rec.ObjectAPIName, rec.ID, data, custom, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record
func (s *Store) Delete(ctx context.Context, objectAPIName, recordID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE object_api_name = $1 AND id = $2",
		objectAPIName, recordID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByObject returns record counts per object, used for gauge metrics
func (s *Store) CountByObject(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT object_api_name, COUNT(*) FROM records GROUP BY object_api_name")
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var object string
		var count int64
		if err := rows.Scan(&object, &count); err != nil {
			return nil, fmt.Errorf("failed to scan record count: %w", err)
		}
		counts[object] = count
	}
	return counts, rows.Err()
}
