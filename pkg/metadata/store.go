package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an object or field does not exist
var ErrNotFound = errors.New("not found")

// Store handles object and field definition persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new metadata store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateObject creates a new object definition
func (s *Store) CreateObject(ctx context.Context, obj *ObjectDefinition) error {
	query := `
		INSERT INTO object_definitions (api_name, label, plural_name, is_standard, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		obj.APIName,
		obj.Label,
		obj.PluralName,
		obj.IsStandard,
		now,
		now,
	).Scan(&obj.ID)
	if err != nil {
		return fmt.Errorf("failed to create object definition: %w", err)
	}

	obj.CreatedAt = now
	obj.UpdatedAt = now
	return nil
}

// GetObject retrieves an object definition by API name
func (s *Store) GetObject(ctx context.Context, apiName string) (*ObjectDefinition, error) {
	query := `
		SELECT id, api_name, label, COALESCE(plural_name, ''), is_standard, created_at, updated_at
		FROM object_definitions
		WHERE api_name = $1
	`

	var obj ObjectDefinition
	err := s.db.QueryRowContext(ctx, query, apiName).Scan(
		&obj.ID,
		&obj.APIName,
		&obj.Label,
		&obj.PluralName,
		&obj.IsStandard,
		&obj.CreatedAt,
		&obj.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("object %s: %w", apiName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object definition: %w", err)
	}

	return &obj, nil
}

// ListObjects retrieves all object definitions
func (s *Store) ListObjects(ctx context.Context) ([]ObjectDefinition, error) {
	query := `
		SELECT id, api_name, label, COALESCE(plural_name, ''), is_standard, created_at, updated_at
		FROM object_definitions
		ORDER BY api_name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list object definitions: %w", err)
	}
	defer rows.Close()

	var objects []ObjectDefinition
	for rows.Next() {
		var obj ObjectDefinition
		if err := rows.Scan(
			&obj.ID,
			&obj.APIName,
			&obj.Label,
			&obj.PluralName,
			&obj.IsStandard,
			&obj.CreatedAt,
			&obj.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan object definition: %w", err)
		}
		objects = append(objects, obj)
	}

	return objects, rows.Err()
}

// DeleteObject deletes a custom object definition. Fields cascade at the
// database level. Standard objects cannot be deleted.
func (s *Store) DeleteObject(ctx context.Context, apiName string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM object_definitions WHERE api_name = $1 AND is_standard = FALSE",
		apiName,
	)
	if err != nil {
		return fmt.Errorf("failed to delete object definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("object %s not deletable: %w", apiName, ErrNotFound)
	}

	return nil
}

// CreateField creates a new field definition
func (s *Store) CreateField(ctx context.Context, field *FieldDefinition) error {
	query := `
		INSERT INTO field_definitions (object_id, api_name, column_name, label, field_type, is_standard, is_custom, is_sensitive, is_visible, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		field.ObjectID,
		field.APIName,
		field.ColumnName,
		field.Label,
		field.FieldType,
		field.IsStandard,
		field.IsCustom,
		field.IsSensitive,
		field.IsVisible,
		now,
		now,
	).Scan(&field.ID)
	if err != nil {
		return fmt.Errorf("failed to create field definition: %w", err)
	}

	field.CreatedAt = now
	field.UpdatedAt = now
	return nil
}

// UpdateField updates the mutable attributes of a field definition
func (s *Store) UpdateField(ctx context.Context, field *FieldDefinition) error {
	query := `
		UPDATE field_definitions
		SET label = $1, field_type = $2, is_sensitive = $3, is_visible = $4, updated_at = $5
		WHERE id = $6
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		field.Label,
		field.FieldType,
		field.IsSensitive,
		field.IsVisible,
		now,
		field.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update field definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("field %d: %w", field.ID, ErrNotFound)
	}

	field.UpdatedAt = now
	return nil
}

// DeleteField deletes a custom field definition
func (s *Store) DeleteField(ctx context.Context, fieldID int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM field_definitions WHERE id = $1 AND is_standard = FALSE",
		fieldID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete field definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("field %d not deletable: %w", fieldID, ErrNotFound)
	}

	return nil
}

// ListFields retrieves all field definitions for an object by API name
func (s *Store) ListFields(ctx context.Context, objectAPIName string) ([]FieldDefinition, error) {
	query := `
		SELECT f.id, f.object_id, f.api_name, f.column_name, f.label, f.field_type,
		       f.is_standard, f.is_custom, f.is_sensitive, f.is_visible, f.created_at, f.updated_at
		FROM field_definitions f
		JOIN object_definitions o ON o.id = f.object_id
		WHERE o.api_name = $1
		ORDER BY f.id
	`

	rows, err := s.db.QueryContext(ctx, query, objectAPIName)
	if err != nil {
		return nil, fmt.Errorf("failed to list field definitions: %w", err)
	}
	defer rows.Close()

	var fields []FieldDefinition
	for rows.Next() {
		var f FieldDefinition
		if err := rows.Scan(
			&f.ID,
			&f.ObjectID,
			&f.APIName,
			&f.ColumnName,
			&f.Label,
			&f.FieldType,
			&f.IsStandard,
			&f.IsCustom,
			&f.IsSensitive,
			&f.IsVisible,
			&f.CreatedAt,
			&f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan field definition: %w", err)
		}
		fields = append(fields, f)
	}

	return fields, rows.Err()
}

// GetObjectWithFields retrieves an object and its fields in one call
func (s *Store) GetObjectWithFields(ctx context.Context, apiName string) (*ObjectWithFields, error) {
	obj, err := s.GetObject(ctx, apiName)
	if err != nil {
		return nil, err
	}

	fields, err := s.ListFields(ctx, apiName)
	if err != nil {
		return nil, err
	}

	return &ObjectWithFields{Object: *obj, Fields: fields}, nil
}
