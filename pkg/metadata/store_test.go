package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateObject(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO object_definitions").
		WithArgs("invoice", "Invoice", "Invoices", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	store := NewStore(db)
	obj := &ObjectDefinition{APIName: "invoice", Label: "Invoice", PluralName: "Invoices"}
	err = store.CreateObject(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, int64(42), obj.ID)
	assert.False(t, obj.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObjectNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM object_definitions").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewStore(db)
	_, err = store.GetObject(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "object_id", "api_name", "column_name", "label", "field_type",
		"is_standard", "is_custom", "is_sensitive", "is_visible", "created_at", "updated_at",
	}).
		AddRow(1, 10, "email", "email", "Email", FieldTypeEmail, true, false, false, true, now, now).
		AddRow(2, 10, "medical_info", "medical_info", "Medical Info", FieldTypeText, true, false, true, true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM field_definitions f").
		WithArgs("lead").
		WillReturnRows(rows)

	store := NewStore(db)
	fields, err := store.ListFields(context.Background(), "lead")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "email", fields[0].APIName)
	assert.True(t, fields[1].IsSensitive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteObjectProtectsStandard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM object_definitions").
		WithArgs("lead").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.DeleteObject(context.Background(), "lead")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCachedStoreHitsDatabaseOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM object_definitions").
		WithArgs("lead").
		WillReturnRows(sqlmock.NewRows([]string{"id", "api_name", "label", "plural_name", "is_standard", "created_at", "updated_at"}).
			AddRow(10, "lead", "Lead", "Leads", true, now, now))
	mock.ExpectQuery("SELECT (.+) FROM field_definitions f").
		WithArgs("lead").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "object_id", "api_name", "column_name", "label", "field_type",
			"is_standard", "is_custom", "is_sensitive", "is_visible", "created_at", "updated_at",
		}).AddRow(1, 10, "email", "email", "Email", FieldTypeEmail, true, false, false, true, now, now))

	cached, err := NewCachedStore(NewStore(db), 16)
	require.NoError(t, err)

	first, err := cached.GetObjectWithFields(context.Background(), "lead")
	require.NoError(t, err)
	require.Len(t, first.Fields, 1)

	// Second call must be served from cache; no further expectations set.
	second, err := cached.GetObjectWithFields(context.Background(), "lead")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedStoreInvalidatesOnFieldWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	objectRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "api_name", "label", "plural_name", "is_standard", "created_at", "updated_at"}).
			AddRow(10, "lead", "Lead", "Leads", true, now, now)
	}
	fieldCols := []string{
		"id", "object_id", "api_name", "column_name", "label", "field_type",
		"is_standard", "is_custom", "is_sensitive", "is_visible", "created_at", "updated_at",
	}

	mock.ExpectQuery("SELECT (.+) FROM object_definitions").WithArgs("lead").WillReturnRows(objectRows())
	mock.ExpectQuery("SELECT (.+) FROM field_definitions f").WithArgs("lead").
		WillReturnRows(sqlmock.NewRows(fieldCols))

	mock.ExpectQuery("INSERT INTO field_definitions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	mock.ExpectQuery("SELECT (.+) FROM object_definitions").WithArgs("lead").WillReturnRows(objectRows())
	mock.ExpectQuery("SELECT (.+) FROM field_definitions f").WithArgs("lead").
		WillReturnRows(sqlmock.NewRows(fieldCols).
			AddRow(5, 10, "nickname", "nickname", "Nickname", FieldTypeText, false, true, false, true, now, now))

	cached, err := NewCachedStore(NewStore(db), 16)
	require.NoError(t, err)
	ctx := context.Background()

	fields, err := cached.ListFields(ctx, "lead")
	require.NoError(t, err)
	assert.Empty(t, fields)

	err = cached.CreateField(ctx, "lead", &FieldDefinition{
		ObjectID: 10, APIName: "nickname", ColumnName: "nickname",
		Label: "Nickname", FieldType: FieldTypeText, IsCustom: true, IsVisible: true,
	})
	require.NoError(t, err)

	fields, err = cached.ListFields(ctx, "lead")
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "nickname", fields[0].APIName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
