package roles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roleRows(t *testing.T) *sqlmock.Rows {
	t.Helper()
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "name", "label", "description", "permissions", "is_built_in", "created_at", "updated_at",
	}).AddRow(1, "admin", "Administrator", "Full access", `{"*":["*"]}`, true, now, now)
}

func TestGetRoleParsesPermissions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM roles WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(roleRows(t))

	store := NewStore(db)
	role, err := store.GetRole(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "admin", role.Name)
	assert.Equal(t, []string{"*"}, role.Permissions["*"])
	assert.True(t, role.IsBuiltIn)
}

func TestIsAdminDetectsWildcardRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM roles r").
		WithArgs(int64(42)).
		WillReturnRows(roleRows(t))

	store := NewStore(db)
	isAdmin, err := store.IsAdmin(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func TestIsAdminFalseForNarrowRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "label", "description", "permissions", "is_built_in", "created_at", "updated_at",
	}).AddRow(2, "sales_rep", "Sales Representative", "", `{"lead":["read","write"]}`, true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM roles r").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	store := NewStore(db)
	isAdmin, err := store.IsAdmin(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestUserFieldPermissionsMergesMostPermissive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"field_id", "is_visible", "is_editable"}).
		AddRow(10, true, false).
		AddRow(10, false, false). // second role's row for the same field
		AddRow(11, false, false)

	mock.ExpectQuery("SELECT fp.field_id").
		WithArgs(int64(7), "lead").
		WillReturnRows(rows)

	store := NewStore(db)
	perms, err := store.UserFieldPermissions(context.Background(), 7, "lead")
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, int64(10), perms[0].FieldID)
	assert.True(t, perms[0].IsVisible)
	assert.False(t, perms[0].IsEditable)
	assert.False(t, perms[1].IsVisible)
}

func TestSetFieldPermissionsRejectsEditableInvisible(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	err = store.SetFieldPermissions(context.Background(), 1, []FieldPermissionRow{
		{FieldID: 10, IsVisible: false, IsEditable: true},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEditableInvisible))
}

func TestSetFieldPermissionsUpsertsInTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO field_permissions").
		WithArgs(int64(1), int64(10), true, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO field_permissions").
		WithArgs(int64(1), int64(11), true, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewStore(db)
	err = store.SetFieldPermissions(context.Background(), 1, []FieldPermissionRow{
		{FieldID: 10, IsVisible: true, IsEditable: true},
		{FieldID: 11, IsVisible: true, IsEditable: false},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetFieldPermissionsDeletesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM field_permissions").
		WithArgs(int64(1), "lead").
		WillReturnResult(sqlmock.NewResult(0, 3))

	store := NewStore(db)
	require.NoError(t, store.ResetFieldPermissions(context.Background(), 1, "lead"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRoleProtectsBuiltIn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM roles").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewStore(db)
	err = store.DeleteRole(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBuiltIn))
}

func TestDeleteExpiredUserRoles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM user_roles WHERE expires_at").
		WillReturnResult(sqlmock.NewResult(0, 2))

	store := NewStore(db)
	n, err := store.DeleteExpiredUserRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
