package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthcrm/hearth/pkg/metadata"
)

func leadFields() []metadata.FieldDefinition {
	return []metadata.FieldDefinition{
		{ID: 1, APIName: "first_name", ColumnName: "first_name"},
		{ID: 2, APIName: "email", ColumnName: "email"},
		{ID: 3, APIName: "medical_info", ColumnName: "medical_info", IsSensitive: true},
	}
}

func TestResolveDefaultsToAllowWhenNoRowExists(t *testing.T) {
	access := ResolveFieldPermissions(leadFields(), nil)

	for _, f := range leadFields() {
		assert.True(t, access.CanRead(f.ID), "field %s should default to readable", f.APIName)
		assert.True(t, access.CanEdit(f.ID), "field %s should default to editable", f.APIName)
	}
	assert.Len(t, access.ReadableFields(), 3)
}

func TestResolveTakesRowVerbatim(t *testing.T) {
	perms := []FieldPermission{
		{FieldID: 1, IsVisible: true, IsEditable: false},
		{FieldID: 2, IsVisible: false, IsEditable: false},
	}

	access := ResolveFieldPermissions(leadFields(), perms)

	assert.True(t, access.CanRead(1))
	assert.False(t, access.CanEdit(1))
	assert.False(t, access.CanRead(2))
	assert.False(t, access.CanEdit(2))
	// No row for field 3: default-allow still applies
	assert.True(t, access.CanRead(3))
	assert.True(t, access.CanEdit(3))
}

func TestResolveEditableImpliesReadable(t *testing.T) {
	// An invisible-but-editable row must not produce an editable field
	perms := []FieldPermission{
		{FieldID: 1, IsVisible: false, IsEditable: true},
	}

	access := ResolveFieldPermissions(leadFields(), perms)

	for id, entry := range access.AccessMap() {
		if entry.CanEdit {
			assert.True(t, entry.CanRead, "field %d editable but not readable", id)
		}
	}
	assert.False(t, access.CanEdit(1))
	assert.False(t, access.CanRead(1))
}

func TestResolveIgnoresStalePermissionRows(t *testing.T) {
	perms := []FieldPermission{
		{FieldID: 999, IsVisible: false, IsEditable: false},
	}

	access := ResolveFieldPermissions(leadFields(), perms)

	assert.Len(t, access.ReadableFields(), 3)
	assert.False(t, access.VisibleFieldIDs().Contains(999))
}

func TestWildcardRoleShortCircuitsToAllowAll(t *testing.T) {
	rolePerms := map[string][]string{"*": {"*"}}
	// Explicit narrower rows must be ignored for a wildcard role
	perms := []FieldPermission{
		{FieldID: 1, IsVisible: false, IsEditable: false},
		{FieldID: 2, IsVisible: false, IsEditable: false},
	}

	access := ResolveForRole(rolePerms, leadFields(), perms)

	for _, f := range leadFields() {
		assert.True(t, access.CanRead(f.ID))
		assert.True(t, access.CanEdit(f.ID))
	}
}

func TestHasWildcardPermission(t *testing.T) {
	tests := []struct {
		name  string
		perms map[string][]string
		want  bool
	}{
		{"full wildcard", map[string][]string{"*": {"*"}}, true},
		{"wildcard object only", map[string][]string{"*": {"read"}}, false},
		{"wildcard action on named object", map[string][]string{"lead": {"*"}}, false},
		{"empty", map[string][]string{}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasWildcardPermission(tt.perms))
		})
	}
}

func TestFieldSetJSONRoundTrip(t *testing.T) {
	s := NewFieldSet(3, 1, 2)

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, "[1,2,3]", string(data))

	var decoded FieldSet
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, decoded.Contains(1))
	assert.True(t, decoded.Contains(3))
	assert.False(t, decoded.Contains(4))
	assert.Equal(t, 3, decoded.Len())
}

func TestNilFieldSetBehavesAsEmpty(t *testing.T) {
	var s *FieldSet
	assert.False(t, s.Contains(1))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.IDs())
}
