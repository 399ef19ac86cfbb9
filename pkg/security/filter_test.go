package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hearthcrm/hearth/pkg/metadata"
)

func contactFields() []metadata.FieldDefinition {
	return []metadata.FieldDefinition{
		{ID: 1, APIName: "first_name", ColumnName: "first_name"},
		{ID: 2, APIName: "email", ColumnName: "email"},
		{ID: 3, APIName: "ssn", ColumnName: "ssn", IsSensitive: true},
	}
}

func sampleRecord() map[string]interface{} {
	return map[string]interface{}{
		"id":              "rec-1",
		"organization_id": int64(7),
		"owner_id":        int64(42),
		"created_at":      "2026-08-01T00:00:00Z",
		"updated_at":      "2026-08-02T00:00:00Z",
		"first_name":      "Ada",
		"email":           "ada@example.com",
		"ssn":             "123-45-6789",
		"custom_fields": map[string]interface{}{
			"first_name": "shadow",
			"referral":   "web",
		},
	}
}

func TestFilterRecordDataKeepsSystemAndVisible(t *testing.T) {
	visible := contactFields()[:2] // first_name, email

	filtered := FilterRecordData(sampleRecord(), visible)

	assert.Equal(t, "rec-1", filtered["id"])
	assert.Equal(t, int64(42), filtered["owner_id"])
	assert.Equal(t, "Ada", filtered["first_name"])
	assert.Equal(t, "ada@example.com", filtered["email"])
	assert.NotContains(t, filtered, "ssn")

	custom, ok := filtered["custom_fields"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "shadow", custom["first_name"])
	assert.NotContains(t, custom, "referral")
}

func TestFilterRecordDataIsIdempotent(t *testing.T) {
	visible := contactFields()[:2]

	once := FilterRecordData(sampleRecord(), visible)
	twice := FilterRecordData(once, visible)

	assert.Equal(t, once, twice)
}

func TestFilterUpdateDataKeepsOnlyEditable(t *testing.T) {
	fields := contactFields()
	editable := NewFieldSet(1) // first_name only

	payload := map[string]interface{}{
		"first_name": "Grace",
		"email":      "grace@example.com",
		"ssn":        "999-99-9999",
		"updated_at": "2026-08-30T00:00:00Z",
		"owner_id":   int64(1), // not a defined field, not system-allowed on writes
		"custom_fields": map[string]interface{}{
			"first_name": "g",
			"referral":   "event",
		},
	}

	filtered := FilterUpdateData(payload, fields, editable)

	assert.Equal(t, "Grace", filtered["first_name"])
	assert.Equal(t, "2026-08-30T00:00:00Z", filtered["updated_at"])
	assert.NotContains(t, filtered, "email")
	assert.NotContains(t, filtered, "ssn")
	assert.NotContains(t, filtered, "owner_id")

	custom, ok := filtered["custom_fields"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "g", custom["first_name"])
	assert.NotContains(t, custom, "referral")
}

func TestUpdateThenReadFilterRoundTrip(t *testing.T) {
	fields := contactFields()
	perms := []FieldPermission{
		{FieldID: 2, IsVisible: true, IsEditable: true},
		{FieldID: 3, IsVisible: false, IsEditable: false},
	}
	access := ResolveFieldPermissions(fields, perms)

	payload := map[string]interface{}{
		"first_name": "Grace",
		"email":      "grace@example.com",
		"ssn":        "999-99-9999",
	}

	written := FilterUpdateData(payload, fields, access.EditableFieldIDs())
	read := FilterRecordData(written, access.ReadableFields())

	// Every key that survived the write filter must survive the read filter
	for key := range written {
		assert.Contains(t, read, key, "key %s editable but not readable after filtering", key)
	}
}

func TestFilterSensitiveFieldsForNonPrivilegedCaller(t *testing.T) {
	fields := []metadata.FieldDefinition{
		{ID: 1, APIName: "first_name"},
		{ID: 2, APIName: "medical_info"}, // sensitive by API name even without the flag
		{ID: 3, APIName: "insurance_provider"},
		{ID: 4, APIName: "payment_method"},
		{ID: 5, APIName: "notes", IsSensitive: true},
	}

	filtered := FilterSensitiveFields(fields, false)

	assert.Len(t, filtered, 1)
	assert.Equal(t, "first_name", filtered[0].APIName)
}

func TestFilterSensitiveFieldsPrivilegedPassthrough(t *testing.T) {
	fields := contactFields()
	assert.Equal(t, fields, FilterSensitiveFields(fields, true))
}

func TestSensitiveFilterComposesWithResolver(t *testing.T) {
	// Role "assistant" has no explicit rows: resolver says medical_info is
	// visible and editable, but the sensitive pass still removes it for a
	// non-privileged caller.
	fields := []metadata.FieldDefinition{
		{ID: 1, APIName: "first_name", ColumnName: "first_name"},
		{ID: 2, APIName: "medical_info", ColumnName: "medical_info", IsSensitive: true},
	}

	access := ResolveFieldPermissions(fields, nil)
	assert.True(t, access.CanRead(2))
	assert.True(t, access.CanEdit(2))

	handed := FilterSensitiveFields(access.ReadableFields(), false)
	assert.Len(t, handed, 1)
	assert.Equal(t, "first_name", handed[0].APIName)
}
