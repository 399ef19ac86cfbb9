package security

import "github.com/hearthcrm/hearth/pkg/metadata"

// System-managed columns always present in read results
var systemColumns = map[string]bool{
	"id":              true,
	"organization_id": true,
	"created_at":      true,
	"updated_at":      true,
	"owner_id":        true,
}

const customFieldsKey = "custom_fields"

// FilterRecordData prunes a raw record down to system columns plus the
// columns and API names of the visible fields. The nested custom_fields map
// is filtered by API name. The operation is idempotent: filtering an
// already-filtered record with the same field set returns the same result.
func FilterRecordData(record map[string]interface{}, visibleFields []metadata.FieldDefinition) map[string]interface{} {
	if record == nil {
		return nil
	}

	allowed := make(map[string]bool, len(visibleFields)*2)
	allowedAPI := make(map[string]bool, len(visibleFields))
	for _, f := range visibleFields {
		allowed[f.ColumnName] = true
		allowed[f.APIName] = true
		allowedAPI[f.APIName] = true
	}

	out := make(map[string]interface{}, len(record))
	for key, value := range record {
		if key == customFieldsKey {
			if nested, ok := value.(map[string]interface{}); ok {
				out[key] = filterByAPIName(nested, allowedAPI)
			}
			continue
		}
		if systemColumns[key] || allowed[key] {
			out[key] = value
		}
	}
	return out
}

// FilterUpdateData prunes a write payload down to keys that map, by column
// name or API name, to an editable field. updated_at is system-managed and
// always passes. The nested custom_fields map is filtered by API name.
func FilterUpdateData(payload map[string]interface{}, fields []metadata.FieldDefinition, editable *FieldSet) map[string]interface{} {
	if payload == nil {
		return nil
	}

	allowed := make(map[string]bool, len(fields)*2)
	allowedAPI := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !editable.Contains(f.ID) {
			continue
		}
		allowed[f.ColumnName] = true
		allowed[f.APIName] = true
		allowedAPI[f.APIName] = true
	}

	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if key == customFieldsKey {
			if nested, ok := value.(map[string]interface{}); ok {
				out[key] = filterByAPIName(nested, allowedAPI)
			}
			continue
		}
		if key == "updated_at" || allowed[key] {
			out[key] = value
		}
	}
	return out
}

func filterByAPIName(nested map[string]interface{}, allowedAPI map[string]bool) map[string]interface{} {
	out := make(map[string]interface{}, len(nested))
	for key, value := range nested {
		if allowedAPI[key] {
			out[key] = value
		}
	}
	return out
}
