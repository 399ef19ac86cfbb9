package security

import (
	"strings"

	"github.com/hearthcrm/hearth/pkg/metadata"
)

// API names always treated as sensitive, independent of metadata flags
var sensitiveAPINames = map[string]bool{
	"medical_info":           true,
	"ssn":                    true,
	"social_security_number": true,
	"date_of_birth":          true,
}

var sensitiveAPIPrefixes = []string{
	"insurance_",
	"payment_",
}

// IsSensitiveField reports whether a field is sensitive, either by its flag
// or by its API name
func IsSensitiveField(f metadata.FieldDefinition) bool {
	if f.IsSensitive {
		return true
	}
	if sensitiveAPINames[f.APIName] {
		return true
	}
	for _, prefix := range sensitiveAPIPrefixes {
		if strings.HasPrefix(f.APIName, prefix) {
			return true
		}
	}
	return false
}

// FilterSensitiveFields removes sensitive fields from a field list for
// non-privileged callers. It composes with the permission resolver rather
// than replacing it: a field can be role-visible yet still removed here.
// Privileged callers get the list back unchanged.
func FilterSensitiveFields(fields []metadata.FieldDefinition, privileged bool) []metadata.FieldDefinition {
	if privileged {
		return fields
	}

	out := make([]metadata.FieldDefinition, 0, len(fields))
	for _, f := range fields {
		if IsSensitiveField(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
