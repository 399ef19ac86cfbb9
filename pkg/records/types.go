// Package records implements CRM record storage and the service that applies
// the security engine to every read and write: field filtering, sensitive
// field masking, record-level access checks, sharing, and change events.
package records

import (
	"time"

	"github.com/hearthcrm/hearth/pkg/security"
)

// Record is one stored CRM record. Data holds standard field values keyed by
// column name; CustomFields holds custom field values keyed by API name.
type Record struct {
	ID             string                 `json:"id"`
	OrganizationID int64                  `json:"organization_id"`
	ObjectAPIName  string                 `json:"object_api_name"`
	OwnerID        int64                  `json:"owner_id"`
	Data           map[string]interface{} `json:"data"`
	CustomFields   map[string]interface{} `json:"custom_fields"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Raw flattens the record into the shape the field filters operate on:
// system columns and standard field values at the top level, custom fields
// nested under custom_fields.
func (r *Record) Raw() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Data)+6)
	for k, v := range r.Data {
		out[k] = v
	}
	out["id"] = r.ID
	out["organization_id"] = r.OrganizationID
	out["owner_id"] = r.OwnerID
	out["created_at"] = r.CreatedAt
	out["updated_at"] = r.UpdatedAt
	if r.CustomFields != nil {
		nested := make(map[string]interface{}, len(r.CustomFields))
		for k, v := range r.CustomFields {
			nested[k] = v
		}
		out["custom_fields"] = nested
	}
	return out
}

// RecordView is a record as one user is allowed to see it, paired with the
// security context that produced it
type RecordView struct {
	Record   map[string]interface{}          `json:"record"`
	Security *security.RecordSecurityContext `json:"security"`
}
