// Package metadata manages the dynamic CRM object schema: object definitions
// and their field definitions, stored in PostgreSQL and cached in-process.
package metadata

import "time"

// ObjectDefinition describes a dynamically-configurable entity type (e.g. Contact)
type ObjectDefinition struct {
	ID         int64     `json:"id"`
	APIName    string    `json:"api_name"`
	Label      string    `json:"label"`
	PluralName string    `json:"plural_name,omitempty"`
	IsStandard bool      `json:"is_standard"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FieldDefinition describes one field of an object, including type and
// sensitivity flags
type FieldDefinition struct {
	ID          int64     `json:"id"`
	ObjectID    int64     `json:"object_id"`
	APIName     string    `json:"api_name"`
	ColumnName  string    `json:"column_name"`
	Label       string    `json:"label"`
	FieldType   string    `json:"field_type"`
	IsStandard  bool      `json:"is_standard"`
	IsCustom    bool      `json:"is_custom"`
	IsSensitive bool      `json:"is_sensitive"`
	IsVisible   bool      `json:"is_visible"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Field types supported by the schema
const (
	FieldTypeText     = "text"
	FieldTypeNumber   = "number"
	FieldTypeDate     = "date"
	FieldTypeBoolean  = "boolean"
	FieldTypeEmail    = "email"
	FieldTypePhone    = "phone"
	FieldTypePicklist = "picklist"
	FieldTypeCurrency = "currency"
)

// ObjectWithFields bundles an object definition with its field definitions
type ObjectWithFields struct {
	Object ObjectDefinition  `json:"object"`
	Fields []FieldDefinition `json:"fields"`
}
