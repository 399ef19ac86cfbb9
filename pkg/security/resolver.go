package security

import "github.com/hearthcrm/hearth/pkg/metadata"

// FieldAccess is the resolved per-field access for one (object, role) pair
type FieldAccess struct {
	fields  []metadata.FieldDefinition
	entries map[int64]FieldAccessEntry
}

// HasWildcardPermission reports whether a role's permission map grants
// full-admin access: object "*" carrying action "*".
func HasWildcardPermission(rolePermissions map[string][]string) bool {
	actions, ok := rolePermissions["*"]
	if !ok {
		return false
	}
	for _, action := range actions {
		if action == "*" {
			return true
		}
	}
	return false
}

// ResolveFieldPermissions computes per-field (canRead, canEdit) pairs for one
// (object, role) pair.
//
// A field with no permission row defaults to canRead=canEdit=true. A field
// with a row takes its booleans verbatim, except that an invisible field is
// never editable. Rows referencing field IDs not present in the definition
// set are ignored.
func ResolveFieldPermissions(fields []metadata.FieldDefinition, perms []FieldPermission) *FieldAccess {
	byField := make(map[int64]FieldPermission, len(perms))
	for _, p := range perms {
		byField[p.FieldID] = p
	}

	access := &FieldAccess{
		fields:  fields,
		entries: make(map[int64]FieldAccessEntry, len(fields)),
	}
	for _, f := range fields {
		entry := FieldAccessEntry{CanRead: true, CanEdit: true}
		if p, ok := byField[f.ID]; ok {
			entry.CanRead = p.IsVisible
			entry.CanEdit = p.IsEditable && p.IsVisible
		}
		access.entries[f.ID] = entry
	}
	return access
}

// ResolveAllowAll resolves every field as fully accessible, ignoring any
// explicit rows. Used for wildcard-permission roles, admins, and owners.
func ResolveAllowAll(fields []metadata.FieldDefinition) *FieldAccess {
	access := &FieldAccess{
		fields:  fields,
		entries: make(map[int64]FieldAccessEntry, len(fields)),
	}
	for _, f := range fields {
		access.entries[f.ID] = FieldAccessEntry{CanRead: true, CanEdit: true}
	}
	return access
}

// ResolveForRole resolves field permissions for a role, short-circuiting to
// allow-all when the role holds the wildcard permission.
func ResolveForRole(rolePermissions map[string][]string, fields []metadata.FieldDefinition, perms []FieldPermission) *FieldAccess {
	if HasWildcardPermission(rolePermissions) {
		return ResolveAllowAll(fields)
	}
	return ResolveFieldPermissions(fields, perms)
}

// ReadableFields returns the field definitions the role may read, in input order
func (a *FieldAccess) ReadableFields() []metadata.FieldDefinition {
	out := make([]metadata.FieldDefinition, 0, len(a.fields))
	for _, f := range a.fields {
		if a.entries[f.ID].CanRead {
			out = append(out, f)
		}
	}
	return out
}

// VisibleFieldIDs returns the set of readable field IDs
func (a *FieldAccess) VisibleFieldIDs() *FieldSet {
	s := NewFieldSet()
	for id, e := range a.entries {
		if e.CanRead {
			s.Add(id)
		}
	}
	return s
}

// EditableFieldIDs returns the set of editable field IDs
func (a *FieldAccess) EditableFieldIDs() *FieldSet {
	s := NewFieldSet()
	for id, e := range a.entries {
		if e.CanEdit {
			s.Add(id)
		}
	}
	return s
}

// AccessMap returns the full per-field access map, for permission matrices
// and programmatic checks
func (a *FieldAccess) AccessMap() map[int64]FieldAccessEntry {
	out := make(map[int64]FieldAccessEntry, len(a.entries))
	for id, e := range a.entries {
		out[id] = e
	}
	return out
}

// CanRead reports whether the given field is readable
func (a *FieldAccess) CanRead(fieldID int64) bool {
	return a.entries[fieldID].CanRead
}

// CanEdit reports whether the given field is editable
func (a *FieldAccess) CanEdit(fieldID int64) bool {
	return a.entries[fieldID].CanEdit
}
