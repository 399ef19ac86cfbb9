// Package security implements the field-level and record-level permission
// engine: resolving per-field read/edit access for a role, filtering record
// payloads on the read and write paths, and assembling the per-request
// record security context.
package security

import (
	"encoding/json"
	"sort"
)

// FieldPermission is one stored (role, field) override row. Absence of a row
// for a field means default-allow, not deny.
type FieldPermission struct {
	FieldID    int64 `json:"field_id"`
	IsVisible  bool  `json:"is_visible"`
	IsEditable bool  `json:"is_editable"`
}

// FieldAccessEntry is the resolved access pair for one field
type FieldAccessEntry struct {
	CanRead bool `json:"can_read"`
	CanEdit bool `json:"can_edit"`
}

// FieldSet is a set of field definition IDs. It serializes to JSON as a
// sorted array and deserializes back into set form. A nil *FieldSet behaves
// as the empty set for reads.
type FieldSet struct {
	ids map[int64]struct{}
}

// NewFieldSet creates a field set containing the given IDs
func NewFieldSet(ids ...int64) *FieldSet {
	s := &FieldSet{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Add inserts an ID into the set
func (s *FieldSet) Add(id int64) {
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

// Contains reports whether the set holds the given ID
func (s *FieldSet) Contains(id int64) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of IDs in the set
func (s *FieldSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the set contents as a sorted slice
func (s *FieldSet) IDs() []int64 {
	if s == nil || len(s.ids) == 0 {
		return []int64{}
	}
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s *FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an array back into set form
func (s *FieldSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	s.ids = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

// RecordSecurityContext is the per-request, per-record capability bundle.
// It is never persisted; it is recomputed on every request and carried to
// callers in JSON form with the field sets as sorted arrays.
type RecordSecurityContext struct {
	UserID           int64     `json:"user_id"`
	IsLoaded         bool      `json:"is_loaded"`
	IsOwner          bool      `json:"is_owner"`
	IsAdmin          bool      `json:"is_admin"`
	CanRead          bool      `json:"can_read"`
	CanEdit          bool      `json:"can_edit"`
	CanDelete        bool      `json:"can_delete"`
	CanManageSharing bool      `json:"can_manage_sharing"`
	VisibleFieldIDs  *FieldSet `json:"visible_field_ids"`
	EditableFieldIDs *FieldSet `json:"editable_field_ids"`
}

// NewFailClosedContext returns the minimum-privilege context used whenever
// context assembly fails or no user is authenticated
func NewFailClosedContext(userID int64) *RecordSecurityContext {
	return &RecordSecurityContext{
		UserID:           userID,
		IsLoaded:         false,
		VisibleFieldIDs:  NewFieldSet(),
		EditableFieldIDs: NewFieldSet(),
	}
}

// NewFullAccessContext returns the context granted to admins and record owners
func NewFullAccessContext(userID int64, isOwner, isAdmin bool, fieldIDs []int64) *RecordSecurityContext {
	return &RecordSecurityContext{
		UserID:           userID,
		IsLoaded:         true,
		IsOwner:          isOwner,
		IsAdmin:          isAdmin,
		CanRead:          true,
		CanEdit:          true,
		CanDelete:        true,
		CanManageSharing: true,
		VisibleFieldIDs:  NewFieldSet(fieldIDs...),
		EditableFieldIDs: NewFieldSet(fieldIDs...),
	}
}
