// Package audit records security-relevant events: permission matrix changes,
// sharing grants, API key lifecycle, access denials, and fail-closed
// security-context builds.
package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypePermissionChange EventType = "authz.permission_change"
	EventTypePermissionReset  EventType = "authz.permission_reset"
	EventTypeRoleChange       EventType = "authz.role_change"
	EventTypeAccessDenied     EventType = "authz.access_denied"
	EventTypeFailClosed       EventType = "authz.fail_closed"

	// Sharing events
	EventTypeShareGrant  EventType = "sharing.grant"
	EventTypeShareRevoke EventType = "sharing.revoke"

	// API key events
	EventTypeKeyCreate EventType = "apikey.create"
	EventTypeKeyRevoke EventType = "apikey.revoke"

	// Record events
	EventTypeRecordCreate EventType = "record.create"
	EventTypeRecordUpdate EventType = "record.update"
	EventTypeRecordDelete EventType = "record.delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID    *int64 `json:"actor_id,omitempty"`
	Resource   string `json:"resource,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
