// Package webhooks delivers CRM change events to registered HTTP endpoints,
// with HMAC payload signing, per-endpoint rate limiting, and retry with
// exponential backoff.
package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventRecordCreated     EventType = "record.created"
	EventRecordUpdated     EventType = "record.updated"
	EventRecordDeleted     EventType = "record.deleted"
	EventShareGranted      EventType = "share.granted"
	EventShareRevoked      EventType = "share.revoked"
	EventPermissionChanged EventType = "permission.changed"
)

// Event is the payload delivered to subscribed endpoints
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an event with a fresh ID and timestamp
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Webhook is a registered delivery endpoint. The secret is write-only
// through the API; it signs payloads but is never returned.
type Webhook struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Events      []EventType `json:"events"`
	Secret      string      `json:"-"`
	Active      bool        `json:"active"`
	Description string      `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Subscribed reports whether the webhook listens for the event type
func (w *Webhook) Subscribed(eventType EventType) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
