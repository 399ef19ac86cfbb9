package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes and releases the logger
	Close() error
}

// NewEvent builds an event with the timestamp and request ID filled in
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, actorID *int64, resource, resourceID, message string) *Event {
	return &Event{
		Timestamp:  time.Now(),
		EventType:  eventType,
		Status:     status,
		ActorID:    actorID,
		Resource:   resource,
		ResourceID: resourceID,
		RequestID:  contextkeys.RequestID(ctx),
		Message:    message,
	}
}

// NopLogger discards all events
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// LogrusLogger writes audit events to the application log. Used as a
// fallback when the database logger is unavailable.
type LogrusLogger struct {
	logger *logrus.Logger
}

// NewLogrusLogger creates an audit logger backed by the application logger
func NewLogrusLogger(logger *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{logger: logger}
}

// Log writes the event as a structured log line
func (l *LogrusLogger) Log(ctx context.Context, event *Event) error {
	fields := logrus.Fields{
		"event_type":  event.EventType,
		"status":      event.Status,
		"resource":    event.Resource,
		"resource_id": event.ResourceID,
		"request_id":  event.RequestID,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	l.logger.WithFields(fields).Info(event.Message)
	return nil
}

// Close is a no-op for the log-backed logger
func (l *LogrusLogger) Close() error { return nil }
