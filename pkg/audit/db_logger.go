package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger writes audit events to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger and ensures its table
func NewDBLogger(ctx context.Context, db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}
	if err := logger.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}
	return logger, nil
}

func (l *DBLogger) ensureTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		actor_id BIGINT,
		resource VARCHAR(100),
		resource_id VARCHAR(255),
		request_id VARCHAR(100),
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_actor_id ON audit_events(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource, resource_id);
	`

	_, err := l.db.ExecContext(ctx, query)
	return err
}

// Log inserts the event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var metadataJSON interface{}
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	query := `
		INSERT INTO audit_events (timestamp, event_type, status, actor_id, resource, resource_id, request_id, message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp,
		event.EventType,
		event.Status,
		event.ActorID,
		event.Resource,
		event.ResourceID,
		event.RequestID,
		event.Message,
		metadataJSON,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Close is a no-op; the DB connection is owned by the caller
func (l *DBLogger) Close() error { return nil }

// SearchFilter narrows audit queries
type SearchFilter struct {
	EventType EventType
	ActorID   *int64
	Resource  string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

// Search retrieves audit events matching the filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, status, actor_id, resource, resource_id, request_id, message, metadata
		FROM audit_events
		WHERE ($1 = '' OR event_type = $1)
		  AND ($2::bigint IS NULL OR actor_id = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4::timestamptz IS NULL OR timestamp >= $4)
		  AND ($5::timestamptz IS NULL OR timestamp <= $5)
		ORDER BY timestamp DESC
		LIMIT $6
	`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, query,
		string(filter.EventType),
		filter.ActorID,
		filter.Resource,
		filter.Since,
		filter.Until,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var actorID sql.NullInt64
		var resource, resourceID, requestID, message sql.NullString
		var metadataJSON sql.NullString

		if err := rows.Scan(
			&e.ID,
			&e.Timestamp,
			&e.EventType,
			&e.Status,
			&actorID,
			&resource,
			&resourceID,
			&requestID,
			&message,
			&metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actorID.Valid {
			v := actorID.Int64
			e.ActorID = &v
		}
		e.Resource = resource.String
		e.ResourceID = resourceID.String
		e.RequestID = requestID.String
		e.Message = message.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Cleanup deletes events older than the retention window. Run by the
// background cleanup job.
func (l *DBLogger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < $1", time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}
	return result.RowsAffected()
}
