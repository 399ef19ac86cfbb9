package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a webhook does not exist
	ErrNotFound = errors.New("webhook not found")
	// ErrInvalidURL is returned for unparseable or non-HTTP endpoint URLs
	ErrInvalidURL = errors.New("webhook URL must be a valid http(s) URL")
	// ErrNoEvents is returned when a registration subscribes to nothing
	ErrNoEvents = errors.New("at least one event type is required")
)

// Store handles webhook registration persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new webhook store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMigrations creates the webhooks table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS webhooks (
		id UUID PRIMARY KEY,
		url TEXT NOT NULL,
		events TEXT[] NOT NULL,
		secret TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_webhooks_active ON webhooks(active);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create webhooks table: %w", err)
	}
	return nil
}

func validateWebhook(w *Webhook) error {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if len(w.Events) == 0 {
		return ErrNoEvents
	}
	return nil
}

func eventStrings(events []EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func eventTypes(events []string) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = EventType(e)
	}
	return out
}

// Create registers a new webhook
func (s *Store) Create(ctx context.Context, w *Webhook) error {
	if err := validateWebhook(w); err != nil {
		return err
	}

	w.ID = uuid.NewString()
	w.Active = true
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	query := `
		INSERT INTO webhooks (id, url, events, secret, active, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.URL, pq.Array(eventStrings(w.Events)), w.Secret, w.Active, w.Description, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	return nil
}

const webhookColumns = "id, url, events, secret, active, description, created_at, updated_at"

func scanWebhook(row interface{ Scan(...interface{}) error }) (*Webhook, error) {
	var w Webhook
	var events pq.StringArray
	if err := row.Scan(&w.ID, &w.URL, &events, &w.Secret, &w.Active, &w.Description, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Events = eventTypes(events)
	return &w, nil
}

// Get retrieves a webhook by ID
func (s *Store) Get(ctx context.Context, id string) (*Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+webhookColumns+" FROM webhooks WHERE id = $1", id)

	w, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

// List retrieves all webhooks
func (s *Store) List(ctx context.Context) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+webhookColumns+" FROM webhooks ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// ListActiveForEvent retrieves active webhooks subscribed to the event type
func (s *Store) ListActiveForEvent(ctx context.Context, eventType EventType) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+webhookColumns+" FROM webhooks WHERE active = TRUE AND $1 = ANY(events)",
		string(eventType))
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for event: %w", err)
	}
	defer rows.Close()

	var webhooks []Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// Update modifies a webhook's URL, subscriptions, secret, or description.
// Empty fields keep their current value.
func (s *Store) Update(ctx context.Context, id string, updates *Webhook) (*Webhook, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if updates.URL != "" {
		current.URL = updates.URL
	}
	if len(updates.Events) > 0 {
		current.Events = updates.Events
	}
	if updates.Secret != "" {
		current.Secret = updates.Secret
	}
	if updates.Description != "" {
		current.Description = updates.Description
	}
	if err := validateWebhook(current); err != nil {
		return nil, err
	}
	current.UpdatedAt = time.Now()

	query := `
		UPDATE webhooks
		SET url = $2, events = $3, secret = $4, description = $5, updated_at = $6
		WHERE id = $1
	`
	_, err = s.db.ExecContext(ctx, query,
		id, current.URL, pq.Array(eventStrings(current.Events)), current.Secret, current.Description, current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update webhook: %w", err)
	}
	return current, nil
}

// SetActive toggles delivery for a webhook
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE webhooks SET active = $2, updated_at = NOW() WHERE id = $1", id, active)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a webhook registration
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
