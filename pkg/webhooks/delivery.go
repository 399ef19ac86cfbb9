package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryStatusPending  DeliveryStatus = "pending"
	DeliveryStatusSuccess  DeliveryStatus = "success"
	DeliveryStatusFailed   DeliveryStatus = "failed"
	DeliveryStatusRetrying DeliveryStatus = "retrying"
)

// Delivery records a single delivery attempt chain for one webhook and event.
// The serialized payload is kept so retries resend exactly what the first
// attempt sent.
type Delivery struct {
	ID           string         `json:"id"`
	WebhookID    string         `json:"webhook_id"`
	EventID      string         `json:"event_id"`
	EventType    EventType      `json:"event_type"`
	URL          string         `json:"url"`
	Status       DeliveryStatus `json:"status"`
	StatusCode   int            `json:"status_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempts     int            `json:"attempts"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Duration     time.Duration  `json:"duration,omitempty"`

	payload []byte
}

// DeliveryLog is a bounded in-memory record of recent deliveries
type DeliveryLog struct {
	mu         sync.RWMutex
	deliveries map[string]*Delivery
	maxEntries int
}

// NewDeliveryLog creates a delivery log holding at most maxEntries entries
func NewDeliveryLog(maxEntries int) *DeliveryLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &DeliveryLog{
		deliveries: make(map[string]*Delivery),
		maxEntries: maxEntries,
	}
}

// Add records a delivery, evicting the oldest entries when full
func (l *DeliveryLog) Add(d *Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.deliveries) >= l.maxEntries {
		l.evictOldestLocked()
	}
	l.deliveries[d.ID] = d
}

// Update replaces a delivery entry
func (l *DeliveryLog) Update(d *Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries[d.ID] = d
}

// Get retrieves a delivery by ID
func (l *DeliveryLog) Get(id string) (*Delivery, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.deliveries[id]
	return d, ok
}

// ForWebhook retrieves deliveries for a webhook, newest first
func (l *DeliveryLog) ForWebhook(webhookID string, limit int) []*Delivery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Delivery
	for _, d := range l.deliveries {
		if d.WebhookID == webhookID {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// DueRetries returns deliveries whose retry time has passed
func (l *DeliveryLog) DueRetries() []*Delivery {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now()
	var result []*Delivery
	for _, d := range l.deliveries {
		if d.Status == DeliveryStatusRetrying && d.NextRetryAt != nil && d.NextRetryAt.Before(now) {
			result = append(result, d)
		}
	}
	return result
}

// RetryQueueSize counts deliveries waiting for retry
func (l *DeliveryLog) RetryQueueSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, d := range l.deliveries {
		if d.Status == DeliveryStatusRetrying {
			n++
		}
	}
	return n
}

// evictOldestLocked removes the oldest tenth of entries. Caller holds the lock.
func (l *DeliveryLog) evictOldestLocked() {
	all := make([]*Delivery, 0, len(l.deliveries))
	for _, d := range l.deliveries {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	evict := len(all) / 10
	if evict == 0 {
		evict = 1
	}
	for i := 0; i < evict; i++ {
		delete(l.deliveries, all[i].ID)
	}
}

// Stats summarizes delivery outcomes for a webhook
type Stats struct {
	WebhookID   string  `json:"webhook_id"`
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	Retrying    int     `json:"retrying"`
	SuccessRate float64 `json:"success_rate"`
}

// StatsFor computes delivery statistics for a webhook
func (l *DeliveryLog) StatsFor(webhookID string) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{WebhookID: webhookID}
	for _, d := range l.deliveries {
		if d.WebhookID != webhookID {
			continue
		}
		stats.Total++
		switch d.Status {
		case DeliveryStatusSuccess:
			stats.Successful++
		case DeliveryStatusFailed:
			stats.Failed++
		case DeliveryStatusRetrying:
			stats.Retrying++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}
