package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hearthcrm/hearth/pkg/observability"
)

// Manager dispatches events to registered webhooks. Deliveries run
// asynchronously; failures are scheduled for retry and swept by the
// background job.
type Manager struct {
	store      *Store
	deliveries *DeliveryLog
	client     *http.Client
	limiter    *RateLimiter
	policy     *RetryPolicy
	logger     *logrus.Logger
	metrics    *observability.Metrics
}

// NewManager creates a webhook manager. metrics may be nil.
func NewManager(store *Store, timeout time.Duration, maxRetries int, retryInterval time.Duration, logger *logrus.Logger, metrics *observability.Metrics) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		store:      store,
		deliveries: NewDeliveryLog(1000),
		client:     &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(100, time.Minute),
		policy:     NewRetryPolicy(maxRetries, retryInterval),
		logger:     logger,
		metrics:    metrics,
	}
}

// Dispatch sends an event to every active webhook subscribed to its type.
// Endpoint failures never propagate to the caller.
func (m *Manager) Dispatch(ctx context.Context, event *Event) {
	hooks, err := m.store.ListActiveForEvent(ctx, event.Type)
	if err != nil {
		m.logger.WithError(err).WithField("event_type", event.Type).
			Error("failed to load webhooks for dispatch")
		return
	}
	if len(hooks) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.WithError(err).Error("failed to marshal webhook event")
		return
	}

	for i := range hooks {
		hook := hooks[i]
		delivery := &Delivery{
			ID:        uuid.NewString(),
			WebhookID: hook.ID,
			EventID:   event.ID,
			EventType: event.Type,
			URL:       hook.URL,
			Status:    DeliveryStatusPending,
			CreatedAt: time.Now(),
			payload:   payload,
		}
		m.deliveries.Add(delivery)

		go m.attempt(context.WithoutCancel(ctx), &hook, delivery)
	}
}

// NotifyPermissionChanged dispatches a permission.changed event. Satisfies
// the role handlers' notifier interface.
func (m *Manager) NotifyPermissionChanged(ctx context.Context, roleID int64, objectAPIName string) {
	m.Dispatch(ctx, NewEvent(EventPermissionChanged, map[string]interface{}{
		"role_id": roleID,
		"object":  objectAPIName,
	}))
}

// Deliveries returns recent deliveries for a webhook, newest first
func (m *Manager) Deliveries(webhookID string, limit int) []*Delivery {
	return m.deliveries.ForWebhook(webhookID, limit)
}

// DeliveryStats returns delivery statistics for a webhook
func (m *Manager) DeliveryStats(webhookID string) Stats {
	return m.deliveries.StatsFor(webhookID)
}

// SweepRetries re-attempts due deliveries. Run on the webhook sweep
// schedule.
func (m *Manager) SweepRetries(ctx context.Context) {
	due := m.deliveries.DueRetries()
	for _, delivery := range due {
		hook, err := m.store.Get(ctx, delivery.WebhookID)
		if err != nil || !hook.Active {
			now := time.Now()
			delivery.Status = DeliveryStatusFailed
			delivery.ErrorMessage = "webhook removed or inactive"
			delivery.CompletedAt = &now
			m.deliveries.Update(delivery)
			continue
		}
		m.attempt(ctx, hook, delivery)
	}
	m.observeQueueSize()
}

// attempt performs one delivery attempt and updates the delivery record
func (m *Manager) attempt(ctx context.Context, hook *Webhook, delivery *Delivery) {
	delivery.Attempts++
	start := time.Now()
	statusCode, err := m.send(ctx, hook, delivery)
	delivery.Duration = time.Since(start)
	delivery.StatusCode = statusCode

	if err != nil {
		if m.policy.ShouldRetry(delivery.Attempts) {
			next := m.policy.NextRetryTime(delivery.Attempts)
			delivery.Status = DeliveryStatusRetrying
			delivery.NextRetryAt = &next
			delivery.ErrorMessage = err.Error()
		} else {
			now := time.Now()
			delivery.Status = DeliveryStatusFailed
			delivery.ErrorMessage = err.Error()
			delivery.CompletedAt = &now
		}
		m.logger.WithError(err).WithFields(logrus.Fields{
			"webhook_id": hook.ID,
			"event_type": delivery.EventType,
			"attempt":    delivery.Attempts,
		}).Warn("webhook delivery failed")
	} else {
		now := time.Now()
		delivery.Status = DeliveryStatusSuccess
		delivery.ErrorMessage = ""
		delivery.NextRetryAt = nil
		delivery.CompletedAt = &now
	}

	m.deliveries.Update(delivery)

	if m.metrics != nil {
		m.metrics.WebhookDeliveriesTotal.
			WithLabelValues(string(delivery.EventType), string(delivery.Status)).Inc()
	}
	m.observeQueueSize()
}

// send posts the payload to the endpoint
func (m *Manager) send(ctx context.Context, hook *Webhook, delivery *Delivery) (int, error) {
	if !m.limiter.Allow(hook.ID) {
		return 0, fmt.Errorf("rate limit exceeded for webhook %s", hook.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(delivery.payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hearth-Event", string(delivery.EventType))
	req.Header.Set("X-Hearth-Event-ID", delivery.EventID)
	req.Header.Set("X-Hearth-Attempt", strconv.Itoa(delivery.Attempts))
	if hook.Secret != "" {
		req.Header.Set("X-Hearth-Signature", Sign(delivery.payload, hook.Secret))
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (m *Manager) observeQueueSize() {
	if m.metrics != nil {
		m.metrics.WebhookRetryQueueSize.Set(float64(m.deliveries.RetryQueueSize()))
	}
}

// Sign computes the HMAC-SHA256 signature header value for a payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the payload
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
