package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func webhookRows(id, url, secret string, events ...string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "url", "events", "secret", "active", "description", "created_at", "updated_at",
	}).AddRow(id, url, pq.StringArray(events), secret, true, "", time.Now(), time.Now())
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"record.created"}`)
	sig := Sign(payload, "topsecret")

	assert.Contains(t, sig, "sha256=")
	assert.True(t, VerifySignature(payload, sig, "topsecret"))
	assert.False(t, VerifySignature(payload, sig, "wrong"))
	assert.False(t, VerifySignature([]byte("tampered"), sig, "topsecret"))
}

func TestDispatchDeliversSignedPayload(t *testing.T) {
	var gotSignature atomic.Value
	var gotEvent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSignature.Store(VerifySignature(body, r.Header.Get("X-Hearth-Signature"), "topsecret"))
		gotEvent.Store(r.Header.Get("X-Hearth-Event"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE active").
		WithArgs(string(EventRecordCreated)).
		WillReturnRows(webhookRows("wh-1", server.URL, "topsecret", string(EventRecordCreated)))

	m := NewManager(NewStore(db), time.Second, 3, time.Millisecond, quietLogger(), nil)
	m.Dispatch(context.Background(), NewEvent(EventRecordCreated, map[string]interface{}{"record_id": "rec-1"}))

	require.Eventually(t, func() bool {
		deliveries := m.Deliveries("wh-1", 10)
		return len(deliveries) == 1 && deliveries[0].Status == DeliveryStatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, true, gotSignature.Load())
	assert.Equal(t, string(EventRecordCreated), gotEvent.Load())
}

func TestDispatchSkipsUnsubscribedWebhooks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE active").
		WithArgs(string(EventRecordDeleted)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "url", "events", "secret", "active", "description", "created_at", "updated_at",
		}))

	m := NewManager(NewStore(db), time.Second, 3, time.Millisecond, quietLogger(), nil)
	m.Dispatch(context.Background(), NewEvent(EventRecordDeleted, nil))

	assert.Empty(t, m.Deliveries("wh-1", 10))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailedDeliveryIsScheduledForRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE active").
		WillReturnRows(webhookRows("wh-1", server.URL, "", string(EventRecordUpdated)))

	m := NewManager(NewStore(db), time.Second, 3, time.Millisecond, quietLogger(), nil)
	m.Dispatch(context.Background(), NewEvent(EventRecordUpdated, nil))

	require.Eventually(t, func() bool {
		deliveries := m.Deliveries("wh-1", 10)
		return len(deliveries) == 1 && deliveries[0].Status == DeliveryStatusRetrying
	}, 2*time.Second, 10*time.Millisecond)

	delivery := m.Deliveries("wh-1", 10)[0]
	assert.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.NextRetryAt)
	assert.Equal(t, http.StatusInternalServerError, delivery.StatusCode)
}

func TestSweepRetriesRedelivers(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE active").
		WillReturnRows(webhookRows("wh-1", server.URL, "", string(EventShareGranted)))

	m := NewManager(NewStore(db), time.Second, 3, time.Millisecond, quietLogger(), nil)
	m.Dispatch(context.Background(), NewEvent(EventShareGranted, nil))

	require.Eventually(t, func() bool {
		deliveries := m.Deliveries("wh-1", 10)
		return len(deliveries) == 1 && deliveries[0].Status == DeliveryStatusRetrying
	}, 2*time.Second, 10*time.Millisecond)

	// Wait past the backoff, then sweep. The sweep looks the webhook up.
	time.Sleep(20 * time.Millisecond)
	mock.ExpectQuery("SELECT (.+) FROM webhooks WHERE id").
		WillReturnRows(webhookRows("wh-1", server.URL, "", string(EventShareGranted)))

	m.SweepRetries(context.Background())

	deliveries := m.Deliveries("wh-1", 10)
	require.Len(t, deliveries, 1)
	assert.Equal(t, DeliveryStatusSuccess, deliveries[0].Status)
	assert.Equal(t, 2, deliveries[0].Attempts)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := NewRetryPolicy(3, time.Second)

	assert.Equal(t, time.Second, p.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, p.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, p.NextRetryDelay(3))
	assert.Equal(t, 5*time.Minute, p.NextRetryDelay(30))

	assert.True(t, p.ShouldRetry(1))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
}

func TestRateLimiterExhaustsAndRefills(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)

	assert.True(t, rl.Allow("wh-1"))
	assert.True(t, rl.Allow("wh-1"))
	assert.False(t, rl.Allow("wh-1"))

	// Other webhooks have their own bucket
	assert.True(t, rl.Allow("wh-2"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("wh-1"))
}

func TestStoreValidatesRegistration(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()

	err = store.Create(ctx, &Webhook{URL: "not a url", Events: []EventType{EventRecordCreated}})
	assert.True(t, errors.Is(err, ErrInvalidURL))

	err = store.Create(ctx, &Webhook{URL: "ftp://example.com/hook", Events: []EventType{EventRecordCreated}})
	assert.True(t, errors.Is(err, ErrInvalidURL))

	err = store.Create(ctx, &Webhook{URL: "https://example.com/hook"})
	assert.True(t, errors.Is(err, ErrNoEvents))
}

func TestDeliveryLogEvictsOldest(t *testing.T) {
	log := NewDeliveryLog(10)
	for i := 0; i < 10; i++ {
		log.Add(&Delivery{
			ID:        string(rune('a' + i)),
			WebhookID: "wh-1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}

	log.Add(&Delivery{ID: "newest", WebhookID: "wh-1", CreatedAt: time.Now().Add(time.Hour)})

	_, ok := log.Get("a")
	assert.False(t, ok)
	_, ok = log.Get("newest")
	assert.True(t, ok)
}
