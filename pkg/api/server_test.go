package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthcrm/hearth/pkg/auth"
	"github.com/hearthcrm/hearth/pkg/config"
	"github.com/hearthcrm/hearth/pkg/contextkeys"
	"github.com/hearthcrm/hearth/pkg/observability"
	"github.com/hearthcrm/hearth/pkg/webhooks"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	router.HandleFunc("/records/lead", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET", "POST")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         "0",
			HealthPort:   "1",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
			MaxBodyBytes: 1 << 20,
		},
	}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	return NewServer(cfg, quietLogger(), db, nil, registry, metrics, auth.NewStore(db), pingRegistrar{})
}

func TestServerAttachesRequestID(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest("GET", "/ping", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

type panicRegistrar struct{}

func (panicRegistrar) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}).Methods("GET")
}

func TestServerRecoversFromPanics(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{Server: config.ServerConfig{MaxBodyBytes: 1 << 20}}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	server := NewServer(cfg, quietLogger(), db, nil, registry, metrics, auth.NewStore(db), panicRegistrar{})

	req := httptest.NewRequest("GET", "/boom", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScopeMiddlewareEnforcesRecordScopes(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := scopeMiddleware(inner)

	withScopes := func(r *http.Request, scopes ...string) *http.Request {
		return r.WithContext(contextkeys.WithAuth(r.Context(), &auth.Context{UserID: 7, Scopes: scopes}))
	}

	// Read scope cannot write
	req := withScopes(httptest.NewRequest("POST", "/records/lead", nil), auth.ScopeRecordsRead)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Read scope can read
	req = withScopes(httptest.NewRequest("GET", "/records/lead", nil), auth.ScopeRecordsRead)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Write scope can write
	req = withScopes(httptest.NewRequest("POST", "/records/lead", nil), auth.ScopeRecordsWrite)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reports are read-gated the same way
	req = withScopes(httptest.NewRequest("GET", "/reports/leads/run", nil), auth.ScopeRecordsWrite)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Paths outside the record surface are untouched
	req = withScopes(httptest.NewRequest("POST", "/roles", nil))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobsRejectInvalidSchedule(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{Webhooks: config.WebhookConfig{SweepSchedule: "not a schedule"}}
	manager := webhooks.NewManager(webhooks.NewStore(db), time.Second, 3, time.Second, quietLogger(), nil)

	_, err = NewJobs(cfg, quietLogger(), db, nil, nil, nil, nil, manager, nil)
	assert.Error(t, err)
}

func TestJobsStartStop(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.Config{Webhooks: config.WebhookConfig{SweepSchedule: "*/1 * * * *"}}
	jobs, err := NewJobs(cfg, quietLogger(), db, nil, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	jobs.Start()
	jobs.Stop()
}
