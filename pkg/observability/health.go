package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker provides health check functionality
type HealthChecker struct {
	db    *sql.DB
	redis *redis.Client
}

// NewHealthChecker creates a new health checker. The redis client may be nil
// when the sharing access cache is disabled.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Liveness returns a simple liveness probe
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns a readiness probe checking all dependencies
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Check probes the database and, when configured, redis.
// A redis failure degrades but does not fail readiness: the access cache is
// optional and the evaluator falls through to the database without it.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		start := time.Now()
		if err := h.db.PingContext(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Dependencies["postgres"] = DependencyStatus{
				Status:  StatusUnhealthy,
				Message: err.Error(),
			}
		} else {
			status.Dependencies["postgres"] = DependencyStatus{
				Status:  StatusHealthy,
				Latency: time.Since(start).String(),
			}
		}
	}

	if h.redis != nil {
		start := time.Now()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
			status.Dependencies["redis"] = DependencyStatus{
				Status:  StatusUnhealthy,
				Message: err.Error(),
			}
		} else {
			status.Dependencies["redis"] = DependencyStatus{
				Status:  StatusHealthy,
				Latency: time.Since(start).String(),
			}
		}
	}

	return status
}
