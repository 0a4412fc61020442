// Package health provides liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/z0w13/dmserv/internal/model"
	"go.uber.org/zap"
)

// Pinger is a dependency that can report its own health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check endpoints
type HealthChecker struct {
	tenants Pinger
	leases  Pinger
	stats   *model.Stats
	timeout time.Duration
	logger  *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker. Nil dependencies are skipped.
func NewHealthChecker(tenants, leases Pinger, stats *model.Stats, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		tenants: tenants,
		leases:  leases,
		stats:   stats,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	})
}

// ReadinessHandler reports ready when the settings store and lease store
// answer and at least one gateway shard is connected
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	record := func(name string, err error) {
		if err != nil {
			h.logger.Error("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	record("tenant_store", ping(ctx, h.tenants))
	record("lease_store", ping(ctx, h.leases))
	record("gateway", h.checkGateway())

	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}
	code := http.StatusOK
	if !allHealthy {
		status.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func (h *HealthChecker) checkGateway() error {
	if h.stats == nil {
		return nil
	}
	if h.stats.ConnectedShards() == 0 {
		return errors.New("no shards connected")
	}
	return nil
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return nil
	}
	return p.Ping(ctx)
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
