package health

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/render"

	"github.com/gustycube/uplinks/internal/circuitbreaker"
	"github.com/gustycube/uplinks/internal/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check for a component
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    []Check           `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler manages health and readiness checks
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]string
	logger   *logging.Logger
	ready    bool
}

// NewHandler creates a new health handler
func NewHandler(logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{
		checkers: make(map[string]Checker),
		metadata: make(map[string]string),
		logger:   logger,
	}
}

// RegisterChecker adds a health checker
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// SetMetadata sets metadata for the health response
func (h *Handler) SetMetadata(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metadata[key] = value
}

// SetReady marks the service as ready
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Run executes every checker and folds the results into one status
func (h *Handler) Run(ctx context.Context) Response {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	metadata := make(map[string]string, len(h.metadata))
	for k, v := range h.metadata {
		metadata[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	resp := Response{Status: StatusHealthy, Timestamp: time.Now(), Checks: []Check{}, Metadata: metadata}
	for _, name := range names {
		check := checkers[name].Check(ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case check.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// HealthHandler serves the folded check results; only unhealthy yields 503
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := h.Run(ctx)
	if resp.Status != StatusHealthy {
		h.logger.Warnw("health check not healthy", "status", resp.Status)
	}
	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}

// ReadinessHandler handles readiness check requests
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now(),
	})
}

// LivenessHandler always answers OK while the process serves requests
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

// RedisChecker checks Redis connectivity
type RedisChecker struct {
	ping func(ctx context.Context) error
}

// NewRedisChecker creates a Redis checker. A nil ping means Redis is not configured.
func NewRedisChecker(ping func(ctx context.Context) error) *RedisChecker {
	return &RedisChecker{ping: ping}
}

func (c *RedisChecker) Check(ctx context.Context) Check {
	start := time.Now()

	if c.ping == nil {
		return Check{
			Status:      StatusHealthy,
			Message:     "Redis not configured",
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}

	if err := c.ping(ctx); err != nil {
		return Check{
			Status:      StatusDegraded,
			Message:     "Redis cache unavailable: " + err.Error(),
			LastChecked: time.Now(),
			Duration:    time.Since(start) / time.Millisecond,
		}
	}

	return Check{
		Status:      StatusHealthy,
		Message:     "Redis connection OK",
		LastChecked: time.Now(),
		Duration:    time.Since(start) / time.Millisecond,
	}
}

// BreakerChecker reports unhealthy while every known RIPE endpoint is open,
// degraded while any of them is not closed.
type BreakerChecker struct {
	snapshots func() []circuitbreaker.Snapshot
}

func NewBreakerChecker(set *circuitbreaker.Set) *BreakerChecker {
	return &BreakerChecker{snapshots: set.Snapshots}
}

func (c *BreakerChecker) Check(ctx context.Context) Check {
	start := time.Now()
	snaps := c.snapshots()

	open := 0
	notClosed := []string{}
	for _, s := range snaps {
		if s.State != circuitbreaker.StateClosed.String() {
			notClosed = append(notClosed, s.Endpoint+"="+s.State)
		}
		if s.State == circuitbreaker.StateOpen.String() {
			open++
		}
	}

	check := Check{
		Status:      StatusHealthy,
		Message:     fmt.Sprintf("%d endpoints closed", len(snaps)),
		LastChecked: time.Now(),
	}
	switch {
	case len(snaps) > 0 && open == len(snaps):
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("all endpoints open: %v", notClosed)
	case len(notClosed) > 0:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("endpoints not closed: %v", notClosed)
	}
	check.Duration = time.Since(start) / time.Millisecond
	return check
}
