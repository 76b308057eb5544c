package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/platform/httpx"
	"github.com/hanko-field/storebot/internal/platform/requestctx"
)

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"

	defaultReadinessTimeout = 3 * time.Second
)

// ReadinessCheck probes one dependency. A nil error means the dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	version   string
	startedAt time.Time
	clock     func() time.Time
	timeout   time.Duration
	checks    map[string]ReadinessCheck
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs health handlers with the supplied options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
		checks:  make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock()
	}
	return h
}

// WithHealthVersion sets the build version reported by both probes.
func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithHealthClock overrides the clock, mainly for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthStartedAt sets the process start time used for uptime.
func WithHealthStartedAt(at time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.startedAt = at
	}
}

// WithReadinessCheck registers a named dependency probe for /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports liveness. It never touches dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    healthStatusOK,
		"version":   h.version,
		"uptime":    now.Sub(h.startedAt).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

type readinessCheckResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// Readyz runs every registered check and answers 503 when any of them fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := healthStatusOK
	results := make(map[string]readinessCheckResult, len(names))
	var details []string
	for _, name := range names {
		start := h.clock()
		err := h.checks[name](ctx)
		result := readinessCheckResult{Status: healthStatusOK, LatencyMS: h.clock().Sub(start).Milliseconds()}
		if err != nil {
			status = healthStatusDegraded
			result.Status = healthStatusDegraded
			result.Error = err.Error()
			details = append(details, name+": "+err.Error())
			requestctx.Logger(ctx).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		}
		results[name] = result
	}

	code := http.StatusOK
	if status != healthStatusOK {
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, map[string]any{
		"status":      status,
		"version":     h.version,
		"checks":      results,
		"details":     details,
		"generatedAt": h.clock().UTC().Format(time.RFC3339),
	})
}
