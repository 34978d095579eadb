package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService enables dependency checks on /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

type healthResponse struct {
	Status      string                         `json:"status"`
	Version     string                         `json:"version,omitempty"`
	CommitSHA   string                         `json:"commitSha,omitempty"`
	Environment string                         `json:"environment,omitempty"`
	Uptime      string                         `json:"uptime"`
	Timestamp   string                         `json:"timestamp"`
	Checks      map[string]healthCheckResponse `json:"checks,omitempty"`
	Details     []string                       `json:"details,omitempty"`
}

type healthCheckResponse struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Uptime:      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
	})
}

// Readyz probes Firestore and Redis and answers 503 unless every check is healthy.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.clock().UTC()
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("health report failed", zap.Error(err))
		writeJSONResponse(w, http.StatusServiceUnavailable, healthResponse{
			Status:    domain.HealthStatusError,
			Timestamp: now.Format(time.RFC3339),
			Details:   []string{err.Error()},
		})
		return
	}

	resp := healthResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.Round(time.Second).String(),
		Timestamp:   now.Format(time.RFC3339),
		Checks:      make(map[string]healthCheckResponse, len(report.Checks)),
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := report.Checks[name]
		entry := healthCheckResponse{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
		}
		if !check.CheckedAt.IsZero() {
			entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339Nano)
		}
		resp.Checks[name] = entry
		if check.Status != domain.HealthStatusOK {
			reason := check.Error
			if reason == "" {
				reason = check.Detail
			}
			if reason == "" {
				reason = check.Status
			}
			resp.Details = append(resp.Details, fmt.Sprintf("%s: %s", name, reason))
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
