package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the health reporting service.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	return &systemService{
		healthRepo: deps.HealthRepository,
		clock:      func() time.Time { return clock().UTC() },
		build:      build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.Version = firstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = firstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonEmpty(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = domain.HealthStatusOK
		for _, check := range report.Checks {
			if check.Status == domain.HealthStatusError {
				report.Status = domain.HealthStatusError
				break
			}
			if check.Status != domain.HealthStatusOK && check.Status != "" {
				report.Status = domain.HealthStatusDegraded
			}
		}
	}
	return report, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
