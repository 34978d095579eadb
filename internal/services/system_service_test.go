package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/repositories"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func storefrontBuild(started time.Time) BuildInfo {
	return BuildInfo{Version: "2025.03.1", CommitSHA: "9f1c2ab", Environment: "staging", StartedAt: started}
}

func TestSystemServiceReportsBuildAndUptime(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("BST", 3600))
	now := started.Add(90 * time.Minute)

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{"redis": {Status: domain.HealthStatusOK}},
		}},
		Clock: func() time.Time { return now },
		Build: storefrontBuild(started),
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "2025.03.1" || report.CommitSHA != "9f1c2ab" || report.Environment != "staging" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 90*time.Minute {
		t.Fatalf("expected uptime 90m, got %s", report.Uptime)
	}
	if report.GeneratedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %s", report.GeneratedAt)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
}

func TestSystemServiceDerivesStatusFromChecks(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{"no checks", nil, domain.HealthStatusOK},
		{"cache degraded", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"redis":     {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusDegraded},
		{"cms down", map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusError},
			"redis":     {Status: domain.HealthStatusDegraded},
		}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, err := NewSystemService(SystemServiceDeps{
				HealthRepository: &stubHealthRepository{report: domain.SystemHealthReport{Checks: tc.checks}},
			})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.HealthReport(context.Background())
			if err != nil {
				t.Fatalf("HealthReport: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.Status)
			}
			if report.Checks == nil {
				t.Fatalf("expected non-nil checks map")
			}
		})
	}
}

func TestSystemServiceOverStorefrontDependencies(t *testing.T) {
	redisDown := errors.New("dial tcp 10.0.0.7:6379: connect: connection refused")
	repo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "redis", Check: func(context.Context) error { return redisDown }},
		{Name: "secretManager", Timeout: 10 * time.Millisecond, Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Build: storefrontBuild(time.Now())})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status from timed out probe, got %s", report.Status)
	}
	if got := report.Checks["redis"]; got.Status != domain.HealthStatusDegraded || got.Error != redisDown.Error() {
		t.Fatalf("unexpected redis check %+v", got)
	}
	if got := report.Checks["secretManager"]; got.Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %+v", got)
	}
	if got := report.Checks["firestore"]; got.Status != domain.HealthStatusOK {
		t.Fatalf("unexpected firestore check %+v", got)
	}
}

func TestSystemServicePropagatesCollectError(t *testing.T) {
	want := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: &stubHealthRepository{err: want}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when repository missing")
	}
}
