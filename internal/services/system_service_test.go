package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ashgrove-goods/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestNewSystemServiceRequiresHealthRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error when health repository missing")
	}
}

func TestHealthReportEnrichesBuildMetadata(t *testing.T) {
	started := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            fixedClock(now),
		Build: BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc123",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}

	if report.Version != "1.4.0" || report.CommitSHA != "abc123" || report.Environment != "production" {
		t.Fatalf("expected build metadata filled in, got %+v", report)
	}
	if report.Uptime != 2*time.Hour {
		t.Fatalf("expected 2h uptime, got %v", report.Uptime)
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generated-at set, got %v", report.GeneratedAt)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if repo.calls != 1 {
		t.Fatalf("expected one collect call, got %d", repo.calls)
	}
}

func TestHealthReportDerivesDegradedStatus(t *testing.T) {
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusDegraded},
			},
		},
	}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %q", report.Status)
	}
}

func TestHealthReportPropagatesCollectFailure(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("probe failed")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected collect failure to propagate")
	}
}
