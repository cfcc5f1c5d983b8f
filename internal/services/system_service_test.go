package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(_ context.Context) (domain.SystemHealthReport, error) {
	if s.err != nil {
		return domain.SystemHealthReport{}, s.err
	}
	return s.report, nil
}

func TestHealthReportStampsBuildMetadata(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		Health: repo,
		Build:  BuildInfo{Version: "1.2.3", CommitSHA: "abc123", Environment: "staging", StartedAt: now.Add(-time.Hour)},
		Clock:  fixedClock(now),
	})
	if err != nil {
		t.Fatalf("NewSystemService returned error: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Version != "1.2.3" || report.CommitSHA != "abc123" || report.Environment != "staging" {
		t.Fatalf("unexpected build metadata: %+v", report)
	}
	if report.Uptime != time.Hour {
		t.Fatalf("expected uptime 1h, got %s", report.Uptime)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %q", report.Status)
	}
}

func TestHealthReportDerivesWorstStatus(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"firestore": {Status: domain.HealthStatusOK},
			"gateway":   {Status: domain.HealthStatusError},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{Health: repo, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("NewSystemService returned error: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %q", report.Status)
	}
}
