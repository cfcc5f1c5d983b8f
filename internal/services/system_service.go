package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/repositories"
)

var (
	errSystemHealthRequired = errors.New("system service: health repository is required")
	errSystemClockRequired  = errors.New("system service: clock is required")
)

// ErrSystemUnavailable indicates the health report could not be produced.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// BuildInfo carries release metadata stamped into health reports.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the dependency probes and build metadata.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Build  BuildInfo
	Clock  func() time.Time
}

type systemService struct {
	health repositories.HealthRepository
	build  BuildInfo
	now    func() time.Time
}

// NewSystemService constructs a SystemService enforcing dependency validation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errSystemHealthRequired
	}
	if deps.Clock == nil {
		return nil, errSystemClockRequired
	}
	return &systemService{
		health: deps.Health,
		build:  deps.Build,
		now:    func() time.Time { return deps.Clock().UTC() },
	}, nil
}

// HealthReport runs the dependency probes and stamps the result with build
// metadata and process uptime.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if s == nil || s.health == nil {
		return SystemHealthReport{}, ErrSystemUnavailable
	}

	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, ErrSystemUnavailable
	}

	now := s.now()
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version, "dev")
	report.CommitSHA = chooseFirstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment, "local")
	if !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt.UTC())
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Status == "" {
		report.Status = deriveStatus(report.Checks)
	}
	return report, nil
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusError:
			return domain.HealthStatusError
		case domain.HealthStatusDegraded:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
