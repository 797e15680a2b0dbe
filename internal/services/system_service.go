package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const pricingTablesCheck = "pricingTables"

var canadianProvinceCodes = []string{"AB", "BC", "MB", "NB", "NL", "NS", "NT", "NU", "ON", "PE", "QC", "SK", "YT"}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	Environment string
}

// SystemServiceDeps bundles collaborators required to construct a system service.
// Pricing, when set, adds a self check that the loaded tables cover every province.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Pricing          *PricingSettings
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo repositories.HealthRepository
	pricing    *PricingSettings
	clock      func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service providing health reports.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &systemService{
		healthRepo: deps.HealthRepository,
		pricing:    deps.Pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: deps.Build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if ctx == nil {
		return domain.SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return domain.SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	if s.pricing != nil {
		report.Checks[pricingTablesCheck] = pricingTablesHealth(*s.pricing, now)
		report.Status = ""
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = domain.AggregateHealthStatus(report.Checks)
	}
	return report, nil
}

// pricingTablesHealth degrades readiness when a province would fall back to the default tax rule.
func pricingTablesHealth(settings PricingSettings, now time.Time) domain.SystemHealthCheck {
	var missing []string
	for _, code := range canadianProvinceCodes {
		if _, ok := settings.Tax.Provinces[code]; !ok {
			missing = append(missing, code)
		}
	}
	check := domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: "ok", CheckedAt: now}
	if len(missing) > 0 {
		check.Status = domain.HealthStatusDegraded
		check.Detail = "incomplete tax table"
		check.Error = fmt.Sprintf("no tax rule for %s", strings.Join(missing, ","))
	}
	return check
}
