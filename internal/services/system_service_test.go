package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestSystemServiceHealthReportFillsDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{report: domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusDegraded},
			},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "1.4.2", Environment: "staging"},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if report.Version != "1.4.2" || report.Environment != "staging" {
		t.Fatalf("expected build info, got %+v", report)
	}
	if !report.GeneratedAt.Equal(now) || report.GeneratedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportKeepsRepositoryValues(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{report: domain.SystemHealthReport{
			Status:  domain.HealthStatusError,
			Version: "from-repo",
		}},
		Build: BuildInfo{Version: "from-build"},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusError || report.Version != "from-repo" {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Checks == nil {
		t.Fatalf("checks must never be nil")
	}
}

func TestSystemServiceHealthReportPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: stubHealthRepository{err: boom}})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSystemServiceHealthReportChecksPricingTables(t *testing.T) {
	healthy := DefaultPricingSettings()
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		}},
		Pricing: &healthy,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK || report.Checks[pricingTablesCheck].Status != domain.HealthStatusOK {
		t.Fatalf("expected complete tables to be healthy, got %+v", report)
	}

	partial := DefaultPricingSettings()
	partial.Tax.Provinces = map[string]TaxRule{"ON": hst("13")}
	svc, err = NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusOK}},
		Pricing:          &partial,
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err = svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	check := report.Checks[pricingTablesCheck]
	if report.Status != domain.HealthStatusDegraded || check.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded report, got %+v", report)
	}
	if check.Error != "no tax rule for AB,BC,MB,NB,NL,NS,NT,NU,PE,QC,SK,YT" {
		t.Fatalf("unexpected detail %q", check.Error)
	}
}
