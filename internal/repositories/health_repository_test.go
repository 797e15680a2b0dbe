package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

func okCheck(context.Context) error { return nil }

func TestDependencyHealthRepositoryValidatesChecks(t *testing.T) {
	cases := map[string][]DependencyCheck{
		"empty":          nil,
		"missing name":   {{Name: " ", Check: okCheck}},
		"missing probe":  {{Name: "firestore"}},
		"duplicate name": {{Name: "firestore", Check: okCheck}, {Name: " firestore ", Check: okCheck}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDependencyHealthRepository(checks); err == nil {
				t.Fatalf("expected construction error")
			}
		})
	}
}

func TestDependencyHealthRepositoryAllHealthy(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Required: true, Check: okCheck},
		{Name: "pubsub", Check: okCheck},
	}, WithDependencyClock(func() time.Time { return now }), WithBuildInfo("1.4.2", "staging"))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK || len(report.Checks) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Checks["firestore"].CheckedAt != now || report.GeneratedAt != now {
		t.Fatalf("expected injected clock to stamp results")
	}
	if report.Version != "1.4.2" || report.Environment != "staging" {
		t.Fatalf("unexpected build info %q %q", report.Version, report.Environment)
	}
}

func TestDependencyHealthRepositoryOptionalFailureDegrades(t *testing.T) {
	boom := errors.New("topic lookup failed")
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Required: true, Check: okCheck},
		{Name: "pubsub", Check: func(context.Context) error { return boom }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	check := report.Checks["pubsub"]
	if check.Status != domain.HealthStatusDegraded || check.Error != boom.Error() || check.Detail != "unreachable" {
		t.Fatalf("unexpected pubsub check %+v", check)
	}
}

func TestDependencyHealthRepositoryRequiredFailureErrors(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Required: true, Check: func(context.Context) error { return errors.New("unavailable") }},
		{Name: "secretManager", Check: okCheck},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error, got %s", report.Status)
	}
	if report.Checks["secretManager"].Status != domain.HealthStatusOK {
		t.Fatalf("expected healthy dependencies to still be reported")
	}
}

func TestDependencyHealthRepositoryTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:     "firestore",
			Required: true,
			Timeout:  5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(time.Second):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	check := report.Checks["firestore"]
	if check.Status != domain.HealthStatusError || check.Detail != "timeout" {
		t.Fatalf("unexpected timeout result %+v", check)
	}
}

func TestAggregateHealthStatus(t *testing.T) {
	if got := domain.AggregateHealthStatus(nil); got != domain.HealthStatusOK {
		t.Fatalf("expected ok for no checks, got %s", got)
	}
	got := domain.AggregateHealthStatus(map[string]domain.SystemHealthCheck{
		"a": {Status: domain.HealthStatusDegraded},
		"b": {Status: domain.HealthStatusOK},
	})
	if got != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}
}
