package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type fakeSource struct {
	values    map[MetricName]float64
	baselines map[MetricName]float64
	err       error
}

func (f *fakeSource) Value(_ context.Context, m MetricName, _ time.Time) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.values[m], nil
}

func (f *fakeSource) Baseline(_ context.Context, m MetricName, _ time.Time, _ int) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.baselines[m], nil
}

func TestCheckMetric_CriticalDrop(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricDailyRevenue: 400},
		baselines: map[MetricName]float64{MetricDailyRevenue: 1000},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop())

	alert, err := s.CheckMetric(context.Background(), MetricDailyRevenue)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Severity != SeverityCritical {
		t.Fatalf("expected CRITICAL, got %s", alert.Severity)
	}
	if alert.RootCause == "" {
		t.Error("expected a root cause hint for a CRITICAL deviation")
	}
}

func TestCheckMetric_InfoWithinBand(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricOrderCount: 105},
		baselines: map[MetricName]float64{MetricOrderCount: 100},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop())

	alert, err := s.CheckMetric(context.Background(), MetricOrderCount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.Severity != SeverityInfo {
		t.Fatalf("expected INFO, got %s", alert.Severity)
	}
	if alert.RootCause != "" {
		t.Error("expected no root cause hint for an INFO deviation")
	}
}

func TestSweep_PublishesOnlyNonInfoAlerts(t *testing.T) {
	source := &fakeSource{
		values: map[MetricName]float64{
			MetricDailyRevenue: 400,
			MetricOrderCount:   101,
		},
		baselines: map[MetricName]float64{
			MetricDailyRevenue: 1000,
			MetricOrderCount:   100,
		},
	}
	bus := NewAlertBus(zap.NewNop())
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	s := NewSentry(source, bus, zap.NewNop(), WithMetrics([]MetricName{MetricDailyRevenue, MetricOrderCount}))
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case alert := <-ch:
		if alert.Metric != MetricDailyRevenue {
			t.Errorf("expected the revenue alert to publish, got %s", alert.Metric)
		}
	default:
		t.Fatal("expected one published alert")
	}

	select {
	case alert := <-ch:
		t.Fatalf("expected no second alert, got %+v", alert)
	default:
	}
}

func TestSweep_RecordsHistoryForEverySeverity(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricOrderCount: 101},
		baselines: map[MetricName]float64{MetricOrderCount: 100},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop(), WithMetrics([]MetricName{MetricOrderCount}))

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.RecentAlerts(0)) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(s.RecentAlerts(0)))
	}
}

func TestRecentAlerts_BoundedByHistoryLimit(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricOrderCount: 101},
		baselines: map[MetricName]float64{MetricOrderCount: 100},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop(),
		WithMetrics([]MetricName{MetricOrderCount}), WithHistoryLimit(2))

	for i := 0; i < 5; i++ {
		if err := s.Sweep(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(s.RecentAlerts(0)) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(s.RecentAlerts(0)))
	}
}

func TestRun_SkipsOverlappingSweep(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricOrderCount: 101},
		baselines: map[MetricName]float64{MetricOrderCount: 100},
	}
	clock := clockwork.NewFakeClock()
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop(),
		WithMetrics([]MetricName{MetricOrderCount}), WithClock(clock))

	s.sweeping = true
	s.tick(context.Background())

	if len(s.RecentAlerts(0)) != 0 {
		t.Fatalf("expected the overlapping tick to be skipped, got %d history entries", len(s.RecentAlerts(0)))
	}
}

func TestDeviationPercent_ZeroBaselineIsNoDeviation(t *testing.T) {
	if got := deviationPercent(50, 0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := deviationPercent(0, 0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestCheckMetric_ZeroBaselineIsSkipped(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricNewCustomers: 12},
		baselines: map[MetricName]float64{MetricNewCustomers: 0},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop())

	_, err := s.CheckMetric(context.Background(), MetricNewCustomers)
	if !errors.Is(err, ErrMetricSkipped) {
		t.Fatalf("expected ErrMetricSkipped, got %v", err)
	}
}

func TestSweep_SkipsZeroBaselineMetricWithoutAlertOrHistory(t *testing.T) {
	source := &fakeSource{
		values:    map[MetricName]float64{MetricNewCustomers: 12},
		baselines: map[MetricName]float64{MetricNewCustomers: 0},
	}
	s := NewSentry(source, NewAlertBus(zap.NewNop()), zap.NewNop(),
		WithMetrics([]MetricName{MetricNewCustomers}))

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.RecentAlerts(0)) != 0 {
		t.Fatalf("expected zero-baseline metric to leave no history entry, got %d", len(s.RecentAlerts(0)))
	}
}
