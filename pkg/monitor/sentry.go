// Package monitor implements the AnomalySentry (C10) and AlertBus (C11):
// a periodic metric sweep against a rolling baseline, and the pub/sub
// distribution point for the alerts it raises. Grounded on
// original_source/src/agents/sentry.py's root-cause heuristic and on the
// teacher's heartbeat/goroutine-per-resource lifecycle pattern for
// scheduled background work.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrMetricSkipped is returned by checkMetric when a metric's baseline is
// zero: there is nothing meaningful to compare against, so the metric is
// skipped for this sweep rather than scored as a deviation.
var ErrMetricSkipped = errors.New("metric skipped: zero baseline")

// MetricName identifies one of the sentry's monitored business metrics.
type MetricName string

const (
	MetricDailyRevenue      MetricName = "daily_revenue"
	MetricOrderCount        MetricName = "order_count"
	MetricAverageOrderValue MetricName = "average_order_value"
	MetricNewCustomers      MetricName = "new_customers"
	MetricProductSalesVolume MetricName = "product_sales_volume"
)

// DefaultMetrics is the sentry's out-of-the-box watch list.
var DefaultMetrics = []MetricName{
	MetricDailyRevenue,
	MetricOrderCount,
	MetricAverageOrderValue,
	MetricNewCustomers,
	MetricProductSalesVolume,
}

// Severity classifies how far a metric strayed from its baseline.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// DefaultRollingWindowDays is the baseline lookback used when a Sentry is
// constructed without an explicit override.
const DefaultRollingWindowDays = 7

// DefaultHistoryLimit bounds the alert history ring buffer.
const DefaultHistoryLimit = 100

// Alert is one sentry finding.
type Alert struct {
	Metric       MetricName `json:"metric"`
	Timestamp    time.Time  `json:"timestamp"`
	Value        float64    `json:"value"`
	Baseline     float64    `json:"baseline"`
	DeviationPct float64    `json:"deviation_pct"`
	Severity     Severity   `json:"severity"`
	RootCause    string     `json:"root_cause,omitempty"`
}

// MetricSource resolves a metric's current value and its rolling baseline
// (the mean of the window days preceding day, excluding day itself).
type MetricSource interface {
	Value(ctx context.Context, metric MetricName, day time.Time) (float64, error)
	Baseline(ctx context.Context, metric MetricName, day time.Time, windowDays int) (float64, error)
}

// Sentry runs a periodic sweep of DefaultMetrics (or a caller-supplied
// list) against MetricSource, publishing an Alert to its AlertBus for
// every WARNING/CRITICAL deviation and appending every deviation
// (including INFO) to a bounded history.
type Sentry struct {
	source            MetricSource
	metrics           []MetricName
	rollingWindowDays int
	historyLimit      int
	clock             clockwork.Clock
	bus               *AlertBus
	logger            *zap.Logger

	mu       sync.Mutex
	history  []Alert
	sweeping bool
}

// Option configures a Sentry at construction.
type Option func(*Sentry)

// WithMetrics overrides the default watch list.
func WithMetrics(metrics []MetricName) Option {
	return func(s *Sentry) { s.metrics = metrics }
}

// WithRollingWindowDays overrides DefaultRollingWindowDays.
func WithRollingWindowDays(days int) Option {
	return func(s *Sentry) { s.rollingWindowDays = days }
}

// WithHistoryLimit overrides DefaultHistoryLimit.
func WithHistoryLimit(limit int) Option {
	return func(s *Sentry) { s.historyLimit = limit }
}

// WithClock injects a clockwork.Clock, letting tests control sweep timing
// deterministically instead of sleeping on a real ticker.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Sentry) { s.clock = clock }
}

// NewSentry builds a Sentry against source and bus.
func NewSentry(source MetricSource, bus *AlertBus, logger *zap.Logger, opts ...Option) *Sentry {
	s := &Sentry{
		source:            source,
		metrics:           DefaultMetrics,
		rollingWindowDays: DefaultRollingWindowDays,
		historyLimit:      DefaultHistoryLimit,
		clock:             clockwork.NewRealClock(),
		bus:               bus,
		logger:            logger.Named("sentry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run schedules a sweep every interval until ctx is cancelled. Ticks that
// arrive while a previous sweep is still running are skipped and logged,
// rather than allowed to queue or run concurrently.
func (s *Sentry) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Sentry) tick(ctx context.Context) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		s.logger.Warn("skipping sweep tick, previous sweep still running")
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("sentry sweep failed", zap.Error(err))
	}
}

// Sweep runs one pass over every watched metric, appending each finding to
// history and publishing anything at WARNING or above.
func (s *Sentry) Sweep(ctx context.Context) error {
	now := s.clock.Now()

	for _, metric := range s.metrics {
		alert, err := s.checkMetric(ctx, metric, now)
		if errors.Is(err, ErrMetricSkipped) {
			s.logger.Debug("metric skipped, zero baseline", zap.String("metric", string(metric)))
			continue
		}
		if err != nil {
			s.logger.Error("metric check failed", zap.String("metric", string(metric)), zap.Error(err))
			continue
		}

		s.recordHistory(alert)
		if alert.Severity != SeverityInfo {
			s.bus.Publish(alert)
		}
	}
	return nil
}

// CheckMetric evaluates a single metric on demand, outside the periodic
// sweep — the path the sentry control surface's check_metric operation
// uses.
func (s *Sentry) CheckMetric(ctx context.Context, metric MetricName) (Alert, error) {
	return s.checkMetric(ctx, metric, s.clock.Now())
}

func (s *Sentry) checkMetric(ctx context.Context, metric MetricName, day time.Time) (Alert, error) {
	value, err := s.source.Value(ctx, metric, day)
	if err != nil {
		return Alert{}, fmt.Errorf("fetch value for %s: %w", metric, err)
	}
	baseline, err := s.source.Baseline(ctx, metric, day, s.rollingWindowDays)
	if err != nil {
		return Alert{}, fmt.Errorf("fetch baseline for %s: %w", metric, err)
	}
	if baseline == 0 {
		return Alert{}, ErrMetricSkipped
	}

	deviation := deviationPercent(value, baseline)
	severity := classifySeverity(deviation)

	alert := Alert{
		Metric:       metric,
		Timestamp:    day,
		Value:        value,
		Baseline:     baseline,
		DeviationPct: deviation,
		Severity:     severity,
	}
	if severity != SeverityInfo {
		alert.RootCause = composeRootCause(metric, deviation)
	}
	return alert, nil
}

func (s *Sentry) recordHistory(alert Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, alert)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

// RecentAlerts returns up to n of the most recent history entries, newest
// last. n<=0 returns the full bounded history.
func (s *Sentry) RecentAlerts(n int) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n >= len(s.history) {
		out := make([]Alert, len(s.history))
		copy(out, s.history)
		return out
	}
	out := make([]Alert, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// deviationPercent returns the signed percentage deviation of value from
// baseline. A zero baseline has nothing to divide by, so it reports no
// deviation — checkMetric skips the metric entirely before ever reaching
// this point, this is a defensive fallback only.
func deviationPercent(value, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}

// classifySeverity implements the CRITICAL >=50%, WARNING >=30% thresholds
// on the absolute deviation.
func classifySeverity(deviationPct float64) Severity {
	abs := deviationPct
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 50:
		return SeverityCritical
	case abs >= 30:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// rootCauseHints pairs each metric with a direction-aware, plain-language
// hint, mirroring the checklist original_source's sentry produced for
// analysts triaging an alert.
var rootCauseHints = map[MetricName]struct{ drop, rise string }{
	MetricDailyRevenue: {
		drop: "check for order volume drops, payment processing failures, or refund spikes",
		rise: "verify no double-counted orders or an unlogged promotional push",
	},
	MetricOrderCount: {
		drop: "check for checkout errors, an outage, or a marketing channel pause",
		rise: "verify no bot traffic or duplicate order submission",
	},
	MetricAverageOrderValue: {
		drop: "check for a shift toward lower-priced SKUs or a new discount code",
		rise: "check for a bulk order or a pricing/currency error",
	},
	MetricNewCustomers: {
		drop: "check signup funnel errors or a paused acquisition channel",
		rise: "check for a referral spike, press mention, or bot signups",
	},
	MetricProductSalesVolume: {
		drop: "check for a stockout, listing removal, or catalog sync issue",
		rise: "check for a viral mention or a competitor stockout redirecting demand",
	},
}

// composeRootCause builds a direction-aware root-cause hint for a
// WARNING/CRITICAL deviation.
func composeRootCause(metric MetricName, deviationPct float64) string {
	hints, ok := rootCauseHints[metric]
	if !ok {
		return fmt.Sprintf("%s deviated %.1f%% from its rolling baseline", metric, deviationPct)
	}

	direction := "rose"
	hint := hints.rise
	if deviationPct < 0 {
		direction = "dropped"
		hint = hints.drop
	}
	return fmt.Sprintf("%s %s %.1f%% versus its rolling baseline; %s", metric, direction, absFloat(deviationPct), hint)
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
