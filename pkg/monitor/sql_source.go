package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// metricQueries pairs each default metric with the two parameterized
// queries a SQLMetricSource needs: Value computes the metric for exactly
// one day, Baseline averages it over the preceding window days excluding
// that day. Both take $1 as the reference date; Baseline also takes $2 as
// the window size in days.
var metricQueries = map[MetricName]struct{ value, baseline string }{
	MetricDailyRevenue: {
		value:    `SELECT COALESCE(SUM(total), 0) FROM orders WHERE order_date = $1::date`,
		baseline: `SELECT COALESCE(AVG(daily_total), 0) FROM (SELECT SUM(total) AS daily_total FROM orders WHERE order_date >= $1::date - $2::int AND order_date < $1::date GROUP BY order_date) d`,
	},
	MetricOrderCount: {
		value:    `SELECT COUNT(*) FROM orders WHERE order_date = $1::date`,
		baseline: `SELECT COALESCE(AVG(daily_count), 0) FROM (SELECT COUNT(*) AS daily_count FROM orders WHERE order_date >= $1::date - $2::int AND order_date < $1::date GROUP BY order_date) d`,
	},
	MetricAverageOrderValue: {
		value:    `SELECT COALESCE(AVG(total), 0) FROM orders WHERE order_date = $1::date`,
		baseline: `SELECT COALESCE(AVG(daily_avg), 0) FROM (SELECT AVG(total) AS daily_avg FROM orders WHERE order_date >= $1::date - $2::int AND order_date < $1::date GROUP BY order_date) d`,
	},
	MetricNewCustomers: {
		value:    `SELECT COUNT(*) FROM customers WHERE created_date = $1::date`,
		baseline: `SELECT COALESCE(AVG(daily_count), 0) FROM (SELECT COUNT(*) AS daily_count FROM customers WHERE created_date >= $1::date - $2::int AND created_date < $1::date GROUP BY created_date) d`,
	},
	MetricProductSalesVolume: {
		value:    `SELECT COALESCE(SUM(quantity), 0) FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.order_date = $1::date`,
		baseline: `SELECT COALESCE(AVG(daily_qty), 0) FROM (SELECT SUM(oi.quantity) AS daily_qty FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.order_date >= $1::date - $2::int AND o.order_date < $1::date GROUP BY o.order_date) d`,
	},
}

// SQLMetricSource is the default MetricSource, backed directly by the
// analytical Postgres pool rather than the read-only Executor: baseline
// queries need a parameterized window that the executor's row-limit
// wrapping does not need to enforce for an aggregate scalar.
type SQLMetricSource struct {
	pool *pgxpool.Pool
}

// NewSQLMetricSource wraps pool for use as a Sentry MetricSource.
func NewSQLMetricSource(pool *pgxpool.Pool) *SQLMetricSource {
	return &SQLMetricSource{pool: pool}
}

// Value implements MetricSource.
func (s *SQLMetricSource) Value(ctx context.Context, metric MetricName, day time.Time) (float64, error) {
	q, ok := metricQueries[metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
	var value float64
	if err := s.pool.QueryRow(ctx, q.value, day).Scan(&value); err != nil {
		return 0, fmt.Errorf("query %s value: %w", metric, err)
	}
	return value, nil
}

// Baseline implements MetricSource.
func (s *SQLMetricSource) Baseline(ctx context.Context, metric MetricName, day time.Time, windowDays int) (float64, error) {
	q, ok := metricQueries[metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
	var baseline float64
	if err := s.pool.QueryRow(ctx, q.baseline, day, windowDays).Scan(&baseline); err != nil {
		return 0, fmt.Errorf("query %s baseline: %w", metric, err)
	}
	return baseline, nil
}
