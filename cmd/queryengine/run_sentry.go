package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/config"
	"github.com/querymind/engine/pkg/datasource"
	"github.com/querymind/engine/pkg/logging"
	"github.com/querymind/engine/pkg/monitor"
)

var sentryIntervalMinutes int

var runSentryCmd = &cobra.Command{
	Use:   "run-sentry",
	Short: "Run the anomaly sentry loop in headless mode",
	RunE:  runRunSentry,
}

func init() {
	runSentryCmd.Flags().IntVar(&sentryIntervalMinutes, "interval", 0, "sweep interval in minutes (defaults to sentry.interval_minutes from config)")
}

func runRunSentry(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := datasource.Open(ctx, datasource.Config{
		URL:            cfg.Database.URL,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MinConnections,
	}, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	interval := time.Duration(cfg.Sentry.IntervalMinutes) * time.Minute
	if sentryIntervalMinutes > 0 {
		interval = time.Duration(sentryIntervalMinutes) * time.Minute
	}

	bus := monitor.NewAlertBus(logger)
	alerts, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()

	go func() {
		for alert := range alerts {
			logger.Warn("anomaly detected",
				zap.String("metric", string(alert.Metric)),
				zap.String("severity", string(alert.Severity)),
				zap.Float64("deviation_pct", alert.DeviationPct),
				zap.String("root_cause", alert.RootCause))
		}
	}()

	sentry := monitor.NewSentry(monitor.NewSQLMetricSource(pool.Pool), bus, logger,
		monitor.WithRollingWindowDays(monitor.DefaultRollingWindowDays))

	logger.Info("starting sentry loop", zap.Duration("interval", interval))
	sentry.Run(ctx, interval)
	return nil
}
