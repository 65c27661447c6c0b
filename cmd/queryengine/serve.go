package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/analytics"
	"github.com/querymind/engine/pkg/config"
	"github.com/querymind/engine/pkg/datasource"
	"github.com/querymind/engine/pkg/glossary"
	"github.com/querymind/engine/pkg/httpapi"
	"github.com/querymind/engine/pkg/llm"
	"github.com/querymind/engine/pkg/logging"
	"github.com/querymind/engine/pkg/monitor"
	"github.com/querymind/engine/pkg/pii"
	"github.com/querymind/engine/pkg/pipeline"
	"github.com/querymind/engine/pkg/research"
	"github.com/querymind/engine/pkg/sandbox"
	"github.com/querymind/engine/pkg/schema"
	"github.com/querymind/engine/pkg/sql"
)

var (
	glossaryPath     string
	schemaLibraryDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query engine HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&glossaryPath, "glossary", "glossary.yaml", "path to the business glossary YAML document")
	serveCmd.Flags().StringVar(&schemaLibraryDir, "schema-dir", "schema_library", "directory holding the persisted schema index")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	factory := llm.NewClientFactory(logger)
	primaryClient, err := factory.Create(llm.TierConfig{
		Endpoint: cfg.Primary.Endpoint,
		Model:    cfg.Primary.Model,
		APIKey:   cfg.Primary.APIKey,
	}, "primary")
	if err != nil {
		return fmt.Errorf("create primary LLM client: %w", err)
	}

	criticTier := cfg.ReasoningOrPrimary()
	criticClient, err := factory.Create(llm.TierConfig{
		Endpoint: criticTier.Endpoint,
		Model:    criticTier.Model,
		APIKey:   criticTier.APIKey,
	}, "critic")
	if err != nil {
		return fmt.Errorf("create critic LLM client: %w", err)
	}

	schemaIndex := schema.New(primaryClient, primaryClient.GetModel(), logger)
	if err := schemaIndex.LoadFromDir(ctx, schemaLibraryDir); err != nil {
		return fmt.Errorf("load schema library: %w", err)
	}

	gl, err := glossary.Load(glossaryPath, schemaIndex, logger)
	if err != nil {
		logger.Warn("no business glossary loaded, continuing without one", zap.Error(err))
		gl = &glossary.Glossary{}
	}

	guardrail := pii.New(nil)
	if cfg.PII.AdvancedDetection {
		logger.Warn("PII advanced detection requested but no AdvancedDetector is wired; falling back to pattern-only detection")
	}

	sqlExecutor := sql.NewExecutor(pool.Pool)

	sandboxRunner, err := sandbox.New(ctx, sandbox.Mode(cfg.Sandbox.Mode), logger, "")
	if err != nil {
		return fmt.Errorf("initialize sandbox: %w", err)
	}

	var researchFetcher *research.Fetcher
	if cfg.WebSearch.IsAvailable() {
		researchFetcher = research.New(research.NewHTTPProvider(cfg.WebSearch.BaseURL, cfg.WebSearch.APIKey), logger)
	} else {
		researchFetcher = research.New(nil, logger)
	}

	genPipeline := pipeline.New(
		&pipeline.LLMArchitect{Client: primaryClient},
		&pipeline.LLMCritic{Client: criticClient},
		pipeline.SafetyValidator{},
		logger,
	)

	alertBus := monitor.NewAlertBus(logger)
	metricSource := monitor.NewSQLMetricSource(pool.Pool)
	sentry := monitor.NewSentry(metricSource, alertBus, logger,
		monitor.WithRollingWindowDays(monitor.DefaultRollingWindowDays))
	go sentry.Run(ctx, time.Duration(cfg.Sentry.IntervalMinutes)*time.Minute)

	mux := http.NewServeMux()
	(&httpapi.QueryHandler{
		Schema:    schemaIndex,
		Glossary:  gl,
		Guardrail: guardrail,
		Pipeline:  genPipeline,
		Executor:  sqlExecutor,
		Planner:   analytics.NewPlanner(),
		Sandbox:   sandboxRunner,
		Research:  researchFetcher,
		Logger:    logger,
	}).RegisterRoutes(mux)
	(&httpapi.SentryHandler{Sentry: sentry, Bus: alertBus, Logger: logger}).RegisterRoutes(mux)

	server := &http.Server{Addr: cfg.BindAddr + ":" + cfg.Port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("starting queryengine",
		zap.String("addr", server.Addr),
		zap.String("version", cfg.Version),
		zap.String("sandbox_tier", string(sandboxRunner.Tier())))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
