// Package sandbox implements the CodeSandbox (C5): isolated execution of
// analytics recipe code against in-memory tables, with two isolation
// tiers that auto-select at construction. Grounded on the teacher's
// container lifecycle idiom in pkg/testhelpers/containers.go (adapted here
// from a fixed test-database image to an on-demand, network-disabled
// analytics runner) and, for the restricted in-process tier, on
// extism/go-sdk's wazero-backed plugin sandboxing.
package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout and DefaultMemoryLimitMiB implement the spec's per-run
// resource caps: 30 seconds of wall clock, 512MiB of memory.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultMemoryLimitMiB = 512
)

// Table is one named input table, passed to sandboxed code as columnar
// rows so both isolation tiers can serialize it the same way.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Result is the outcome of one sandboxed run.
type Result struct {
	Success       bool           `json:"success"`
	Result        any            `json:"result,omitempty"`
	Output        string         `json:"output,omitempty"`
	Error         string         `json:"error,omitempty"`
	Visualization map[string]any `json:"visualization,omitempty"`
}

// Tier identifies which isolation strategy produced a Result.
type Tier string

const (
	// TierContainer is the ephemeral, network-disabled container tier.
	TierContainer Tier = "container"
	// TierRestricted is the in-process restricted-interpreter tier.
	TierRestricted Tier = "restricted"
)

// Runner executes analytics code against a set of input tables.
type Runner interface {
	Tier() Tier
	Run(ctx context.Context, code string, tables []Table, timeout time.Duration) (Result, error)
}

// Mode selects which tier the Sandbox should prefer.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeContainer  Mode = "container"
	ModeRestricted Mode = "restricted"
)

// Sandbox is the CodeSandbox facade: it selects a Runner at construction
// time and degrades from container to restricted execution when the
// container tier is unavailable, logging the decision once.
type Sandbox struct {
	runner Runner
	logger *zap.Logger
}

// New selects a Runner according to mode and returns the assembled
// Sandbox. In ModeAuto, it prefers the container tier and falls back to
// the restricted tier if the container tier cannot be constructed (for
// example, no Docker daemon is reachable) — the fallback is logged, never
// silent.
func New(ctx context.Context, mode Mode, logger *zap.Logger, containerImage string) (*Sandbox, error) {
	logger = logger.Named("sandbox")

	tryContainer := mode == ModeAuto || mode == ModeContainer
	if tryContainer {
		runner, err := newContainerRunner(ctx, containerImage, logger)
		if err == nil {
			logger.Info("sandbox tier selected", zap.String("tier", string(TierContainer)))
			return &Sandbox{runner: runner, logger: logger}, nil
		}
		if mode == ModeContainer {
			return nil, err
		}
		logger.Warn("container tier unavailable, degrading to restricted tier", zap.Error(err))
	}

	runner, err := newWasmRunner(logger)
	if err != nil {
		return nil, err
	}
	logger.Info("sandbox tier selected", zap.String("tier", string(TierRestricted)))
	return &Sandbox{runner: runner, logger: logger}, nil
}

// Tier reports which isolation strategy is active.
func (s *Sandbox) Tier() Tier { return s.runner.Tier() }

// Run executes code against tables, applying DefaultTimeout when timeout
// is zero.
func (s *Sandbox) Run(ctx context.Context, code string, tables []Table, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.runner.Run(ctx, code, tables, timeout)
	if err != nil {
		s.logger.Error("sandbox run failed", zap.Error(err), zap.String("tier", string(s.runner.Tier())))
		return Result{Success: false, Error: err.Error()}, nil
	}
	return result, nil
}
