package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"
)

// restrictedInterpreterPathEnv names the environment variable pointing at
// the precompiled restricted-interpreter WASM module the wasmRunner loads.
// The module itself enforces the import allow-list (pandas/numpy/math/
// statistics only, no os/sys/socket/subprocess); this package only grants
// it wazero's default no-network, no-filesystem sandbox.
const restrictedInterpreterPathEnv = "QUERYMIND_RESTRICTED_INTERPRETER_WASM"

// wasmRunner is the Tier B isolation strategy: an in-process wazero guest
// with no host capabilities beyond WASI stdio, used when the container
// tier is unavailable.
type wasmRunner struct {
	plugin *extism.Plugin
	logger *zap.Logger
}

// newWasmRunner loads the restricted-interpreter module named by
// restrictedInterpreterPathEnv. Its manifest grants no allowed hosts and
// no allowed paths, so the guest can reach neither the network nor the
// host filesystem regardless of what the interpreted code attempts.
func newWasmRunner(logger *zap.Logger) (*wasmRunner, error) {
	path := os.Getenv(restrictedInterpreterPathEnv)
	if path == "" {
		return nil, fmt.Errorf("%s is not set: the restricted-interpreter tier requires a precompiled WASM module", restrictedInterpreterPathEnv)
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read restricted interpreter module: %w", err)
	}

	manifest := extism.Manifest{
		Wasm:         []extism.Wasm{extism.WasmData{Data: wasmBytes}},
		AllowedHosts: []string{},
		AllowedPaths: map[string]string{},
		Memory: &extism.ManifestMemory{
			MaxPages: DefaultMemoryLimitMiB * 1024 * 1024 / (64 * 1024),
		},
	}
	config := extism.PluginConfig{EnableWasi: true}

	plugin, err := extism.NewPlugin(context.Background(), manifest, config, []extism.HostFunction{})
	if err != nil {
		return nil, fmt.Errorf("load restricted interpreter module: %w", err)
	}

	return &wasmRunner{plugin: plugin, logger: logger.Named("wasm")}, nil
}

func (r *wasmRunner) Tier() Tier { return TierRestricted }

// Run marshals code and tables into the plugin's "run" export and expects
// back a JSON-encoded Result. Each call is independent; the guest holds no
// state across runs.
func (r *wasmRunner) Run(ctx context.Context, code string, tables []Table, timeout time.Duration) (Result, error) {
	input, err := json.Marshal(sandboxPayload{Code: code, Tables: tables})
	if err != nil {
		return Result{}, fmt.Errorf("marshal sandbox payload: %w", err)
	}

	done := make(chan struct{})
	var exitCode uint32
	var output []byte
	var callErr error

	go func() {
		exitCode, output, callErr = r.plugin.Call("run", input)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("sandbox run exceeded its timeout: %w", ctx.Err())
	case <-done:
	}

	if callErr != nil {
		return Result{}, fmt.Errorf("restricted interpreter call failed (exit %d): %w", exitCode, callErr)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("decode restricted interpreter output: %w", err)
	}
	return result, nil
}
