package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"
	"go.uber.org/zap"
)

// defaultContainerImage runs the sandboxed analytics recipe under a plain
// Python interpreter with pandas preinstalled. Operators can point Sandbox
// at a hardened equivalent via the constructor argument.
const defaultContainerImage = "python:3.12-slim"

// containerRunner is the Tier A isolation strategy: a fresh, network-
// disabled container per run, torn down immediately afterward.
type containerRunner struct {
	image  string
	logger *zap.Logger
}

// newContainerRunner verifies the configured image is reachable by
// starting and immediately discarding a throwaway container — cheaper
// tiers should not silently mask a broken Docker environment until the
// first real analytics request.
func newContainerRunner(ctx context.Context, image string, logger *zap.Logger) (*containerRunner, error) {
	if image == "" {
		image = defaultContainerImage
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:      image,
		Cmd:        []string{"true"},
		WaitingFor: nil,
	}
	c, err := testcontainers.GenericContainer(probeCtx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("container tier probe failed: %w", err)
	}
	defer c.Terminate(probeCtx)

	return &containerRunner{image: image, logger: logger.Named("container")}, nil
}

func (r *containerRunner) Tier() Tier { return TierContainer }

type sandboxPayload struct {
	Code   string  `json:"code"`
	Tables []Table `json:"tables"`
}

// entrypointScript decodes the payload mounted at /workspace/payload.json,
// builds a pandas DataFrame per table, executes the recipe code with
// `tables` and `result` bound in its namespace, and prints the JSON
// result to stdout as the sole line of output.
const entrypointScript = `
import json, sys
import pandas as pd

with open("/workspace/payload.json") as f:
    payload = json.load(f)

tables = {}
for t in payload["tables"]:
    tables[t["name"]] = pd.DataFrame(t["rows"], columns=t["columns"])

result = None
namespace = {"tables": tables, "pd": pd, "result": None}
try:
    exec(payload["code"], namespace)
    print(json.dumps({"success": True, "result": namespace.get("result")}, default=str))
except Exception as exc:
    print(json.dumps({"success": False, "error": str(exc)}))
`

// Run starts one container, mounts the payload, executes entrypointScript,
// and parses its single line of JSON stdout as the Result.
func (r *containerRunner) Run(ctx context.Context, code string, tables []Table, timeout time.Duration) (Result, error) {
	payload, err := json.Marshal(sandboxPayload{Code: code, Tables: tables})
	if err != nil {
		return Result{}, fmt.Errorf("marshal sandbox payload: %w", err)
	}

	req := testcontainers.ContainerRequest{
		Image: r.image,
		Cmd:   []string{"python", "-c", entrypointScript},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            newReader(payload),
				ContainerFilePath: "/workspace/payload.json",
				FileMode:          0o644,
			},
		},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.NetworkMode = "none"
			hc.Memory = DefaultMemoryLimitMiB * 1024 * 1024
			hc.PidsLimit = int64Ptr(64)
		},
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("start sandbox container: %w", err)
	}
	defer c.Terminate(context.WithoutCancel(ctx))

	if err := waitForExit(ctx, c); err != nil {
		return Result{}, err
	}

	logs, err := c.Logs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read sandbox container logs: %w", err)
	}
	defer logs.Close()

	var parsed struct {
		Success bool   `json:"success"`
		Result  any    `json:"result"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(logs).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("decode sandbox output: %w", err)
	}

	return Result{Success: parsed.Success, Result: parsed.Result, Error: parsed.Error}, nil
}

func int64Ptr(v int64) *int64 { return &v }

// waitForExit polls container state until the one-shot recipe process has
// exited or the caller's timeout (already applied to ctx) fires.
func waitForExit(ctx context.Context, c testcontainers.Container) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		state, err := c.State(ctx)
		if err != nil {
			return fmt.Errorf("poll sandbox container state: %w", err)
		}
		if !state.Running {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("sandbox run exceeded its timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func newReader(data []byte) io.Reader { return bytes.NewReader(data) }
