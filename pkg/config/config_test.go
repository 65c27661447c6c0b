package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setupConfigDir(t *testing.T, yamlContent string) {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() { os.Chdir(originalDir) })
}

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("PRIMARY_LLM_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/queryengine")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	setupConfigDir(t, `
port: "3443"
env: "test"
primary_llm:
  model: "gpt-4o"
`)
	setRequiredSecrets(t)
	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
}

func TestLoad_MissingPrimaryLLMKey(t *testing.T) {
	setupConfigDir(t, `
port: "3443"
primary_llm:
  model: "gpt-4o"
`)
	t.Setenv("DATABASE_URL", "postgres://localhost/queryengine")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error when PRIMARY_LLM_API_KEY is missing")
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setupConfigDir(t, `
primary_llm:
  model: "gpt-4o"
`)
	t.Setenv("PRIMARY_LLM_API_KEY", "test-key")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_InvalidSandboxMode(t *testing.T) {
	setupConfigDir(t, `
primary_llm:
  model: "gpt-4o"
sandbox:
  mode: "bogus"
`)
	setRequiredSecrets(t)

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for invalid sandbox mode")
	}
}

func TestLoad_SentryDefaults(t *testing.T) {
	setupConfigDir(t, `
primary_llm:
  model: "gpt-4o"
`)
	setRequiredSecrets(t)

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Sentry.IntervalMinutes != 5 {
		t.Errorf("expected default sentry interval 5, got %d", cfg.Sentry.IntervalMinutes)
	}
	if cfg.Sandbox.Mode != SandboxModeAuto {
		t.Errorf("expected default sandbox mode auto, got %s", cfg.Sandbox.Mode)
	}
}

func TestReasoningOrPrimary_FallsBackToPrimary(t *testing.T) {
	cfg := &Config{
		Primary: LLMConfig{APIKey: "k", Model: "gpt-4o"},
	}
	got := cfg.ReasoningOrPrimary()
	if got.Model != "gpt-4o" {
		t.Errorf("expected fallback to primary, got %+v", got)
	}
}

func TestReasoningOrPrimary_PrefersReasoning(t *testing.T) {
	cfg := &Config{
		Primary:   LLMConfig{APIKey: "k", Model: "gpt-4o"},
		Reasoning: LLMConfig{APIKey: "k2", Model: "o1"},
	}
	got := cfg.ReasoningOrPrimary()
	if got.Model != "o1" {
		t.Errorf("expected reasoning tier, got %+v", got)
	}
}
