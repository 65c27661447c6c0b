// Package config loads queryengine's runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the query engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values for fields
// that support both. Secrets (API keys, database URLs) must only come from
// environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"`

	// Primary tier backs the Architect and Critic. Reasoning tier backs the
	// Critic when configured; the pipeline falls back to the primary tier
	// when it is not.
	Primary   LLMConfig `yaml:"primary_llm"`
	Reasoning LLMConfig `yaml:"reasoning_llm"`

	WebSearch WebSearchConfig `yaml:"web_search"`
	Database  DatabaseConfig  `yaml:"database"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Sentry    SentryConfig    `yaml:"sentry"`
	PII       PIIConfig       `yaml:"pii"`
}

// LLMConfig configures a single OpenAI-compatible model endpoint.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint" env-default:""`
	Model    string `yaml:"model" env-default:""`
	APIKey   string `yaml:"-"` // secret, env only
}

// IsAvailable reports whether this tier has a usable key and model.
func (c LLMConfig) IsAvailable() bool {
	return c.APIKey != "" && c.Model != ""
}

// WebSearchConfig configures the C9 research adapter.
type WebSearchConfig struct {
	APIKey  string `yaml:"-"`
	BaseURL string `yaml:"base_url" env:"WEB_SEARCH_BASE_URL" env-default:"https://api.tavily.com"`
}

// IsAvailable reports whether web research is enabled.
func (c WebSearchConfig) IsAvailable() bool {
	return c.APIKey != ""
}

// DatabaseConfig configures the analytical Postgres connection used by C4
// and C10. URL is the only accepted form; it is secret and env-only.
type DatabaseConfig struct {
	URL            string `yaml:"-"`
	MaxConnections int32  `yaml:"max_connections" env:"DB_MAX_CONNECTIONS" env-default:"10"`
	MinConnections int32  `yaml:"min_connections" env:"DB_MIN_CONNECTIONS" env-default:"1"`
}

// SandboxMode selects which CodeSandbox tier the executor prefers.
type SandboxMode string

const (
	// SandboxModeAuto lets the sandbox degrade from container to restricted.
	SandboxModeAuto SandboxMode = "auto"
	// SandboxModeContainer forces Tier A (ephemeral, network-disabled container).
	SandboxModeContainer SandboxMode = "container"
	// SandboxModeRestricted forces Tier B (in-process WASM interpreter).
	SandboxModeRestricted SandboxMode = "restricted"
)

// SandboxConfig configures C5.
type SandboxConfig struct {
	Mode           SandboxMode `yaml:"mode" env:"SANDBOX_MODE" env-default:"auto"`
	TimeoutSeconds int         `yaml:"timeout_seconds" env:"SANDBOX_TIMEOUT_SECONDS" env-default:"30"`
}

// SentryConfig configures C10.
type SentryConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" env:"SENTRY_INTERVAL_MINUTES" env-default:"5"`
}

// PIIConfig configures C3.
type PIIConfig struct {
	AdvancedDetection bool `yaml:"advanced_detection" env:"PII_ADVANCED_DETECTION" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable
// overrides, then layers on the secret-only environment variables that
// never appear in YAML. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.loadSecrets()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSecrets copies the yaml:"-" fields directly from the environment.
// These never round-trip through cleanenv struct tags because a bare
// process-substitution key must never be written back to a config file.
func loadSecrets() map[string]string {
	names := []string{
		"PRIMARY_LLM_API_KEY", "REASONING_LLM_API_KEY",
		"WEB_SEARCH_API_KEY", "DATABASE_URL",
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = os.Getenv(n)
	}
	return out
}

func (c *Config) loadSecrets() {
	env := loadSecrets()
	c.Primary.APIKey = env["PRIMARY_LLM_API_KEY"]
	c.Reasoning.APIKey = env["REASONING_LLM_API_KEY"]
	c.WebSearch.APIKey = env["WEB_SEARCH_API_KEY"]
	c.Database.URL = env["DATABASE_URL"]
}

// validate enforces the fail-fast startup contract of the error handling
// design: a missing primary LLM key or database URL must never surface as
// a runtime failure on the first request.
func (c *Config) validate() error {
	if !c.Primary.IsAvailable() {
		return fmt.Errorf("primary LLM is not configured: PRIMARY_LLM_API_KEY and primary_llm.model are required")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Sandbox.Mode {
	case SandboxModeAuto, SandboxModeContainer, SandboxModeRestricted:
	default:
		return fmt.Errorf("invalid sandbox mode %q", c.Sandbox.Mode)
	}
	return nil
}

// ReasoningOrPrimary returns the reasoning tier when configured, otherwise
// falls back to the primary tier, matching the Critic's "backed by a
// higher-reasoning LLM when available" contract.
func (c *Config) ReasoningOrPrimary() LLMConfig {
	if c.Reasoning.IsAvailable() {
		return c.Reasoning
	}
	return c.Primary
}
