package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// TierConfig is the subset of config.LLMConfig a factory needs to build a
// client, kept local to avoid an import cycle with pkg/config.
type TierConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

// ClientFactory builds the primary and reasoning-tier clients the pipeline
// needs. The Critic prefers the reasoning tier when configured and falls
// back to the primary tier otherwise, matching the "backed by a
// higher-reasoning LLM when available" contract.
type ClientFactory struct {
	logger *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(logger *zap.Logger) *ClientFactory {
	return &ClientFactory{logger: logger}
}

// Create builds a client for the given tier, tagging its logs with label.
func (f *ClientFactory) Create(cfg TierConfig, label string) (LLMClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("create %s client: model is required", label)
	}
	client, err := NewClient(&Config{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Label:    label,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", label, err)
	}
	return client, nil
}
