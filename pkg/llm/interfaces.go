// Package llm wraps an OpenAI-compatible chat/embedding endpoint with the
// resilience (circuit breaking, error classification) the pipeline and
// schema index need from every model call.
package llm

import "context"

// LLMClient is the seam every consumer of a model endpoint depends on
// instead of *Client directly, so pipeline and schema tests can supply a
// stub.
type LLMClient interface {
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)
	GetModel() string
	GetEndpoint() string
}

var _ LLMClient = (*Client)(nil)
