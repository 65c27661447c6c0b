// Package research implements the ResearchFetcher (C9): an opaque web
// search adapter the pipeline consults for questions the schema cannot
// answer. Grounded on the teacher's retry.Do usage pattern in pkg/llm and
// on this module's config.WebSearchConfig for provider credentials.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/querymind/engine/pkg/retry"
)

// Mode selects the search provider's result shape.
type Mode string

const (
	ModeGeneral  Mode = "general"
	ModeNews     Mode = "news"
	ModeAcademic Mode = "academic"
)

// Item is one search result.
type Item struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Findings is the ResearchFetcher's output shape. A provider outage never
// surfaces as an error to the caller: Findings is returned empty and the
// failure is logged, so a research-augmented query degrades to
// schema-only answering instead of failing outright.
type Findings struct {
	Summary string `json:"summary"`
	Results []Item `json:"results"`
}

// Provider is the underlying search backend.
type Provider interface {
	Search(ctx context.Context, query string, mode Mode) (Findings, error)
}

// Fetcher wraps a Provider with the fetcher's never-raises contract and
// retry policy.
type Fetcher struct {
	provider Provider
	logger   *zap.Logger
}

// New builds a Fetcher. provider may be nil, in which case Search always
// returns empty Findings — matching the "no research provider configured"
// deployment posture.
func New(provider Provider, logger *zap.Logger) *Fetcher {
	return &Fetcher{provider: provider, logger: logger.Named("research")}
}

// Search never returns an error: provider failures and a nil provider both
// degrade to empty Findings, logged at Warn.
func (f *Fetcher) Search(ctx context.Context, query string, mode Mode) Findings {
	if f.provider == nil {
		f.logger.Warn("research requested with no provider configured", zap.String("query", query))
		return Findings{}
	}

	var findings Findings
	err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		var err error
		findings, err = f.provider.Search(ctx, query, mode)
		return err
	})
	if err != nil {
		f.logger.Warn("research provider unavailable, degrading to schema-only answer", zap.Error(err), zap.String("query", query))
		return Findings{}
	}
	return findings
}

// HTTPProvider is a stdlib-http-based Provider for OpenAI-compatible web
// search endpoints, matching config.WebSearchConfig's {APIKey, BaseURL}
// shape.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider builds an HTTPProvider against baseURL, authenticating
// with apiKey via a bearer token.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type searchResponse struct {
	Summary string `json:"summary"`
	Results []Item `json:"results"`
}

// Search implements Provider.
func (p *HTTPProvider) Search(ctx context.Context, query string, mode Mode) (Findings, error) {
	body, err := json.Marshal(searchRequest{Query: query, Mode: string(mode)})
	if err != nil {
		return Findings{}, fmt.Errorf("marshal search request: %w", err)
	}

	endpoint, err := url.JoinPath(p.baseURL, "search")
	if err != nil {
		return Findings{}, fmt.Errorf("build search endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Findings{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Findings{}, &retryableError{err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Findings{}, &retryableError{fmt.Errorf("search provider returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return Findings{}, fmt.Errorf("search provider returned %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Findings{}, fmt.Errorf("decode search response: %w", err)
	}
	return Findings{Summary: parsed.Summary, Results: parsed.Results}, nil
}

// retryableError marks transient provider failures (network errors, 5xx
// responses) as retryable per pkg/retry.RetryableError.
type retryableError struct{ err error }

func (r *retryableError) Error() string     { return r.err.Error() }
func (r *retryableError) Unwrap() error     { return r.err }
func (r *retryableError) IsRetryable() bool { return true }
