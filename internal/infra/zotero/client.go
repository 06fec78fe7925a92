package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/metrics"
	"github.com/citelinker/resolver/internal/resolve/classify"
	"github.com/citelinker/resolver/internal/resolve/ratelimit"
)

// Candidate is one option when identifier resolution is ambiguous.
type Candidate struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}

// ResolveResult is the outcome of a resolve call: either a stored record
// key with its citation, or a list of candidates needing user selection.
type ResolveResult struct {
	Key        string           `json:"key,omitempty"`
	Citation   *domain.Citation `json:"citation,omitempty"`
	Candidates []Candidate      `json:"candidates,omitempty"`
}

// Ambiguous reports whether the caller must pick among candidates.
func (r *ResolveResult) Ambiguous() bool {
	return r.Key == "" && len(r.Candidates) > 0
}

// Client talks to the citation-provider connector API. The orchestrator
// treats every call as opaque: success/failure plus an optional key.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *ratelimit.Limiter
}

// NewClient creates a provider client.
func NewClient(cfg config.ProviderConfig, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}
}

// ResolveByIdentifier resolves a DOI/arXiv/ISBN/PMID identifier.
func (c *Client) ResolveByIdentifier(ctx context.Context, identifier string) (*ResolveResult, error) {
	var result ResolveResult
	err := c.call(ctx, "resolve_identifier", http.MethodPost, "/resolve/identifier",
		map[string]string{"identifier": identifier}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ResolveByURL resolves a URL through the provider's web translators.
func (c *Client) ResolveByURL(ctx context.Context, rawURL string) (*ResolveResult, error) {
	var result ResolveResult
	err := c.call(ctx, "resolve_url", http.MethodPost, "/resolve/url",
		map[string]string{"url": rawURL}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchRecord retrieves the citation stored under a key.
func (c *Client) FetchRecord(ctx context.Context, key string) (*domain.Citation, error) {
	var citation domain.Citation
	err := c.call(ctx, "fetch_record", http.MethodGet, "/records/"+url.PathEscape(key), nil, &citation)
	if err != nil {
		return nil, err
	}
	return &citation, nil
}

// CreateRecord stores a new citation and returns its key.
func (c *Client) CreateRecord(ctx context.Context, citation *domain.Citation) (string, error) {
	var result struct {
		Key string `json:"key"`
	}
	err := c.call(ctx, "create_record", http.MethodPost, "/records", citation, &result)
	if err != nil {
		return "", err
	}
	return result.Key, nil
}

// UpdateRecord replaces the fields of an existing record.
func (c *Client) UpdateRecord(ctx context.Context, key string, citation *domain.Citation) error {
	return c.call(ctx, "update_record", http.MethodPut, "/records/"+url.PathEscape(key), citation, nil)
}

// Health checks provider reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "ping", http.MethodGet, "/ping", nil, nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	target := c.baseURL + path
	if c.limiter != nil {
		parsed, err := url.Parse(c.baseURL)
		if err == nil {
			if err := c.limiter.WaitForToken(ctx, parsed.Hostname()); err != nil {
				return err
			}
		}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("provider %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
		return &classify.HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: target}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
			return fmt.Errorf("provider %s: failed to parse response: %w", op, err)
		}
	}
	metrics.ProviderCalls.WithLabelValues(op, "ok").Inc()
	return nil
}
