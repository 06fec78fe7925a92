package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/resolve/classify"
	"github.com/citelinker/resolver/internal/resolve/ratelimit"
)

// FetchResult is one downloaded document.
type FetchResult struct {
	Body        []byte
	ContentType string
	StatusCode  int
	FinalURL    string
}

// Fetcher downloads remote documents with a timeout, size limit, redirect
// cap and per-host rate limiting. Transient failures are retried with
// exponential backoff; the classifier decides what counts as transient.
type Fetcher struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	cfg     config.FetchConfig
}

// NewFetcher creates a fetcher. A nil client gets a default with the
// configured timeout and redirect cap.
func NewFetcher(client *http.Client, limiter *ratelimit.Limiter, cfg config.FetchConfig) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	maxRedirects := cfg.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &Fetcher{client: client, limiter: limiter, cfg: cfg}
}

const maxFetchRetries = 2

// classifiedBackoff waits between retries according to the failure
// taxonomy: the most recent error's category picks the base delay, which
// doubles per attempt up to the classifier's cap.
type classifiedBackoff struct {
	attempt int
	max     int
	cat     *classify.Category
}

func (b *classifiedBackoff) Next() (time.Duration, bool) {
	b.attempt++
	if b.attempt > b.max {
		return 0, true
	}
	return classify.Delay(*b.cat, b.attempt), false
}

// Fetch downloads one URL. Non-2xx responses are returned as
// *classify.HTTPError so callers can classify by status code.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %q: %w", rawURL, err)
	}

	var result *FetchResult
	var lastCat classify.Category
	backoff := &classifiedBackoff{max: maxFetchRetries, cat: &lastCat}

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if f.limiter != nil {
			if err := f.limiter.WaitForToken(ctx, parsed.Hostname()); err != nil {
				return err
			}
		}

		res, err := f.doFetch(ctx, rawURL)
		if err != nil {
			cat := classify.Classify(err)
			if classify.IsRetryable(cat) {
				lastCat = cat
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *Fetcher) doFetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &classify.HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        rawURL,
		}
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("body of %s exceeds %d byte limit", rawURL, f.cfg.MaxBodyBytes)
	}

	return &FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
