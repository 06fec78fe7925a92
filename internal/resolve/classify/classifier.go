package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Category is the failure taxonomy consulted for cascade-vs-halt decisions.
type Category string

const (
	CategoryNetwork     Category = "network"
	CategoryHTTPClient  Category = "http_client"
	CategoryHTTPServer  Category = "http_server"
	CategoryParsing     Category = "parsing"
	CategoryValidation  Category = "validation"
	CategoryProviderAPI Category = "provider_api"
	CategoryRateLimit   Category = "rate_limit"
	CategoryPermanent   Category = "permanent"
	CategoryUnknown     Category = "unknown"
)

// base backoff delay per category; zero means never retry.
var baseDelay = map[Category]time.Duration{
	CategoryNetwork:     2 * time.Second,
	CategoryHTTPServer:  5 * time.Second,
	CategoryRateLimit:   10 * time.Second,
	CategoryProviderAPI: 3 * time.Second,
	CategoryUnknown:     1 * time.Second,
}

const maxDelay = 60 * time.Second

// providerMarkers are substrings identifying failures originating in the
// citation-provider service rather than the remote document.
var providerMarkers = []string{
	"zotero",
	"connector",
	"translation-server",
	"crossref",
	"datacite",
	"semantic scholar",
	"pubmed",
}

// Classify maps an arbitrary failure to exactly one category. It is a
// total function: any input, including nil, yields a category and never
// panics.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	// Typed checks first: status codes beat message scraping.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryNetwork
	}

	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "dns"):
		return CategoryNetwork

	case strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "rate limit"):
		return CategoryRateLimit

	case strings.Contains(s, "404") || strings.Contains(s, "not found") ||
		strings.Contains(s, "403") || strings.Contains(s, "forbidden") ||
		strings.Contains(s, "401") || strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "410") || strings.Contains(s, "gone"):
		return CategoryPermanent

	case strings.Contains(s, "500") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "504") ||
		strings.Contains(s, "internal server error") ||
		strings.Contains(s, "bad gateway") ||
		strings.Contains(s, "service unavailable"):
		return CategoryHTTPServer

	case strings.Contains(s, "parse") ||
		strings.Contains(s, "syntax error") ||
		strings.Contains(s, "unmarshal") ||
		strings.Contains(s, "invalid character") ||
		strings.Contains(s, "malformed"):
		return CategoryParsing

	case strings.Contains(s, "validation") ||
		strings.Contains(s, "missing required field"):
		return CategoryValidation
	}

	for _, marker := range providerMarkers {
		if strings.Contains(s, marker) {
			return CategoryProviderAPI
		}
	}

	return CategoryUnknown
}

func classifyStatus(code int) Category {
	switch code {
	case 401, 403, 404, 410:
		return CategoryPermanent
	case 429:
		return CategoryRateLimit
	}
	switch {
	case code >= 500:
		return CategoryHTTPServer
	case code >= 400:
		return CategoryHTTPClient
	}
	return CategoryUnknown
}

// IsRetryable reports whether the category allows another attempt.
// Unknown failures are retryable with the conservative 1s base delay:
// the backoff table assigns them a delay, so they cascade instead of
// halting the item.
func IsRetryable(c Category) bool {
	switch c {
	case CategoryNetwork, CategoryHTTPServer, CategoryRateLimit, CategoryProviderAPI, CategoryUnknown:
		return true
	}
	return false
}

// IsPermanent reports whether the failure can never succeed on retry.
func IsPermanent(c Category) bool {
	return c == CategoryPermanent
}

// Delay computes the backoff before attempt number attempt (1-indexed):
// base * 2^(attempt-1), capped at 60s. Categories without a base delay
// never retry and get zero.
func Delay(c Category, attempt int) time.Duration {
	base, ok := baseDelay[c]
	if !ok || attempt < 1 {
		return 0
	}
	d := base << uint(attempt-1)
	if d > maxDelay || d < base { // overflow guard
		return maxDelay
	}
	return d
}
