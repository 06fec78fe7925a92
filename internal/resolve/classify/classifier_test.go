package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		code int
		want Category
	}{
		{401, CategoryPermanent},
		{403, CategoryPermanent},
		{404, CategoryPermanent},
		{410, CategoryPermanent},
		{429, CategoryRateLimit},
		{400, CategoryHTTPClient},
		{422, CategoryHTTPClient},
		{500, CategoryHTTPServer},
		{503, CategoryHTTPServer},
	}
	for _, tc := range cases {
		httpErr := &HTTPError{StatusCode: tc.code, Status: "status", URL: "http://example.org"}
		got := Classify(fmt.Errorf("stage failed: %w", httpErr))
		if got != tc.want {
			t.Errorf("Classify(status %d) = %s, want %s", tc.code, got, tc.want)
		}
	}
}

func TestClassifyMessages(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{errors.New("dial tcp: connection refused"), CategoryNetwork},
		{errors.New("lookup example.org: no such host"), CategoryNetwork},
		{errors.New("request timed out"), CategoryNetwork},
		{errors.New("429 Too Many Requests"), CategoryRateLimit},
		{errors.New("upstream rate limit exceeded"), CategoryRateLimit},
		{errors.New("document not found"), CategoryPermanent},
		{errors.New("access forbidden"), CategoryPermanent},
		{errors.New("502 bad gateway"), CategoryHTTPServer},
		{errors.New("failed to parse response body"), CategoryParsing},
		{errors.New("json unmarshal failed"), CategoryParsing},
		{errors.New("validation failed: empty title"), CategoryValidation},
		{errors.New("zotero connector unavailable"), CategoryProviderAPI},
		{errors.New("crossref lookup failed"), CategoryProviderAPI},
		{errors.New("something odd happened"), CategoryUnknown},
		{nil, CategoryUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestClassifyTypedNetworkErrors(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != CategoryNetwork {
		t.Errorf("Classify(DeadlineExceeded) = %s", got)
	}
	dnsErr := &net.DNSError{Err: "lookup failure", Name: "example.org"}
	if got := Classify(fmt.Errorf("fetch: %w", dnsErr)); got != CategoryNetwork {
		t.Errorf("Classify(DNSError) = %s", got)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := map[Category]bool{
		CategoryNetwork:     true,
		CategoryHTTPServer:  true,
		CategoryRateLimit:   true,
		CategoryProviderAPI: true,
		CategoryUnknown:     true,
		CategoryHTTPClient:  false,
		CategoryParsing:     false,
		CategoryValidation:  false,
		CategoryPermanent:   false,
	}
	for c, want := range retryable {
		if got := IsRetryable(c); got != want {
			t.Errorf("IsRetryable(%s) = %v, want %v", c, got, want)
		}
	}
}

func TestDelay(t *testing.T) {
	cases := []struct {
		category Category
		attempt  int
		want     time.Duration
	}{
		{CategoryNetwork, 1, 2 * time.Second},
		{CategoryNetwork, 2, 4 * time.Second},
		{CategoryNetwork, 3, 8 * time.Second},
		{CategoryHTTPServer, 1, 5 * time.Second},
		{CategoryRateLimit, 2, 20 * time.Second},
		{CategoryRateLimit, 4, 60 * time.Second}, // capped
		{CategoryUnknown, 1, time.Second},
		{CategoryPermanent, 1, 0},
		{CategoryHTTPClient, 3, 0},
		{CategoryValidation, 1, 0},
		{CategoryNetwork, 40, 60 * time.Second}, // shift overflow
	}
	for _, tc := range cases {
		if got := Delay(tc.category, tc.attempt); got != tc.want {
			t.Errorf("Delay(%s, %d) = %v, want %v", tc.category, tc.attempt, got, tc.want)
		}
	}
}

func TestDelayNeverExceedsCap(t *testing.T) {
	for _, c := range []Category{CategoryNetwork, CategoryHTTPServer, CategoryRateLimit, CategoryProviderAPI, CategoryUnknown} {
		for attempt := 1; attempt <= 64; attempt++ {
			if d := Delay(c, attempt); d > maxDelay {
				t.Fatalf("Delay(%s, %d) = %v exceeds cap", c, attempt, d)
			}
		}
	}
}
