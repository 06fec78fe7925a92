package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/infra/storage/memory"
	"github.com/citelinker/resolver/internal/resolve/classify"
)

func newTestCache(t *testing.T, handler http.Handler) (*Cache, *httptest.Server, func(d time.Duration)) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := memory.NewMemoryStorage()
	repo := memory.NewCacheRepo(store)
	fetcher := NewFetcher(srv.Client(), nil, config.FetchConfig{
		Timeout:      5 * time.Second,
		MaxBodyBytes: 1 << 20,
		MaxRedirects: 3,
		UserAgent:    "citelinker-test",
	})

	c := New(t.TempDir(), time.Hour, repo, fetcher)
	now := time.Now()
	c.now = func() time.Time { return now }
	advance := func(d time.Duration) { now = now.Add(d) }
	return c, srv, advance
}

func htmlHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	})
}

func TestFetchAndCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	body := "<html><head><title>Paper</title></head></html>"
	c, srv, _ := newTestCache(t, htmlHandler(body))

	entry, err := c.FetchAndCache(ctx, "it-1", srv.URL)
	if err != nil {
		t.Fatalf("FetchAndCache: %v", err)
	}

	wantSum := sha256.Sum256([]byte(body))
	if entry.ContentHash != hex.EncodeToString(wantSum[:]) {
		t.Errorf("content hash = %s", entry.ContentHash)
	}
	if entry.SizeBytes != int64(len(body)) {
		t.Errorf("size = %d, want %d", entry.SizeBytes, len(body))
	}

	content, got, err := c.GetCachedContent(ctx, "it-1")
	if err != nil {
		t.Fatalf("GetCachedContent: %v", err)
	}
	if got == nil {
		t.Fatal("entry missing after fetch")
	}
	gotSum := sha256.Sum256(content)
	if hex.EncodeToString(gotSum[:]) != entry.ContentHash {
		t.Error("round-trip content hash mismatch")
	}
}

func TestExpiredEntryInvalidated(t *testing.T) {
	ctx := context.Background()
	c, srv, advance := newTestCache(t, htmlHandler("stale"))

	entry, err := c.FetchAndCache(ctx, "it-1", srv.URL)
	if err != nil {
		t.Fatalf("FetchAndCache: %v", err)
	}

	advance(2 * time.Hour) // past the 1h TTL

	content, got, err := c.GetCachedContent(ctx, "it-1")
	if err != nil {
		t.Fatalf("GetCachedContent: %v", err)
	}
	if content != nil || got != nil {
		t.Fatal("expired entry still served")
	}
	if _, err := os.Stat(entry.RawPath); !os.IsNotExist(err) {
		t.Error("expired file not removed from disk")
	}
	if reloaded, _ := c.repo.Get(ctx, "it-1"); reloaded != nil {
		t.Error("expired record not removed from store")
	}
}

func TestSweepExpired(t *testing.T) {
	ctx := context.Background()
	c, srv, advance := newTestCache(t, htmlHandler("content-a"))

	if _, err := c.FetchAndCache(ctx, "it-1", srv.URL+"/a"); err != nil {
		t.Fatalf("FetchAndCache: %v", err)
	}
	if _, err := c.FetchAndCache(ctx, "it-2", srv.URL+"/b"); err != nil {
		t.Fatalf("FetchAndCache: %v", err)
	}

	advance(3 * time.Hour)

	count, freed, err := c.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if count != 2 {
		t.Errorf("swept %d entries, want 2", count)
	}
	if freed != 2*int64(len("content-a")) {
		t.Errorf("freed %d bytes", freed)
	}
}

func TestSharedContentSurvivesInvalidation(t *testing.T) {
	ctx := context.Background()
	// Identical bodies on two items share one content-addressed file.
	c, srv, _ := newTestCache(t, htmlHandler("same bytes"))

	a, err := c.FetchAndCache(ctx, "it-1", srv.URL+"/a")
	if err != nil {
		t.Fatalf("FetchAndCache it-1: %v", err)
	}
	b, err := c.FetchAndCache(ctx, "it-2", srv.URL+"/b")
	if err != nil {
		t.Fatalf("FetchAndCache it-2: %v", err)
	}
	if a.RawPath != b.RawPath {
		t.Fatalf("identical bodies stored twice: %s, %s", a.RawPath, b.RawPath)
	}

	if err := c.Invalidate(ctx, "it-1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	// The survivor's file is gone; that must surface as a miss, not an
	// error, and its record must be cleaned up.
	content, entry, err := c.GetCachedContent(ctx, "it-2")
	if err != nil {
		t.Fatalf("GetCachedContent after shared-file loss: %v", err)
	}
	if content != nil || entry != nil {
		t.Fatal("orphaned entry still served")
	}
	if reloaded, _ := c.repo.Get(ctx, "it-2"); reloaded != nil {
		t.Error("orphaned record not removed from store")
	}

	// A re-fetch brings the item back.
	if _, err := c.FetchAndCache(ctx, "it-2", srv.URL+"/b"); err != nil {
		t.Fatalf("re-fetch after miss: %v", err)
	}
	content, _, err = c.GetCachedContent(ctx, "it-2")
	if err != nil || string(content) != "same bytes" {
		t.Fatalf("content after re-fetch = %q, err %v", content, err)
	}
}

func TestInvalidateTolerantOfMissingFiles(t *testing.T) {
	ctx := context.Background()
	c, srv, _ := newTestCache(t, htmlHandler("x"))

	entry, err := c.FetchAndCache(ctx, "it-1", srv.URL)
	if err != nil {
		t.Fatalf("FetchAndCache: %v", err)
	}
	os.Remove(entry.RawPath)

	if err := c.Invalidate(ctx, "it-1"); err != nil {
		t.Fatalf("Invalidate after file loss: %v", err)
	}
}

func TestFetchSizeLimit(t *testing.T) {
	big := make([]byte, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client(), nil, config.FetchConfig{
		Timeout:      time.Second,
		MaxBodyBytes: 1024,
		MaxRedirects: 3,
	})
	if _, err := fetcher.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("oversized body accepted")
	}
}

func TestClassifiedBackoffDelays(t *testing.T) {
	cat := classify.CategoryRateLimit
	b := &classifiedBackoff{max: 2, cat: &cat}

	d, stop := b.Next()
	if stop {
		t.Fatal("backoff stopped on first attempt")
	}
	if want := classify.Delay(classify.CategoryRateLimit, 1); d != want {
		t.Errorf("rate_limit delay = %s, want %s", d, want)
	}

	// A different failure next time around changes the wait.
	cat = classify.CategoryNetwork
	d, stop = b.Next()
	if stop {
		t.Fatal("backoff stopped on second attempt")
	}
	if want := classify.Delay(classify.CategoryNetwork, 2); d != want {
		t.Errorf("network delay = %s, want %s", d, want)
	}

	if _, stop = b.Next(); !stop {
		t.Error("backoff did not stop after max retries")
	}
}

func TestFetchPermanentErrorNotRetried(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fetcher := NewFetcher(srv.Client(), nil, config.FetchConfig{
		Timeout:      time.Second,
		MaxBodyBytes: 1024,
		MaxRedirects: 3,
	})
	if _, err := fetcher.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("404 reported as success")
	}
	if hits != 1 {
		t.Errorf("404 fetched %d times, permanent failures must not retry", hits)
	}
}
