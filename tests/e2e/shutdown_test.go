package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/citelinker/resolver/internal/control"
	"github.com/citelinker/resolver/internal/core/config"
)

func testConfig(t *testing.T, port int) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Server: config.ServerConfig{Port: port},
		Cache:  config.CacheConfig{Dir: t.TempDir(), TTL: time.Hour},
		Fetch: config.FetchConfig{
			Timeout:      5 * time.Second,
			MaxBodyBytes: 1 << 20,
			MaxRedirects: 3,
			UserAgent:    "citelinker-test/1.0",
		},
		Provider:  config.ProviderConfig{BaseURL: "http://localhost:23119", Timeout: time.Second},
		RateLimit: config.RateLimitConfig{RefillPerSecond: 100, MaxTokens: 100},
		Batch:     config.BatchConfig{Concurrency: 2, SessionRetention: time.Hour},
		Followup:  config.FollowupConfig{Interval: time.Minute},
	}
}

func TestGracefulShutdown(t *testing.T) {
	// Memory storage, no Redis: the linker must come up and go down clean.
	app, err := control.NewLinker(testConfig(t, 0))
	if err != nil {
		t.Fatalf("NewLinker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() { done <- app.Stop(shutdownCtx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("shutdown did not finish in time")
	}
}

func TestItemLifecycle_Live(t *testing.T) {
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("set E2E_LIVE to run against a live stack")
	}

	port := 18087
	cfg := testConfig(t, port)
	cfg.Database.URL = os.Getenv("E2E_DATABASE_URL")

	app, err := control.NewLinker(cfg)
	if err != nil {
		t.Fatalf("NewLinker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()
	time.Sleep(200 * time.Millisecond)

	base := fmt.Sprintf("http://localhost:%d", port)

	body, _ := json.Marshal(map[string]string{"url": "https://arxiv.org/abs/1706.03762"})
	resp, err := http.Post(base+"/items", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		t.Fatalf("create item status = %d", resp.StatusCode)
	}

	var item struct {
		ID string `json:"ID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode item: %v", err)
	}

	health, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", health.StatusCode)
	}
}
