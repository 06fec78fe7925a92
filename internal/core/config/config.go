package config

import (
	"time"

	redisclient "github.com/citelinker/resolver/internal/infra/redis"
	"github.com/citelinker/resolver/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Database  postgres.Config    `yaml:"database"`
	Redis     redisclient.Config `yaml:"redis"`
	Provider  ProviderConfig     `yaml:"provider"`
	Fetch     FetchConfig        `yaml:"fetch"`
	Cache     CacheConfig        `yaml:"cache"`
	RateLimit RateLimitConfig    `yaml:"ratelimit"`
	Batch     BatchConfig        `yaml:"batch"`
	Followup  FollowupConfig     `yaml:"followup"`
	LLM       LLMConfig          `yaml:"llm"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ProviderConfig holds settings for the citation-provider service.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// FetchConfig holds settings for the content fetcher.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRedirects int           `yaml:"max_redirects"`
	UserAgent    string        `yaml:"user_agent"`
}

// CacheConfig holds settings for the content cache.
type CacheConfig struct {
	Dir string        `yaml:"dir"`
	TTL time.Duration `yaml:"ttl"`
}

// RateLimitConfig holds token-bucket settings, with optional per-host
// overrides for destinations that need stricter limits.
type RateLimitConfig struct {
	RefillPerSecond float64              `yaml:"refill_per_second"`
	MaxTokens       float64              `yaml:"max_tokens"`
	Hosts           map[string]HostLimit `yaml:"hosts"`
}

// HostLimit overrides the default bucket for one destination.
type HostLimit struct {
	RefillPerSecond float64 `yaml:"refill_per_second"`
	MaxTokens       float64 `yaml:"max_tokens"`
}

// BatchConfig holds batch-runner settings.
type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	SessionRetention time.Duration `yaml:"session_retention"`
}

// FollowupConfig holds settings for the follow-up enrichment worker.
type FollowupConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LLMConfig holds settings for the AI extraction stage. The stage is
// disabled when Endpoint is empty.
type LLMConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}
