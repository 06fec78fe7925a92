package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed tracks items processed per stage and outcome
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citelinker_items_processed_total",
			Help: "Total number of item resolution attempts",
		},
		[]string{"stage", "outcome"},
	)

	// StageDuration tracks how long each resolution stage takes
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citelinker_stage_duration_seconds",
			Help:    "Resolution stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ProviderCalls tracks citation-provider calls per operation
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citelinker_provider_calls_total",
			Help: "Total number of citation-provider API calls",
		},
		[]string{"operation", "outcome"},
	)

	// CacheHits tracks content cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citelinker_cache_hits_total",
			Help: "Total number of content cache hits",
		},
	)

	// CacheMisses tracks content cache misses (absent or expired)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citelinker_cache_misses_total",
			Help: "Total number of content cache misses",
		},
	)

	// CacheBytes tracks bytes currently stored in the content cache
	CacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citelinker_cache_bytes",
			Help: "Bytes stored in the content cache",
		},
	)

	// RateLimitWait tracks time spent waiting for rate-limit tokens
	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citelinker_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a rate-limit token",
			Buckets: []float64{.005, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"host"},
	)

	// BatchSessionsActive tracks non-terminal batch sessions
	BatchSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citelinker_batch_sessions_active",
			Help: "Number of batch sessions not yet terminal",
		},
	)

	// FollowupQueueDepth tracks pending follow-up enrichment jobs
	FollowupQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citelinker_followup_queue_depth",
			Help: "Pending follow-up enrichment jobs in Redis",
		},
	)

	// DBConnectionPoolUsage tracks database pool utilization percent
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "citelinker_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
