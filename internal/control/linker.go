package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/citelinker/resolver/internal/api"
	"github.com/citelinker/resolver/internal/core/config"
	"github.com/citelinker/resolver/internal/core/state"
	"github.com/citelinker/resolver/internal/core/worker"
	"github.com/citelinker/resolver/internal/health"
	"github.com/citelinker/resolver/internal/infra/llm"
	redisclient "github.com/citelinker/resolver/internal/infra/redis"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/infra/storage/memory"
	"github.com/citelinker/resolver/internal/infra/storage/postgres"
	"github.com/citelinker/resolver/internal/infra/zotero"
	"github.com/citelinker/resolver/internal/resolve/batch"
	"github.com/citelinker/resolver/internal/resolve/cache"
	"github.com/citelinker/resolver/internal/resolve/extract"
	"github.com/citelinker/resolver/internal/resolve/followup"
	"github.com/citelinker/resolver/internal/resolve/orchestrator"
	"github.com/citelinker/resolver/internal/resolve/ratelimit"
)

// Linker is the main application struct that wires the resolution
// pipeline together and manages its lifecycle.
type Linker struct {
	cfg         *config.AppConfig
	items       storage.ItemRepository
	runner      *batch.Runner
	followup    *followup.Worker
	sweeper     *worker.Sweeper
	apiServer   *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewLinker creates a Linker with all dependencies initialized.
func NewLinker(cfg *config.AppConfig) (*Linker, error) {
	// 1. Initialize Storage
	var (
		items          storage.ItemRepository
		attempts       storage.AttemptRepository
		analysisRepo   storage.AnalysisRepository
		enrichmentRepo storage.EnrichmentRepository
		cacheRepo      storage.CacheRepository
		db             *postgres.DB
	)

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		items = postgres.NewItemRepo(db)
		attempts = postgres.NewAttemptRepo(db)
		analysisRepo = postgres.NewAnalysisRepo(db)
		enrichmentRepo = postgres.NewEnrichmentRepo(db)
		cacheRepo = postgres.NewCacheRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		items = memory.NewItemRepo(store)
		attempts = memory.NewAttemptRepo(store)
		analysisRepo = memory.NewAnalysisRepo(store)
		enrichmentRepo = memory.NewEnrichmentRepo(store)
		cacheRepo = memory.NewCacheRepo(store)
		slog.Info("Using memory storage")
	}

	// 2. Shared components
	limiter := ratelimit.New(cfg.RateLimit)
	fetcher := cache.NewFetcher(&http.Client{Timeout: cfg.Fetch.Timeout}, limiter, cfg.Fetch)
	contentCache := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cacheRepo, fetcher)
	provider := zotero.NewClient(cfg.Provider, limiter)
	extractor := extract.New()
	machine := state.NewMachine(items)

	var ai orchestrator.AIExtractor
	if cfg.LLM.Endpoint != "" {
		ai = llm.NewClient(cfg.LLM.Endpoint, cfg.LLM.Model, cfg.LLM.APIKey, cfg.LLM.Timeout)
		slog.Info("AI extraction enabled", "model", cfg.LLM.Model)
	}

	// 3. Follow-up queue: Redis when configured, in-process otherwise
	var redisClient *redisclient.Client
	var queue followup.Queue
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-memory follow-up queue", "error", err)
			queue = followup.NewMemoryQueue()
		} else {
			queue = followup.NewRedisQueue(redisClient)
			slog.Info("Using Redis follow-up queue")
		}
	} else {
		queue = followup.NewMemoryQueue()
	}

	// 4. Orchestrator and batch runner
	orch := orchestrator.New(orchestrator.Config{
		Items:      items,
		Attempts:   attempts,
		Analysis:   analysisRepo,
		Enrichment: enrichmentRepo,
		CacheRepo:  cacheRepo,
		Machine:    machine,
		Provider:   provider,
		Cache:      contentCache,
		Extractor:  extractor,
		AI:         ai,
		Followup:   queue,
	})
	runner := batch.NewRunner(orch, items, cfg.Batch.SessionRetention)

	// 5. Workers
	followupWorker := followup.NewWorker(
		queue, items, machine, provider, contentCache, extractor, ai, cfg.Followup.Interval)
	sweeper := worker.NewSweeper(contentCache, runner, cfg.Batch.SessionRetention)

	// 6. Health monitor and API server
	var dbPinger, redisPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	monitor := health.NewMonitor(dbPinger, redisPinger, provider, items, queue)

	apiServer := api.NewServer(
		cfg.Server.Port, items, attempts, enrichmentRepo, orch, runner, monitor)

	return &Linker{
		cfg:         cfg,
		items:       items,
		runner:      runner,
		followup:    followupWorker,
		sweeper:     sweeper,
		apiServer:   apiServer,
		db:          db,
		redisClient: redisClient,
		log:         slog.Default(),
	}, nil
}

// Start starts the API server and background workers.
func (l *Linker) Start(ctx context.Context) error {
	go func() {
		l.log.Info("API server listening", "port", l.cfg.Server.Port)
		if err := l.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			l.log.Error("API server failed", "error", err)
		}
	}()

	if l.db != nil {
		l.db.StartMetricsCollector(ctx)
	}

	go l.followup.Start(ctx)
	go l.sweeper.Start(ctx)

	return nil
}

// Stop shuts the linker down.
func (l *Linker) Stop(ctx context.Context) error {
	l.log.Info("Stopping citelinker...")

	if l.redisClient != nil {
		if err := l.redisClient.Close(); err != nil {
			l.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if l.db != nil {
		l.db.Close()
	}

	return l.apiServer.Stop(ctx)
}

// Runner exposes the batch runner for CLI subcommands.
func (l *Linker) Runner() *batch.Runner {
	return l.runner
}

// Items exposes the item repository for CLI subcommands.
func (l *Linker) Items() storage.ItemRepository {
	return l.items
}
