package followup

import (
	"context"
	"log/slog"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/core/state"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/resolve/extract"
	"github.com/citelinker/resolver/internal/resolve/orchestrator"
)

const (
	defaultPollInterval = time.Minute
	maxAttempts         = 3
)

// Provider is the slice of the citation provider the worker needs.
type Provider interface {
	FetchRecord(ctx context.Context, key string) (*domain.Citation, error)
	UpdateRecord(ctx context.Context, key string, citation *domain.Citation) error
}

// ContentCache reads cached page content for re-extraction.
type ContentCache interface {
	GetCachedContent(ctx context.Context, itemID string) ([]byte, *domain.CacheEntry, error)
}

// Worker drains the follow-up queue: for each incomplete citation it
// re-extracts metadata from cached content and patches the stored record,
// promoting the item to stored when the gaps close.
type Worker struct {
	queue     Queue
	items     storage.ItemRepository
	machine   *state.Machine
	provider  Provider
	cache     ContentCache
	extractor *extract.Extractor
	ai        orchestrator.AIExtractor
	interval  time.Duration
}

// NewWorker creates a follow-up worker. The AI extractor may be nil.
func NewWorker(
	queue Queue,
	items storage.ItemRepository,
	machine *state.Machine,
	provider Provider,
	cache ContentCache,
	extractor *extract.Extractor,
	ai orchestrator.AIExtractor,
	interval time.Duration,
) *Worker {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Worker{
		queue:     queue,
		items:     items,
		machine:   machine,
		provider:  provider,
		cache:     cache,
		extractor: extractor,
		ai:        ai,
		interval:  interval,
	}
}

// Start runs the polling loop until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("Follow-up worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Follow-up worker stopped")
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce processes queued jobs until the queue is empty or the
// context ends.
func (w *Worker) drainOnce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := w.queue.Next(ctx)
		if err != nil {
			slog.Error("Failed to read follow-up queue", "error", err)
			return
		}
		if job == nil {
			return
		}
		w.processJob(ctx, job)
	}
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	done, err := w.enrich(ctx, job)
	if err != nil {
		slog.Warn("Follow-up enrichment failed",
			"item", job.ItemID, "attempts", job.Attempts+1, "error", err)
	}
	if done || job.Attempts+1 >= maxAttempts {
		if !done {
			slog.Info("Giving up on follow-up enrichment", "item", job.ItemID)
		}
		if err := w.queue.MarkDone(ctx, job.ItemID); err != nil {
			slog.Error("Failed to remove follow-up job", "item", job.ItemID, "error", err)
		}
		return
	}
	if err := w.queue.IncrementRetry(ctx, job.ItemID); err != nil {
		slog.Error("Failed to bump follow-up job", "item", job.ItemID, "error", err)
	}
}

// enrich reports done=true when the job needs no further retries: the
// citation became complete, or the item moved on without us.
func (w *Worker) enrich(ctx context.Context, job *Job) (bool, error) {
	item, err := w.items.GetByID(ctx, job.ItemID)
	if err != nil {
		return true, err
	}
	if item.Status != domain.StatusStoredIncomplete {
		return true, nil
	}

	citation, err := w.provider.FetchRecord(ctx, job.RecordKey)
	if err != nil {
		return false, err
	}

	content, _, err := w.cache.GetCachedContent(ctx, item.ID)
	if err != nil || len(content) == 0 {
		return false, err
	}

	extraction, err := w.extractor.Extract(content, item.URL)
	if err != nil {
		return false, err
	}
	changed := mergeExtraction(citation, extraction)

	// Readability alone often cannot date a page; let the model fill
	// whatever is still missing.
	if len(orchestrator.CompletenessIssues(citation)) > 0 && w.ai != nil {
		if extracted, err := w.ai.ExtractCitation(ctx, extraction.Markdown, item.URL); err == nil {
			changed = mergeCitation(citation, extracted) || changed
		} else {
			slog.Debug("AI follow-up extraction failed", "item", item.ID, "error", err)
		}
	}

	if changed {
		if err := w.provider.UpdateRecord(ctx, job.RecordKey, citation); err != nil {
			return false, err
		}
	}

	if len(orchestrator.CompletenessIssues(citation)) > 0 {
		return false, nil
	}

	completeness := domain.CompletenessComplete
	err = w.machine.Transition(ctx, item.ID, domain.StatusStoredIncomplete, domain.StatusStored,
		&domain.ItemPatch{Completeness: &completeness})
	if err != nil {
		return true, err
	}
	slog.Info("Follow-up enrichment completed citation", "item", item.ID, "record", job.RecordKey)
	return true, nil
}

// mergeExtraction fills empty citation fields from a readability pass.
func mergeExtraction(c *domain.Citation, x *extract.Extraction) bool {
	changed := false
	if c.Title == "" && x.Title != "" {
		c.Title = x.Title
		changed = true
	}
	if len(c.Creators) == 0 && len(x.Creators) > 0 {
		c.Creators = x.Creators
		changed = true
	}
	return changed
}

// mergeCitation fills empty fields of dst from src.
func mergeCitation(dst, src *domain.Citation) bool {
	changed := false
	if dst.Title == "" && src.Title != "" {
		dst.Title = src.Title
		changed = true
	}
	if len(dst.Creators) == 0 && len(src.Creators) > 0 {
		dst.Creators = src.Creators
		changed = true
	}
	if dst.Date == "" && src.Date != "" {
		dst.Date = src.Date
		changed = true
	}
	return changed
}
