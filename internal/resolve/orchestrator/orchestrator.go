package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/core/state"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/infra/zotero"
	"github.com/citelinker/resolver/internal/metrics"
	"github.com/citelinker/resolver/internal/resolve/capability"
	"github.com/citelinker/resolver/internal/resolve/classify"
	"github.com/citelinker/resolver/internal/resolve/extract"
)

// Provider is the citation-provider service as the cascade sees it:
// opaque calls returning success/failure plus an optional record key.
type Provider interface {
	ResolveByIdentifier(ctx context.Context, identifier string) (*zotero.ResolveResult, error)
	ResolveByURL(ctx context.Context, rawURL string) (*zotero.ResolveResult, error)
	FetchRecord(ctx context.Context, key string) (*domain.Citation, error)
	CreateRecord(ctx context.Context, citation *domain.Citation) (string, error)
	UpdateRecord(ctx context.Context, key string, citation *domain.Citation) error
}

// ContentCache is the slice of the content cache the cascade needs.
type ContentCache interface {
	FetchAndCache(ctx context.Context, itemID, url string) (*domain.CacheEntry, error)
	GetCachedContent(ctx context.Context, itemID string) ([]byte, *domain.CacheEntry, error)
}

// AIExtractor turns article text into citation fields. Optional; without
// one the AI stage is skipped.
type AIExtractor interface {
	ExtractCitation(ctx context.Context, markdown, pageURL string) (*domain.Citation, error)
}

// FollowupQueue accepts non-blocking enrichment jobs for incomplete
// citations. Optional.
type FollowupQueue interface {
	Enqueue(ctx context.Context, itemID, recordKey string) error
}

// ProcessingResult is what processItem always returns; stage failures are
// classified and folded in, never propagated as errors.
type ProcessingResult struct {
	ItemID        string            `json:"item_id"`
	Success       bool              `json:"success"`
	Status        domain.ItemStatus `json:"status"`
	RecordKey     string            `json:"record_key,omitempty"`
	Candidates    int               `json:"candidates,omitempty"`
	Error         string            `json:"error,omitempty"`
	ErrorCategory classify.Category `json:"error_category,omitempty"`
}

// Config wires the orchestrator's dependencies.
type Config struct {
	Items      storage.ItemRepository
	Attempts   storage.AttemptRepository
	Analysis   storage.AnalysisRepository
	Enrichment storage.EnrichmentRepository
	CacheRepo  storage.CacheRepository
	Machine    *state.Machine
	Provider   Provider
	Cache      ContentCache
	Extractor  *extract.Extractor
	AI         AIExtractor
	Followup   FollowupQueue
}

// Orchestrator drives one item through the resolution cascade: stages in
// priority order, classifier-driven cascade-vs-halt, guarded transitions,
// and an append-only audit trail.
type Orchestrator struct {
	cfg Config
	now func() time.Time
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, now: time.Now}
}

// ProcessItem runs the cascade for one item until it stores a citation,
// hits a stopping point needing user input, or exhausts every stage.
func (o *Orchestrator) ProcessItem(ctx context.Context, id string) ProcessingResult {
	item, err := o.cfg.Items.GetByID(ctx, id)
	if err != nil {
		return failure(id, "", err)
	}

	if !item.Intent.AllowsAutomation() {
		return ProcessingResult{
			ItemID: id,
			Status: item.Status,
			Error:  fmt.Sprintf("intent %s does not allow automated processing", item.Intent),
		}
	}
	if item.Status != domain.StatusNotStarted && item.Status != domain.StatusExhausted {
		return ProcessingResult{
			ItemID: id,
			Status: item.Status,
			Error:  fmt.Sprintf("status %s does not allow automated processing", item.Status),
		}
	}

	sc := o.loadStageState(ctx, item)
	cur := item.Status
	var lastErr error
	var lastCat classify.Category

	for _, h := range o.handlers() {
		if !h.applicable(sc) {
			continue
		}

		proc := h.stage.ProcessingStatus()
		// Transition failure here usually means a racing orchestration owns
		// the item; report without touching it further.
		if err := o.cfg.Machine.Transition(ctx, id, cur, proc, &domain.ItemPatch{IncrementAttempts: true}); err != nil {
			return failure(id, cur, err)
		}

		if err := o.cfg.Attempts.Append(ctx, &domain.Attempt{
			ID:         uuid.New().String(),
			ItemID:     id,
			Stage:      h.stage,
			Method:     string(h.stage),
			FromStatus: cur,
			ToStatus:   proc,
			CreatedAt:  o.now(),
		}); err != nil {
			slog.Error("Failed to append attempt", "item", id, "stage", h.stage, "error", err)
		}

		start := o.now()
		out, stageErr := h.run(ctx, sc)
		duration := o.now().Sub(start)
		metrics.StageDuration.WithLabelValues(string(h.stage)).Observe(duration.Seconds())

		if stageErr == nil && out != nil && len(out.candidates) > 0 {
			return o.concludeAmbiguous(ctx, id, h.stage, proc, out, duration)
		}
		if stageErr == nil && out != nil {
			res, err := o.concludeSuccess(ctx, id, h.stage, proc, out, duration)
			if err == nil {
				return res
			}
			stageErr = err // record fetch/validation broke; treat as stage failure
		}
		if stageErr == nil {
			stageErr = fmt.Errorf("stage %s produced no result", h.stage)
		}

		cat := classify.Classify(stageErr)
		o.updateLatest(ctx, id, domain.AttemptUpdate{
			Success:       false,
			ErrorMsg:      stageErr.Error(),
			ErrorCategory: string(cat),
			DurationMS:    duration.Milliseconds(),
			ToStatus:      proc,
		})
		metrics.ItemsProcessed.WithLabelValues(string(h.stage), "failure").Inc()

		if classify.IsPermanent(cat) || !classify.IsRetryable(cat) {
			return o.halt(ctx, id, proc, stageErr, cat)
		}

		slog.Debug("Stage failed, cascading", "item", id, "stage", h.stage, "category", cat, "error", stageErr)
		cur = proc
		lastErr, lastCat = stageErr, cat
	}

	// Every viable stage failed (or none was viable).
	if state.IsActive(cur) {
		if lastErr == nil {
			lastErr = errors.New("no resolution stage produced a result")
			lastCat = classify.CategoryUnknown
		}
		return o.halt(ctx, id, cur, lastErr, lastCat)
	}
	return ProcessingResult{
		ItemID: id,
		Status: cur,
		Error:  "no viable resolution method for item",
	}
}

// concludeSuccess validates the produced citation and stores the final
// state. Returned errors feed back into the stage-failure path.
func (o *Orchestrator) concludeSuccess(
	ctx context.Context,
	id string,
	stage domain.Stage,
	proc domain.ItemStatus,
	out *stageOutcome,
	duration time.Duration,
) (ProcessingResult, error) {
	citation := out.citation
	if citation == nil {
		fetched, err := o.cfg.Provider.FetchRecord(ctx, out.key)
		if err != nil {
			return ProcessingResult{}, fmt.Errorf("fetch stored record %s: %w", out.key, err)
		}
		citation = fetched
	}

	completeness := domain.CompletenessComplete
	final := domain.StatusStored
	if issues := CompletenessIssues(citation); len(issues) > 0 {
		completeness = domain.CompletenessIncomplete
		final = domain.StatusStoredIncomplete
		slog.Debug("Citation incomplete", "item", id, "issues", issues)
	}

	key := out.key
	if err := o.cfg.Machine.Transition(ctx, id, proc, final, &domain.ItemPatch{
		RecordKey:    &key,
		Completeness: &completeness,
	}); err != nil {
		return ProcessingResult{}, err
	}

	o.updateLatest(ctx, id, domain.AttemptUpdate{
		Success:    true,
		RecordKey:  key,
		DurationMS: duration.Milliseconds(),
		Metadata:   map[string]string{"method": out.method},
		ToStatus:   final,
	})
	metrics.ItemsProcessed.WithLabelValues(string(stage), "success").Inc()

	// A failed follow-up enqueue must never fail the overall result.
	if final == domain.StatusStoredIncomplete && o.cfg.Followup != nil {
		if err := o.cfg.Followup.Enqueue(ctx, id, key); err != nil {
			slog.Warn("Failed to enqueue follow-up extraction", "item", id, "error", err)
		}
	}

	return ProcessingResult{
		ItemID:    id,
		Success:   true,
		Status:    final,
		RecordKey: key,
	}, nil
}

// concludeAmbiguous stops the cascade and hands the choice to the user.
func (o *Orchestrator) concludeAmbiguous(
	ctx context.Context,
	id string,
	stage domain.Stage,
	proc domain.ItemStatus,
	out *stageOutcome,
	duration time.Duration,
) ProcessingResult {
	final := domain.StatusAwaitingReview
	if stage == domain.StageIdentifier || stage == domain.StageSpecializedAPI {
		final = domain.StatusAwaitingSelection
	}

	if err := o.cfg.Machine.Transition(ctx, id, proc, final, nil); err != nil {
		return failure(id, proc, err)
	}
	o.updateLatest(ctx, id, domain.AttemptUpdate{
		Success:    true,
		DurationMS: duration.Milliseconds(),
		Metadata:   map[string]string{"candidates": fmt.Sprintf("%d", len(out.candidates))},
		ToStatus:   final,
	})
	metrics.ItemsProcessed.WithLabelValues(string(stage), "ambiguous").Inc()

	return ProcessingResult{
		ItemID:     id,
		Success:    true,
		Status:     final,
		Candidates: len(out.candidates),
	}
}

// halt ends the cascade in exhausted and surfaces the failure.
func (o *Orchestrator) halt(
	ctx context.Context,
	id string,
	from domain.ItemStatus,
	cause error,
	cat classify.Category,
) ProcessingResult {
	if err := o.cfg.Machine.Transition(ctx, id, from, domain.StatusExhausted, nil); err != nil {
		slog.Error("Failed to mark item exhausted", "item", id, "error", err)
	} else {
		o.updateLatest(ctx, id, domain.AttemptUpdate{
			Success:       false,
			ErrorMsg:      cause.Error(),
			ErrorCategory: string(cat),
			ToStatus:      domain.StatusExhausted,
		})
	}
	return ProcessingResult{
		ItemID:        id,
		Status:        domain.StatusExhausted,
		Error:         cause.Error(),
		ErrorCategory: cat,
	}
}

func (o *Orchestrator) updateLatest(ctx context.Context, id string, upd domain.AttemptUpdate) {
	if err := o.cfg.Attempts.UpdateLatest(ctx, id, upd); err != nil {
		slog.Error("Failed to update attempt", "item", id, "error", err)
	}
}

// loadStageState gathers the persisted records the stage handlers and
// capability checks read.
func (o *Orchestrator) loadStageState(ctx context.Context, item *domain.Item) *stageState {
	sc := &stageState{item: item, tried: make(map[string]bool)}

	if a, err := o.cfg.Analysis.Get(ctx, item.ID); err == nil {
		sc.analysis = a
	}
	if e, err := o.cfg.Enrichment.Get(ctx, item.ID); err == nil {
		sc.enrichment = e
	}
	if entry, err := o.cfg.CacheRepo.Get(ctx, item.ID); err == nil {
		sc.entry = entry
	}
	sc.cap = capability.Compute(item, sc.analysis, sc.enrichment, sc.entry, o.now())
	return sc
}

func failure(id string, status domain.ItemStatus, err error) ProcessingResult {
	return ProcessingResult{
		ItemID:        id,
		Status:        status,
		Error:         err.Error(),
		ErrorCategory: classify.Classify(err),
	}
}
