package memory

import (
	"context"
	"sync"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
)

// MemoryStorage backs all repositories with process-local maps. Used for
// tests and for running without a database.
type MemoryStorage struct {
	items      map[string]*domain.Item
	itemsByURL map[string]string
	attempts   map[string][]*domain.Attempt
	cache      map[string]*domain.CacheEntry
	analysis   map[string]*domain.Analysis
	enrichment map[string]*domain.Enrichment
	mu         sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		items:      make(map[string]*domain.Item),
		itemsByURL: make(map[string]string),
		attempts:   make(map[string][]*domain.Attempt),
		cache:      make(map[string]*domain.CacheEntry),
		analysis:   make(map[string]*domain.Analysis),
		enrichment: make(map[string]*domain.Enrichment),
	}
}

// -----------------------------------------------------------------------------
// Item Repository
// -----------------------------------------------------------------------------

type ItemRepo struct {
	store *MemoryStorage
}

func NewItemRepo(store *MemoryStorage) *ItemRepo {
	return &ItemRepo{store: store}
}

func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *item
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	r.store.items[cp.ID] = &cp
	r.store.itemsByURL[cp.URL] = cp.ID
	return nil
}

func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	item, ok := r.store.items[id]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *ItemRepo) GetByURL(ctx context.Context, url string) (*domain.Item, error) {
	r.store.mu.RLock()
	id, ok := r.store.itemsByURL[url]
	r.store.mu.RUnlock()
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ItemRepo) UpdateStatusIf(
	ctx context.Context,
	id string,
	expectedFrom, to domain.ItemStatus,
	patch *domain.ItemPatch,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	item, ok := r.store.items[id]
	if !ok {
		return storage.ErrItemNotFound
	}
	if item.Status != expectedFrom {
		return storage.ErrStaleState
	}

	item.Status = to
	if patch != nil {
		if patch.IncrementAttempts {
			item.ProcessingAttempts++
		}
		if patch.RecordKey != nil {
			item.RecordKey = *patch.RecordKey
		}
		if patch.Completeness != nil {
			item.Completeness = *patch.Completeness
		}
		if patch.Intent != nil {
			item.Intent = *patch.Intent
		}
	}
	item.UpdatedAt = time.Now()
	return nil
}

func (r *ItemRepo) SetIntent(ctx context.Context, id string, intent domain.Intent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.items[id]
	if !ok {
		return storage.ErrItemNotFound
	}
	item.Intent = intent
	item.UpdatedAt = time.Now()
	return nil
}

func (r *ItemRepo) Reset(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.items[id]
	if !ok {
		return storage.ErrItemNotFound
	}
	item.Status = domain.StatusNotStarted
	item.ProcessingAttempts = 0
	item.RecordKey = ""
	item.Completeness = domain.CompletenessUnknown
	item.UpdatedAt = time.Now()
	return nil
}

func (r *ItemRepo) CountByStatus(ctx context.Context) (map[domain.ItemStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[domain.ItemStatus]int)
	for _, item := range r.store.items {
		counts[item.Status]++
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Attempt Repository
// -----------------------------------------------------------------------------

type AttemptRepo struct {
	store *MemoryStorage
}

func NewAttemptRepo(store *MemoryStorage) *AttemptRepo {
	return &AttemptRepo{store: store}
}

func (r *AttemptRepo) Append(ctx context.Context, attempt *domain.Attempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *attempt
	cp.Seq = len(r.store.attempts[cp.ItemID]) + 1
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.store.attempts[cp.ItemID] = append(r.store.attempts[cp.ItemID], &cp)
	return nil
}

func (r *AttemptRepo) UpdateLatest(ctx context.Context, itemID string, upd domain.AttemptUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	history := r.store.attempts[itemID]
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	last.Success = upd.Success
	last.ErrorMsg = upd.ErrorMsg
	last.ErrorCategory = upd.ErrorCategory
	last.RecordKey = upd.RecordKey
	last.DurationMS = upd.DurationMS
	last.Metadata = upd.Metadata
	if upd.ToStatus != "" {
		last.ToStatus = upd.ToStatus
	}
	return nil
}

func (r *AttemptRepo) ListByItem(ctx context.Context, itemID string) ([]*domain.Attempt, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	history := r.store.attempts[itemID]
	out := make([]*domain.Attempt, len(history))
	for i, a := range history {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (r *AttemptRepo) DeleteByItem(ctx context.Context, itemID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.attempts, itemID)
	return nil
}

// -----------------------------------------------------------------------------
// Cache Repository
// -----------------------------------------------------------------------------

type CacheRepo struct {
	store *MemoryStorage
}

func NewCacheRepo(store *MemoryStorage) *CacheRepo {
	return &CacheRepo{store: store}
}

func (r *CacheRepo) Upsert(ctx context.Context, entry *domain.CacheEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.cache[cp.ItemID] = &cp
	return nil
}

func (r *CacheRepo) Get(ctx context.Context, itemID string) (*domain.CacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	entry, ok := r.store.cache[itemID]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (r *CacheRepo) Touch(ctx context.Context, itemID string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if entry, ok := r.store.cache[itemID]; ok {
		entry.LastAccess = at
	}
	return nil
}

func (r *CacheRepo) Delete(ctx context.Context, itemID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.cache, itemID)
	return nil
}

func (r *CacheRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.CacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var expired []*domain.CacheEntry
	for _, entry := range r.store.cache {
		if entry.Expired(now) {
			cp := *entry
			expired = append(expired, &cp)
		}
	}
	return expired, nil
}

// -----------------------------------------------------------------------------
// Analysis / Enrichment Repositories
// -----------------------------------------------------------------------------

type AnalysisRepo struct {
	store *MemoryStorage
}

func NewAnalysisRepo(store *MemoryStorage) *AnalysisRepo {
	return &AnalysisRepo{store: store}
}

func (r *AnalysisRepo) Upsert(ctx context.Context, analysis *domain.Analysis) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *analysis
	r.store.analysis[cp.ItemID] = &cp
	return nil
}

func (r *AnalysisRepo) Get(ctx context.Context, itemID string) (*domain.Analysis, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	analysis, ok := r.store.analysis[itemID]
	if !ok {
		return nil, nil
	}
	cp := *analysis
	return &cp, nil
}

type EnrichmentRepo struct {
	store *MemoryStorage
}

func NewEnrichmentRepo(store *MemoryStorage) *EnrichmentRepo {
	return &EnrichmentRepo{store: store}
}

func (r *EnrichmentRepo) Upsert(ctx context.Context, enrichment *domain.Enrichment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *enrichment
	r.store.enrichment[cp.ItemID] = &cp
	return nil
}

func (r *EnrichmentRepo) Get(ctx context.Context, itemID string) (*domain.Enrichment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	enrichment, ok := r.store.enrichment[itemID]
	if !ok {
		return nil, nil
	}
	cp := *enrichment
	return &cp, nil
}
