package storage

import (
	"context"
	"errors"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
)

var (
	// ErrItemNotFound is returned when an item doesn't exist
	ErrItemNotFound = errors.New("item not found")

	// ErrStaleState is returned when a conditional status update finds a
	// different current status than the caller expected
	ErrStaleState = errors.New("item state changed concurrently")
)

// ItemRepository handles item storage operations
type ItemRepository interface {
	// Create inserts a new item in not_started state
	Create(ctx context.Context, item *domain.Item) error

	// GetByID retrieves an item
	GetByID(ctx context.Context, id string) (*domain.Item, error)

	// GetByURL retrieves an item by its URL
	GetByURL(ctx context.Context, url string) (*domain.Item, error)

	// UpdateStatusIf atomically moves the item from expectedFrom to the new
	// status and applies the patch, but only if the persisted status still
	// equals expectedFrom. Returns ErrStaleState otherwise.
	UpdateStatusIf(
		ctx context.Context,
		id string,
		expectedFrom, to domain.ItemStatus,
		patch *domain.ItemPatch,
	) error

	// SetIntent updates the user intent
	SetIntent(ctx context.Context, id string, intent domain.Intent) error

	// Reset clears status, attempts, record key and history back to not_started
	Reset(ctx context.Context, id string) error

	// CountByStatus returns item counts grouped by status
	CountByStatus(ctx context.Context) (map[domain.ItemStatus]int, error)
}

// AttemptRepository is the append-only processing history log
type AttemptRepository interface {
	// Append adds a new attempt to an item's history
	Append(ctx context.Context, attempt *domain.Attempt) error

	// UpdateLatest mutates the most recent attempt for an item in place
	UpdateLatest(ctx context.Context, itemID string, upd domain.AttemptUpdate) error

	// ListByItem returns an item's history ordered by sequence
	ListByItem(ctx context.Context, itemID string) ([]*domain.Attempt, error)

	// DeleteByItem clears an item's history (explicit reset only)
	DeleteByItem(ctx context.Context, itemID string) error
}

// CacheRepository handles cache-entry metadata
type CacheRepository interface {
	// Upsert creates or replaces the entry for an item
	Upsert(ctx context.Context, entry *domain.CacheEntry) error

	// Get retrieves the entry for an item, nil if absent
	Get(ctx context.Context, itemID string) (*domain.CacheEntry, error)

	// Touch bumps the last-access timestamp
	Touch(ctx context.Context, itemID string, at time.Time) error

	// Delete removes the entry record
	Delete(ctx context.Context, itemID string) error

	// ListExpired returns all entries past their expiry at the given time
	ListExpired(ctx context.Context, now time.Time) ([]*domain.CacheEntry, error)
}

// AnalysisRepository stores derived URL/content analysis
type AnalysisRepository interface {
	Upsert(ctx context.Context, analysis *domain.Analysis) error
	Get(ctx context.Context, itemID string) (*domain.Analysis, error)
}

// EnrichmentRepository stores user-supplied identifiers and notes
type EnrichmentRepository interface {
	Upsert(ctx context.Context, enrichment *domain.Enrichment) error
	Get(ctx context.Context, itemID string) (*domain.Enrichment, error)
}
