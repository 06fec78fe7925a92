package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
)

// CacheRepo implements storage.CacheRepository using PostgreSQL.
type CacheRepo struct {
	db *DB
}

// NewCacheRepo creates a new PostgreSQL cache repository.
func NewCacheRepo(db *DB) *CacheRepo {
	return &CacheRepo{db: db}
}

// Upsert creates or replaces the entry for an item.
func (r *CacheRepo) Upsert(ctx context.Context, entry *domain.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (item_id, content_hash, content_type, size_bytes,
			raw_path, processed_path, status_code, fetched_at, last_access, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (item_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			raw_path = EXCLUDED.raw_path,
			processed_path = EXCLUDED.processed_path,
			status_code = EXCLUDED.status_code,
			fetched_at = EXCLUDED.fetched_at,
			last_access = EXCLUDED.last_access,
			expires_at = EXCLUDED.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ItemID, entry.ContentHash, entry.ContentType, entry.SizeBytes,
		entry.RawPath, entry.ProcessedPath, entry.StatusCode,
		entry.FetchedAt, entry.LastAccess, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Get retrieves the entry for an item, nil if absent.
func (r *CacheRepo) Get(ctx context.Context, itemID string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	err := r.db.GetContext(ctx, &entry, `SELECT * FROM cache_entries WHERE item_id = $1`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// Touch bumps the last-access timestamp.
func (r *CacheRepo) Touch(ctx context.Context, itemID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cache_entries SET last_access = $1 WHERE item_id = $2`, at, itemID)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry record.
func (r *CacheRepo) Delete(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE item_id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// ListExpired returns all entries past their expiry at the given time.
func (r *CacheRepo) ListExpired(ctx context.Context, now time.Time) ([]*domain.CacheEntry, error) {
	var entries []*domain.CacheEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM cache_entries WHERE expires_at < $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired cache entries: %w", err)
	}
	return entries, nil
}
