package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
)

// ItemRepo implements storage.ItemRepository using PostgreSQL.
type ItemRepo struct {
	db *DB
}

// NewItemRepo creates a new PostgreSQL item repository.
func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// Create inserts a new item in not_started state.
func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (id, url, status, intent, processing_attempts, record_key, completeness, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.URL, item.Status, item.Intent,
		item.ProcessingAttempts, item.RecordKey, item.Completeness,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetByID retrieves an item.
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	err := r.db.GetContext(ctx, &item, `SELECT * FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

// GetByURL retrieves an item by its URL.
func (r *ItemRepo) GetByURL(ctx context.Context, url string) (*domain.Item, error) {
	var item domain.Item
	err := r.db.GetContext(ctx, &item, `SELECT * FROM items WHERE url = $1`, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by url: %w", err)
	}
	return &item, nil
}

// UpdateStatusIf performs the optimistic transition as a single conditional
// UPDATE. The WHERE clause carries the expected status, so a concurrent
// transition shows up as zero affected rows rather than a lost write.
func (r *ItemRepo) UpdateStatusIf(
	ctx context.Context,
	id string,
	expectedFrom, to domain.ItemStatus,
	patch *domain.ItemPatch,
) error {
	if patch == nil {
		patch = &domain.ItemPatch{}
	}
	inc := 0
	if patch.IncrementAttempts {
		inc = 1
	}

	query := `
		UPDATE items SET
			status = $1,
			processing_attempts = processing_attempts + $2,
			record_key = COALESCE($3, record_key),
			completeness = COALESCE($4, completeness),
			intent = COALESCE($5, intent),
			updated_at = NOW()
		WHERE id = $6 AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		to, inc, patch.RecordKey, patch.Completeness, patch.Intent, id, expectedFrom,
	)
	if err != nil {
		return fmt.Errorf("failed to update item status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing item from a stale expected status.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return storage.ErrStaleState
	}
	return nil
}

// SetIntent updates the user intent.
func (r *ItemRepo) SetIntent(ctx context.Context, id string, intent domain.Intent) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE items SET intent = $1, updated_at = NOW() WHERE id = $2`, intent, id)
	if err != nil {
		return fmt.Errorf("failed to set intent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrItemNotFound
	}
	return nil
}

// Reset clears processing state back to not_started. History rows are
// removed by the caller via AttemptRepository in the same operation.
func (r *ItemRepo) Reset(ctx context.Context, id string) error {
	query := `
		UPDATE items SET
			status = $1,
			processing_attempts = 0,
			record_key = '',
			completeness = $2,
			updated_at = NOW()
		WHERE id = $3
	`
	res, err := r.db.ExecContext(ctx, query, domain.StatusNotStarted, domain.CompletenessUnknown, id)
	if err != nil {
		return fmt.Errorf("failed to reset item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrItemNotFound
	}
	return nil
}

// CountByStatus returns item counts grouped by status.
func (r *ItemRepo) CountByStatus(ctx context.Context) (map[domain.ItemStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ItemStatus]int)
	for rows.Next() {
		var status domain.ItemStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
