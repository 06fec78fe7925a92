package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/citelinker/resolver/internal/core/domain"
)

// EnrichmentRepo implements storage.EnrichmentRepository using PostgreSQL.
type EnrichmentRepo struct {
	db *DB
}

// NewEnrichmentRepo creates a new PostgreSQL enrichment repository.
func NewEnrichmentRepo(db *DB) *EnrichmentRepo {
	return &EnrichmentRepo{db: db}
}

// Upsert creates or replaces the enrichment record for an item.
func (r *EnrichmentRepo) Upsert(ctx context.Context, enrichment *domain.Enrichment) error {
	query := `
		INSERT INTO enrichment (item_id, identifiers, notes, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (item_id) DO UPDATE SET
			identifiers = EXCLUDED.identifiers,
			notes = EXCLUDED.notes,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		enrichment.ItemID, pq.StringArray(enrichment.Identifiers), enrichment.Notes)
	if err != nil {
		return fmt.Errorf("failed to upsert enrichment: %w", err)
	}
	return nil
}

// Get retrieves the enrichment record for an item, nil if absent.
func (r *EnrichmentRepo) Get(ctx context.Context, itemID string) (*domain.Enrichment, error) {
	query := `SELECT item_id, identifiers, notes, updated_at FROM enrichment WHERE item_id = $1`
	row := r.db.QueryRowContext(ctx, query, itemID)

	var e domain.Enrichment
	var identifiers pq.StringArray
	err := row.Scan(&e.ItemID, &identifiers, &e.Notes, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get enrichment: %w", err)
	}
	e.Identifiers = []string(identifiers)
	return &e, nil
}
