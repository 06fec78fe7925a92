package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/citelinker/resolver/internal/core/domain"
)

// AnalysisRepo implements storage.AnalysisRepository using PostgreSQL.
type AnalysisRepo struct {
	db *DB
}

// NewAnalysisRepo creates a new PostgreSQL analysis repository.
func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// Upsert creates or replaces the analysis record for an item.
func (r *AnalysisRepo) Upsert(ctx context.Context, analysis *domain.Analysis) error {
	query := `
		INSERT INTO analysis (item_id, identifiers, translators, is_pdf, last_status_code, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			identifiers = EXCLUDED.identifiers,
			translators = EXCLUDED.translators,
			is_pdf = EXCLUDED.is_pdf,
			last_status_code = EXCLUDED.last_status_code,
			analyzed_at = EXCLUDED.analyzed_at
	`
	_, err := r.db.ExecContext(ctx, query,
		analysis.ItemID,
		pq.StringArray(analysis.Identifiers),
		pq.StringArray(analysis.Translators),
		analysis.IsPDF, analysis.LastStatusCode, analysis.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}
	return nil
}

// Get retrieves the analysis record for an item, nil if absent.
func (r *AnalysisRepo) Get(ctx context.Context, itemID string) (*domain.Analysis, error) {
	query := `
		SELECT item_id, identifiers, translators, is_pdf, last_status_code, analyzed_at
		FROM analysis WHERE item_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, itemID)

	var a domain.Analysis
	var identifiers, translators pq.StringArray
	err := row.Scan(&a.ItemID, &identifiers, &translators, &a.IsPDF, &a.LastStatusCode, &a.AnalyzedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	a.Identifiers = []string(identifiers)
	a.Translators = []string(translators)
	return &a, nil
}
