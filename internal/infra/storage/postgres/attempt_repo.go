package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/citelinker/resolver/internal/core/domain"
)

// AttemptRepo implements storage.AttemptRepository using PostgreSQL.
// History is a dedicated append-only table, not a JSON array column, so
// concurrent appends for different items never collide.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new PostgreSQL attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Append adds a new attempt to an item's history. Seq is assigned from
// the current history length.
func (r *AttemptRepo) Append(ctx context.Context, attempt *domain.Attempt) error {
	meta, err := json.Marshal(attempt.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt metadata: %w", err)
	}

	query := `
		INSERT INTO attempts (id, item_id, seq, stage, method, success, error_msg,
			error_category, record_key, duration_ms, metadata, from_status, to_status, created_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM attempts WHERE item_id = $2),
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		attempt.ID, attempt.ItemID, attempt.Stage, attempt.Method,
		attempt.Success, attempt.ErrorMsg, attempt.ErrorCategory,
		attempt.RecordKey, attempt.DurationMS, meta,
		attempt.FromStatus, attempt.ToStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}

// UpdateLatest mutates the most recent attempt for an item in place.
func (r *AttemptRepo) UpdateLatest(ctx context.Context, itemID string, upd domain.AttemptUpdate) error {
	meta, err := json.Marshal(upd.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt metadata: %w", err)
	}

	query := `
		UPDATE attempts SET
			success = $1,
			error_msg = $2,
			error_category = $3,
			record_key = $4,
			duration_ms = $5,
			metadata = $6,
			to_status = $7
		WHERE item_id = $8
		  AND seq = (SELECT MAX(seq) FROM attempts WHERE item_id = $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		upd.Success, upd.ErrorMsg, upd.ErrorCategory, upd.RecordKey,
		upd.DurationMS, meta, upd.ToStatus, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update latest attempt: %w", err)
	}
	return nil
}

// ListByItem returns an item's history ordered by sequence.
func (r *AttemptRepo) ListByItem(ctx context.Context, itemID string) ([]*domain.Attempt, error) {
	query := `
		SELECT id, item_id, seq, stage, method, success, error_msg,
			error_category, record_key, duration_ms, metadata, from_status, to_status, created_at
		FROM attempts WHERE item_id = $1 ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		var meta []byte
		err := rows.Scan(&a.ID, &a.ItemID, &a.Seq, &a.Stage, &a.Method,
			&a.Success, &a.ErrorMsg, &a.ErrorCategory, &a.RecordKey,
			&a.DurationMS, &meta, &a.FromStatus, &a.ToStatus, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attempt metadata: %w", err)
			}
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

// DeleteByItem clears an item's history. Used only by explicit reset.
func (r *AttemptRepo) DeleteByItem(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attempts WHERE item_id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete attempts: %w", err)
	}
	return nil
}
