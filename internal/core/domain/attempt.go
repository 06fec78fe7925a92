package domain

import "time"

// Stage identifies one resolution method in the cascade.
type Stage string

const (
	StageSpecializedAPI Stage = "specialized_api"
	StageIdentifier     Stage = "identifier"
	StageTranslator     Stage = "translator"
	StageContent        Stage = "content"
	StageAI             Stage = "ai"
	StageManual         Stage = "manual"
)

// ProcessingStatus returns the processing_* status an item enters while
// this stage runs.
func (s Stage) ProcessingStatus() ItemStatus {
	switch s {
	case StageSpecializedAPI:
		return StatusProcessingAPI
	case StageIdentifier:
		return StatusProcessingIdentifier
	case StageTranslator:
		return StatusProcessingTranslator
	case StageContent:
		return StatusProcessingContent
	case StageAI:
		return StatusProcessingAI
	}
	return StatusNotStarted
}

// Attempt is one entry in an item's processing history. Rows are
// append-only; the latest row for an item is updated in place when its
// stage concludes.
type Attempt struct {
	ID            string            `db:"id"`
	ItemID        string            `db:"item_id"`
	Seq           int               `db:"seq"`
	Stage         Stage             `db:"stage"`
	Method        string            `db:"method"`
	Success       bool              `db:"success"`
	ErrorMsg      string            `db:"error_msg"`
	ErrorCategory string            `db:"error_category"`
	RecordKey     string            `db:"record_key"`
	DurationMS    int64             `db:"duration_ms"`
	Metadata      map[string]string `db:"-"`
	FromStatus    ItemStatus        `db:"from_status"`
	ToStatus      ItemStatus        `db:"to_status"`
	CreatedAt     time.Time         `db:"created_at"`
}

// AttemptUpdate carries the mutable outcome fields written back to the
// pending attempt when a stage concludes.
type AttemptUpdate struct {
	Success       bool
	ErrorMsg      string
	ErrorCategory string
	RecordKey     string
	DurationMS    int64
	Metadata      map[string]string
	ToStatus      ItemStatus
}
