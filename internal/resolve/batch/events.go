package batch

import (
	"time"

	"github.com/citelinker/resolver/internal/resolve/orchestrator"
)

// Event types emitted on a session's stream.
const (
	EventProgress     = "progress"
	EventURLProcessed = "url_processed"
	EventError        = "error"
	EventComplete     = "complete"
)

// Stats summarizes a session's counters at the time of an event.
type Stats struct {
	Completed           int       `json:"completed"`
	Failed              int       `json:"failed"`
	EstimatedCompletion time.Time `json:"estimated_completion,omitzero"`
}

// Event is one entry in a batch session's progress stream, shaped for
// line-delimited JSON delivery over a long-lived connection.
type Event struct {
	Type     string                         `json:"type"`
	Phase    string                         `json:"phase,omitempty"`
	Progress int                            `json:"progress"`
	Total    int                            `json:"total"`
	ItemID   string                         `json:"item_id,omitempty"`
	Result   *orchestrator.ProcessingResult `json:"result,omitempty"`
	Stats    *Stats                         `json:"stats,omitempty"`
}
