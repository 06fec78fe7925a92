package domain

import "time"

type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session has finished for good.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// ItemResult is the per-item outcome recorded on a batch session.
type ItemResult struct {
	ItemID   string        `json:"item_id"`
	Success  bool          `json:"success"`
	Status   ItemStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchSession tracks one batch run. Sessions live in process memory only
// and are swept after a retention window once terminal.
type BatchSession struct {
	ID                  string        `json:"id"`
	ItemIDs             []string      `json:"item_ids"`
	CurrentIndex        int           `json:"current_index"`
	Completed           []string      `json:"completed"`
	Failed              []string      `json:"failed"`
	Status              SessionStatus `json:"status"`
	StartedAt           time.Time     `json:"started_at"`
	EstimatedCompletion time.Time     `json:"estimated_completion,omitempty"`
	CompletedAt         time.Time     `json:"completed_at,omitempty"`
	Results             []ItemResult  `json:"results"`
}
