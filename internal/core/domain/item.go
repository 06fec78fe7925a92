package domain

import "time"

type ItemStatus string

const (
	StatusNotStarted           ItemStatus = "not_started"
	StatusProcessingAPI        ItemStatus = "processing_api"
	StatusProcessingIdentifier ItemStatus = "processing_identifier"
	StatusProcessingTranslator ItemStatus = "processing_translator"
	StatusProcessingContent    ItemStatus = "processing_content"
	StatusProcessingAI         ItemStatus = "processing_ai"
	StatusAwaitingSelection    ItemStatus = "awaiting_selection"
	StatusAwaitingReview       ItemStatus = "awaiting_review"
	StatusStored               ItemStatus = "stored"
	StatusStoredIncomplete     ItemStatus = "stored_incomplete"
	StatusStoredCustom         ItemStatus = "stored_custom"
	StatusExhausted            ItemStatus = "exhausted"
	StatusIgnored              ItemStatus = "ignored"
	StatusArchived             ItemStatus = "archived"
)

// Intent captures what the user wants done with an item.
type Intent string

const (
	IntentAuto       Intent = "auto"
	IntentIgnore     Intent = "ignore"
	IntentPriority   Intent = "priority"
	IntentManualOnly Intent = "manual_only"
	IntentArchive    Intent = "archive"
)

// AllowsAutomation reports whether the intent permits automated resolution.
func (i Intent) AllowsAutomation() bool {
	switch i {
	case IntentIgnore, IntentArchive, IntentManualOnly:
		return false
	}
	return true
}

type Completeness string

const (
	CompletenessUnknown    Completeness = "unknown"
	CompletenessComplete   Completeness = "complete"
	CompletenessIncomplete Completeness = "incomplete"
)

// Item represents one URL under citation management.
type Item struct {
	ID                 string       `db:"id"`
	URL                string       `db:"url"`
	Status             ItemStatus   `db:"status"`
	Intent             Intent       `db:"intent"`
	ProcessingAttempts int          `db:"processing_attempts"`
	RecordKey          string       `db:"record_key"`
	Completeness       Completeness `db:"completeness"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

// ItemPatch holds optional field updates merged into an item during a
// state transition. Nil fields are left untouched.
type ItemPatch struct {
	IncrementAttempts bool
	RecordKey         *string
	Completeness      *Completeness
	Intent            *Intent
}
