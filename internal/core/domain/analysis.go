package domain

import "time"

// Analysis holds what URL/content analysis extracted for an item:
// bibliographic identifiers (DOI, arXiv, ISBN, PMID) and web translator
// candidates matched by domain pattern.
type Analysis struct {
	ItemID         string    `db:"item_id"`
	Identifiers    []string  `db:"identifiers"`
	Translators    []string  `db:"translators"`
	IsPDF          bool      `db:"is_pdf"`
	LastStatusCode int       `db:"last_status_code"`
	AnalyzedAt     time.Time `db:"analyzed_at"`
}

// Enrichment holds user-supplied data for an item.
type Enrichment struct {
	ItemID      string    `db:"item_id"`
	Identifiers []string  `db:"identifiers"`
	Notes       string    `db:"notes"`
	UpdatedAt   time.Time `db:"updated_at"`
}
