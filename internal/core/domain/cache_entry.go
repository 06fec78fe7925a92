package domain

import "time"

// CacheEntry holds metadata for one fetched document. One entry per item;
// a re-fetch replaces both the metadata and the file.
type CacheEntry struct {
	ItemID        string    `db:"item_id"`
	ContentHash   string    `db:"content_hash"`
	ContentType   string    `db:"content_type"`
	SizeBytes     int64     `db:"size_bytes"`
	RawPath       string    `db:"raw_path"`
	ProcessedPath string    `db:"processed_path"`
	StatusCode    int       `db:"status_code"`
	FetchedAt     time.Time `db:"fetched_at"`
	LastAccess    time.Time `db:"last_access"`
	ExpiresAt     time.Time `db:"expires_at"`
}

// Expired reports whether the entry is past its expiry horizon.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
