package capability

import (
	"strings"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
)

// Compute derives which resolution stages are viable for an item from its
// persisted analysis, enrichment and cache state. Pure; any argument but
// the item may be nil.
func Compute(
	item *domain.Item,
	analysis *domain.Analysis,
	enrichment *domain.Enrichment,
	entry *domain.CacheEntry,
	now time.Time,
) domain.Capability {
	cap := domain.Capability{ManualCreateAvailable: true}

	if analysis != nil && len(analysis.Identifiers) > 0 {
		cap.HasIdentifiers = true
	}
	if enrichment != nil && len(enrichment.Identifiers) > 0 {
		cap.HasIdentifiers = true
	}
	if analysis != nil && len(analysis.Translators) > 0 {
		cap.HasWebTranslators = true
	}

	if entry != nil && !entry.Expired(now) {
		cap.HasContent = true
		cap.CanUseAIExtraction = true
		if strings.Contains(strings.ToLower(entry.ContentType), "pdf") {
			cap.IsPDF = true
		}
	}

	switch {
	case entry != nil && entry.StatusCode > 0:
		cap.IsAccessible = entry.StatusCode < 400
	case analysis != nil && analysis.LastStatusCode > 0:
		cap.IsAccessible = analysis.LastStatusCode < 400
	}

	if !cap.IsPDF && analysis != nil && analysis.IsPDF {
		cap.IsPDF = true
	}

	return cap
}

// Identifiers merges analysis-derived and user-supplied identifiers,
// user-supplied first, deduplicated.
func Identifiers(analysis *domain.Analysis, enrichment *domain.Enrichment) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	if enrichment != nil {
		add(enrichment.Identifiers)
	}
	if analysis != nil {
		add(analysis.Identifiers)
	}
	return out
}
