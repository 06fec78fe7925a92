package orchestrator

import (
	"strings"

	"github.com/citelinker/resolver/internal/core/domain"
)

// placeholderTitles are titles providers emit when they could not read
// the page. A citation carrying one is never considered complete.
var placeholderTitles = map[string]bool{
	"untitled":           true,
	"unknown":            true,
	"404":                true,
	"404 not found":      true,
	"not found":          true,
	"page not found":     true,
	"access denied":      true,
	"just a moment...":   true,
	"attention required": true,
}

// CompletenessIssues lists what a stored citation is missing. An empty
// result means the citation is complete.
func CompletenessIssues(c *domain.Citation) []string {
	var issues []string

	title := strings.TrimSpace(c.Title)
	switch {
	case title == "":
		issues = append(issues, "missing title")
	case placeholderTitles[strings.ToLower(title)]:
		issues = append(issues, "placeholder title")
	}

	if len(c.Creators) == 0 {
		issues = append(issues, "missing creators")
	}
	if strings.TrimSpace(c.Date) == "" {
		issues = append(issues, "missing date")
	}
	return issues
}
