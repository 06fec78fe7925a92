package analyze

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/citelinker/resolver/internal/core/domain"
)

var (
	doiExpr   = regexp.MustCompile(`\b10\.\d{4,9}/[-._;()/:A-Za-z0-9]+`)
	arxivExpr = regexp.MustCompile(`(?i)\barxiv:\s*(\d{4}\.\d{4,5}(v\d+)?)`)
	isbnExpr  = regexp.MustCompile(`(?i)\bISBN(?:-1[03])?:?\s*((?:97[89][- ]?)?\d{1,5}[- ]?\d{1,7}[- ]?\d{1,7}[- ]?[\dX])\b`)
	pmidExpr  = regexp.MustCompile(`(?i)\bPMID:?\s*(\d{4,9})\b`)
)

// identifierMetaTags are <meta name=...> keys that carry identifiers,
// checked in order of confidence.
var identifierMetaTags = []string{
	"citation_doi",
	"citation_arxiv_id",
	"citation_pmid",
	"citation_isbn",
	"dc.identifier",
	"prism.doi",
}

// translatorDomains maps host suffixes to translator labels. A match
// means a site-specific web translator can likely resolve the URL.
var translatorDomains = map[string]string{
	"arxiv.org":               "arXiv.org",
	"doi.org":                 "DOI",
	"pubmed.ncbi.nlm.nih.gov": "PubMed",
	"semanticscholar.org":     "Semantic Scholar",
	"nature.com":              "Nature",
	"sciencedirect.com":       "ScienceDirect",
	"link.springer.com":       "Springer Link",
	"ieeexplore.ieee.org":     "IEEE Xplore",
	"dl.acm.org":              "ACM Digital Library",
	"jstor.org":               "JSTOR",
	"wikipedia.org":           "Wikipedia",
	"github.com":              "GitHub",
	"openreview.net":          "OpenReview",
	"biorxiv.org":             "bioRxiv",
}

// Analyze derives identifiers and translator candidates for an item from
// its URL and, when available, its fetched content.
func Analyze(itemID, rawURL string, content []byte, contentType string, statusCode int) *domain.Analysis {
	analysis := &domain.Analysis{
		ItemID:         itemID,
		LastStatusCode: statusCode,
		AnalyzedAt:     time.Now(),
	}

	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		analysis.Identifiers = append(analysis.Identifiers, id)
	}

	for _, id := range URLIdentifiers(rawURL) {
		add(id)
	}

	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "pdf") || strings.HasSuffix(strings.ToLower(rawURL), ".pdf") {
		analysis.IsPDF = true
	}

	if len(content) > 0 && strings.Contains(ct, "html") {
		for _, id := range htmlIdentifiers(content) {
			add(id)
		}
	}

	if translator := TranslatorFor(rawURL); translator != "" {
		analysis.Translators = append(analysis.Translators, translator)
	}

	return analysis
}

// URLIdentifiers extracts identifiers embedded in the URL itself, e.g.
// doi.org and arxiv.org/abs paths.
func URLIdentifiers(rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	path := strings.TrimPrefix(parsed.Path, "/")

	var ids []string
	switch {
	case host == "doi.org" || host == "dx.doi.org":
		if doi := doiExpr.FindString(path); doi != "" {
			ids = append(ids, doi)
		}
	case host == "arxiv.org":
		for _, prefix := range []string{"abs/", "pdf/"} {
			if strings.HasPrefix(path, prefix) {
				id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), ".pdf")
				ids = append(ids, "arXiv:"+id)
				break
			}
		}
	default:
		if doi := doiExpr.FindString(parsed.Path); doi != "" {
			ids = append(ids, doi)
		}
	}
	return ids
}

// TranslatorFor returns the translator label for a URL's host, or "".
func TranslatorFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	for suffix, label := range translatorDomains {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return label
		}
	}
	return ""
}

// htmlIdentifiers scans document meta tags and visible text for
// bibliographic identifiers.
func htmlIdentifiers(content []byte) []string {
	var ids []string

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err == nil {
		doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
			name, _ := sel.Attr("name")
			name = strings.ToLower(name)
			for _, tag := range identifierMetaTags {
				if name != tag {
					continue
				}
				if val, ok := sel.Attr("content"); ok && strings.TrimSpace(val) != "" {
					ids = append(ids, normalizeIdentifier(tag, val))
				}
			}
		})
	}

	text := string(content)
	if doi := doiExpr.FindString(text); doi != "" {
		ids = append(ids, doi)
	}
	if m := arxivExpr.FindStringSubmatch(text); m != nil {
		ids = append(ids, "arXiv:"+m[1])
	}
	if m := isbnExpr.FindStringSubmatch(text); m != nil {
		ids = append(ids, "ISBN:"+strings.ReplaceAll(strings.ReplaceAll(m[1], "-", ""), " ", ""))
	}
	if m := pmidExpr.FindStringSubmatch(text); m != nil {
		ids = append(ids, "PMID:"+m[1])
	}
	return ids
}

func normalizeIdentifier(tag, value string) string {
	value = strings.TrimSpace(value)
	switch tag {
	case "citation_arxiv_id":
		return "arXiv:" + value
	case "citation_pmid":
		return "PMID:" + value
	case "citation_isbn":
		return "ISBN:" + value
	}
	return value
}
