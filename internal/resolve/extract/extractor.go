package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"

	"github.com/citelinker/resolver/internal/core/domain"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Extraction is the bibliographic signal pulled out of a cached document.
type Extraction struct {
	Title    string
	Byline   string
	Creators []string
	Excerpt  string
	SiteName string
	Markdown string
}

// Extractor runs a readability pass over HTML and converts the article
// body to markdown for the downstream extraction stages.
type Extractor struct {
	converter *md.Converter
}

// New creates an extractor with GitHub-flavored markdown output.
func New() *Extractor {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Extractor{converter: converter}
}

// Extract pulls the readable article out of an HTML document.
func (e *Extractor) Extract(content []byte, pageURL string) (*Extraction, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(content), parsed)
	if err != nil {
		return nil, fmt.Errorf("readability parse failed: %w", err)
	}

	markdown, err := e.converter.ConvertString(article.Content)
	if err != nil {
		return nil, fmt.Errorf("markdown conversion failed: %w", err)
	}
	markdown = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n"))

	return &Extraction{
		Title:    strings.TrimSpace(article.Title),
		Byline:   strings.TrimSpace(article.Byline),
		Creators: splitByline(article.Byline),
		Excerpt:  strings.TrimSpace(article.Excerpt),
		SiteName: strings.TrimSpace(article.SiteName),
		Markdown: markdown,
	}, nil
}

// Citation builds a webpage citation from the extracted fields.
func (x *Extraction) Citation(pageURL string) *domain.Citation {
	fields := map[string]string{"url": pageURL}
	if x.Excerpt != "" {
		fields["abstractNote"] = x.Excerpt
	}
	if x.SiteName != "" {
		fields["websiteTitle"] = x.SiteName
	}
	return &domain.Citation{
		Title:    x.Title,
		Creators: x.Creators,
		ItemType: "webpage",
		Fields:   fields,
	}
}

// splitByline breaks "A, B and C" style author strings into names.
func splitByline(byline string) []string {
	byline = strings.TrimSpace(byline)
	byline = strings.TrimPrefix(byline, "By ")
	byline = strings.TrimPrefix(byline, "by ")
	if byline == "" {
		return nil
	}

	byline = strings.ReplaceAll(byline, " and ", ", ")
	byline = strings.ReplaceAll(byline, " & ", ", ")

	var creators []string
	for _, part := range strings.Split(byline, ",") {
		if name := strings.TrimSpace(part); name != "" {
			creators = append(creators, name)
		}
	}
	return creators
}
