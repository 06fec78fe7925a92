package extract

import (
	"strings"
	"testing"
)

const sampleArticle = `<html><head><title>Understanding Token Buckets</title>
<meta name="author" content="Ada Lovelace">
</head><body>
<article>
<h1>Understanding Token Buckets</h1>
<p class="byline">By Ada Lovelace and Alan Turing</p>
<p>Token buckets refill over time and cap at a maximum. This paragraph
exists to give the readability pass enough body text to identify the
article content, which it decides based on text density heuristics over
the document tree and a handful of class name signals.</p>
<p>A second paragraph keeps the density comfortably above threshold so
the extraction output is stable across library versions.</p>
</article>
</body></html>`

func TestExtractArticle(t *testing.T) {
	e := New()
	got, err := e.Extract([]byte(sampleArticle), "https://example.org/token-buckets")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got.Title, "Token Buckets") {
		t.Errorf("title = %q", got.Title)
	}
	if got.Markdown == "" {
		t.Error("markdown empty")
	}
	if !strings.Contains(got.Markdown, "refill over time") {
		t.Errorf("markdown lost body text: %q", got.Markdown)
	}
}

func TestSplitByline(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"By Ada Lovelace", []string{"Ada Lovelace"}},
		{"Ada Lovelace and Alan Turing", []string{"Ada Lovelace", "Alan Turing"}},
		{"A. One, B. Two & C. Three", []string{"A. One", "B. Two", "C. Three"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := splitByline(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("splitByline(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("splitByline(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}
