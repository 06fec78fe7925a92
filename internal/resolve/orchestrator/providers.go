package orchestrator

import (
	"net/url"
	"regexp"
	"strings"
)

// ProviderRegistration describes a scholarly source with a dedicated
// lookup path. Identifier derives a resolvable identifier from a URL on
// the provider's domain, or "" to fall back to URL resolution.
type ProviderRegistration struct {
	Name       string
	Hosts      []string
	Identifier func(u *url.URL) string
}

var (
	arxivPathRe = regexp.MustCompile(`^/(?:abs|pdf)/([0-9]{4}\.[0-9]{4,5}(?:v[0-9]+)?)`)
	pubmedIDRe  = regexp.MustCompile(`^/([0-9]{4,9})/?$`)
)

// knownProviders lists sources whose URLs can be short-circuited to an
// identifier or API lookup ahead of the generic cascade.
var knownProviders = []ProviderRegistration{
	{
		Name:  "arxiv",
		Hosts: []string{"arxiv.org", "www.arxiv.org"},
		Identifier: func(u *url.URL) string {
			if m := arxivPathRe.FindStringSubmatch(u.Path); m != nil {
				return "arXiv:" + m[1]
			}
			return ""
		},
	},
	{
		Name:  "doi",
		Hosts: []string{"doi.org", "dx.doi.org"},
		Identifier: func(u *url.URL) string {
			doi := strings.TrimPrefix(u.Path, "/")
			if strings.HasPrefix(doi, "10.") {
				return doi
			}
			return ""
		},
	},
	{
		Name:  "pubmed",
		Hosts: []string{"pubmed.ncbi.nlm.nih.gov"},
		Identifier: func(u *url.URL) string {
			if m := pubmedIDRe.FindStringSubmatch(u.Path); m != nil {
				return "PMID:" + m[1]
			}
			return ""
		},
	},
	{
		Name:  "semanticscholar",
		Hosts: []string{"www.semanticscholar.org", "semanticscholar.org", "api.semanticscholar.org"},
		Identifier: func(u *url.URL) string {
			// Paper pages end in /<title-slug>/<hex-id>; the API resolves by URL.
			return ""
		},
	},
}

type resolvedProvider struct {
	Name       string
	identifier string
}

func (r *resolvedProvider) Identifier(rawURL string) string { return r.identifier }

// KnownProvider returns the registration matching the URL's host, nil if
// the URL belongs to no registered provider.
func KnownProvider(rawURL string) *resolvedProvider {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	for _, reg := range knownProviders {
		for _, h := range reg.Hosts {
			if host == h {
				return &resolvedProvider{Name: reg.Name, identifier: reg.Identifier(u)}
			}
		}
	}
	return nil
}
