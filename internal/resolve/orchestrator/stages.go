package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/zotero"
	"github.com/citelinker/resolver/internal/resolve/analyze"
	"github.com/citelinker/resolver/internal/resolve/capability"
	"github.com/citelinker/resolver/internal/resolve/extract"
)

// stageState carries everything a stage handler reads or refines while
// one item moves through the cascade.
type stageState struct {
	item       *domain.Item
	analysis   *domain.Analysis
	enrichment *domain.Enrichment
	entry      *domain.CacheEntry
	cap        domain.Capability
	content    []byte
	extraction *extract.Extraction
	tried      map[string]bool
}

// stageOutcome is a successful handler result: either a stored record key
// (with an optional already-known citation) or a candidate list to put in
// front of the user.
type stageOutcome struct {
	key        string
	citation   *domain.Citation
	candidates []zotero.Candidate
	method     string
}

type stageHandler struct {
	stage      domain.Stage
	applicable func(sc *stageState) bool
	run        func(ctx context.Context, sc *stageState) (*stageOutcome, error)
}

// handlers returns the cascade in priority order.
func (o *Orchestrator) handlers() []stageHandler {
	return []stageHandler{
		{
			stage:      domain.StageSpecializedAPI,
			applicable: func(sc *stageState) bool { return KnownProvider(sc.item.URL) != nil },
			run:        o.runSpecializedAPI,
		},
		{
			stage:      domain.StageIdentifier,
			applicable: func(sc *stageState) bool { return sc.cap.HasIdentifiers },
			run:        o.runIdentifier,
		},
		{
			stage:      domain.StageTranslator,
			applicable: func(sc *stageState) bool { return sc.cap.HasWebTranslators },
			run:        o.runTranslator,
		},
		{
			stage:      domain.StageContent,
			applicable: func(sc *stageState) bool { return true },
			run:        o.runContent,
		},
		{
			stage: domain.StageAI,
			applicable: func(sc *stageState) bool {
				return o.cfg.AI != nil && len(sc.content) > 0 && !sc.cap.IsPDF
			},
			run: o.runAI,
		},
	}
}

func (o *Orchestrator) runSpecializedAPI(ctx context.Context, sc *stageState) (*stageOutcome, error) {
	reg := KnownProvider(sc.item.URL)
	if reg == nil {
		return nil, errors.New("no specialized provider for url")
	}

	var res *zotero.ResolveResult
	var err error
	method := reg.Name

	if id := reg.Identifier(sc.item.URL); id != "" {
		sc.tried[id] = true
		res, err = o.cfg.Provider.ResolveByIdentifier(ctx, id)
		method = fmt.Sprintf("%s:%s", reg.Name, id)
	} else {
		res, err = o.cfg.Provider.ResolveByURL(ctx, sc.item.URL)
	}
	if err != nil {
		return nil, err
	}
	return outcomeFrom(res, method)
}

func (o *Orchestrator) runIdentifier(ctx context.Context, sc *stageState) (*stageOutcome, error) {
	ids := capability.Identifiers(sc.analysis, sc.enrichment)
	if len(ids) == 0 {
		return nil, errors.New("no identifiers available")
	}

	var lastErr error
	for _, id := range ids {
		sc.tried[id] = true
		res, err := o.cfg.Provider.ResolveByIdentifier(ctx, id)
		if err != nil {
			lastErr = err
			continue
		}
		return outcomeFrom(res, "identifier:"+id)
	}
	return nil, lastErr
}

func (o *Orchestrator) runTranslator(ctx context.Context, sc *stageState) (*stageOutcome, error) {
	res, err := o.cfg.Provider.ResolveByURL(ctx, sc.item.URL)
	if err != nil {
		return nil, err
	}
	method := "translator"
	if sc.analysis != nil && len(sc.analysis.Translators) > 0 {
		method = "translator:" + sc.analysis.Translators[0]
	}
	return outcomeFrom(res, method)
}

// runContent fetches and analyzes page content, then tries whatever the
// analysis turned up: fresh identifiers first, extracted metadata second.
func (o *Orchestrator) runContent(ctx context.Context, sc *stageState) (*stageOutcome, error) {
	if err := o.ensureContent(ctx, sc); err != nil {
		return nil, err
	}

	if sc.cap.IsPDF {
		return nil, fmt.Errorf("unsupported content type for extraction: %s", sc.entry.ContentType)
	}

	// Content analysis may surface identifiers earlier stages never saw.
	var lastErr error
	for _, id := range capability.Identifiers(sc.analysis, sc.enrichment) {
		if sc.tried[id] {
			continue
		}
		sc.tried[id] = true
		res, err := o.cfg.Provider.ResolveByIdentifier(ctx, id)
		if err != nil {
			lastErr = err
			continue
		}
		return outcomeFrom(res, "content:identifier:"+id)
	}

	extraction, err := o.extraction(sc)
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	if extraction.Title == "" {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errors.New("no title extracted from page content")
	}

	citation := extraction.Citation(sc.item.URL)
	key, err := o.cfg.Provider.CreateRecord(ctx, citation)
	if err != nil {
		return nil, err
	}
	citation.Key = key
	return &stageOutcome{key: key, citation: citation, method: "content:extraction"}, nil
}

func (o *Orchestrator) runAI(ctx context.Context, sc *stageState) (*stageOutcome, error) {
	extraction, err := o.extraction(sc)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraction.Markdown) == "" {
		return nil, errors.New("no readable text for ai extraction")
	}

	citation, err := o.cfg.AI.ExtractCitation(ctx, extraction.Markdown, sc.item.URL)
	if err != nil {
		return nil, err
	}
	if citation.URL() == "" {
		if citation.Fields == nil {
			citation.Fields = make(map[string]string)
		}
		citation.Fields["url"] = sc.item.URL
	}

	key, err := o.cfg.Provider.CreateRecord(ctx, citation)
	if err != nil {
		return nil, err
	}
	citation.Key = key
	return &stageOutcome{key: key, citation: citation, method: "ai"}, nil
}

// ensureContent makes sure page content is cached, analyzed, and loaded
// into the stage state, refreshing the capability snapshot afterwards.
func (o *Orchestrator) ensureContent(ctx context.Context, sc *stageState) error {
	content, entry, err := o.cfg.Cache.GetCachedContent(ctx, sc.item.ID)
	if err != nil {
		return err
	}
	if entry == nil {
		entry, err = o.cfg.Cache.FetchAndCache(ctx, sc.item.ID, sc.item.URL)
		if err != nil {
			return err
		}
		content, _, err = o.cfg.Cache.GetCachedContent(ctx, sc.item.ID)
		if err != nil {
			return err
		}
	}
	sc.content = content
	sc.entry = entry

	analysis := analyze.Analyze(sc.item.ID, sc.item.URL, content, entry.ContentType, entry.StatusCode)
	if err := o.cfg.Analysis.Upsert(ctx, analysis); err != nil {
		return err
	}
	sc.analysis = analysis
	sc.cap = capability.Compute(sc.item, sc.analysis, sc.enrichment, sc.entry, o.now())
	return nil
}

func (o *Orchestrator) extraction(sc *stageState) (*extract.Extraction, error) {
	if sc.extraction != nil {
		return sc.extraction, nil
	}
	ex, err := o.cfg.Extractor.Extract(sc.content, sc.item.URL)
	if err != nil {
		return nil, err
	}
	sc.extraction = ex
	return ex, nil
}

func outcomeFrom(res *zotero.ResolveResult, method string) (*stageOutcome, error) {
	if res == nil {
		return nil, errors.New("provider returned empty result")
	}
	if res.Ambiguous() {
		return &stageOutcome{candidates: res.Candidates, method: method}, nil
	}
	if res.Key == "" {
		return nil, errors.New("provider returned neither record nor candidates")
	}
	return &stageOutcome{key: res.Key, citation: res.Citation, method: method}, nil
}
