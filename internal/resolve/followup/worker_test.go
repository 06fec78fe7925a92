package followup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/core/state"
	"github.com/citelinker/resolver/internal/infra/storage/memory"
	"github.com/citelinker/resolver/internal/resolve/extract"
)

type fakeProvider struct {
	records  map[string]*domain.Citation
	updates  int
	fetchErr error
}

func (p *fakeProvider) FetchRecord(ctx context.Context, key string) (*domain.Citation, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	c, ok := p.records[key]
	if !ok {
		return nil, fmt.Errorf("record %s not found", key)
	}
	cp := *c
	return &cp, nil
}

func (p *fakeProvider) UpdateRecord(ctx context.Context, key string, c *domain.Citation) error {
	p.records[key] = c
	p.updates++
	return nil
}

type fakeCache struct {
	content []byte
}

func (c *fakeCache) GetCachedContent(ctx context.Context, itemID string) ([]byte, *domain.CacheEntry, error) {
	if c.content == nil {
		return nil, nil, nil
	}
	return c.content, &domain.CacheEntry{ContentType: "text/html"}, nil
}

type fakeAI struct {
	citation *domain.Citation
	err      error
}

func (a *fakeAI) ExtractCitation(ctx context.Context, markdown, pageURL string) (*domain.Citation, error) {
	return a.citation, a.err
}

func articleHTML(title, author string) []byte {
	body := ""
	for i := 0; i < 40; i++ {
		body += "Content-addressed storage deduplicates identical payloads. "
	}
	return []byte(fmt.Sprintf(
		`<html><head><title>%s</title><meta name="author" content="%s"></head>
<body><article><h1>%s</h1><p>%s</p></article></body></html>`,
		title, author, title, body))
}

func setup(t *testing.T) (*Worker, *memory.ItemRepo, *fakeProvider, *MemoryQueue, *fakeAI) {
	t.Helper()
	store := memory.NewMemoryStorage()
	items := memory.NewItemRepo(store)
	provider := &fakeProvider{records: make(map[string]*domain.Citation)}
	queue := NewMemoryQueue()
	ai := &fakeAI{}
	cache := &fakeCache{content: articleHTML("Distributed Snapshots", "Leslie Chandy")}

	worker := NewWorker(queue, items, state.NewMachine(items), provider, cache,
		extract.New(), ai, time.Minute)
	return worker, items, provider, queue, ai
}

func addIncompleteItem(t *testing.T, items *memory.ItemRepo, id, key string) {
	t.Helper()
	ctx := context.Background()
	err := items.Create(ctx, &domain.Item{
		ID:     id,
		URL:    "https://example.com/" + id,
		Status: domain.StatusNotStarted,
		Intent: domain.IntentAuto,
	})
	if err != nil {
		t.Fatal(err)
	}
	completeness := domain.CompletenessIncomplete
	err = items.UpdateStatusIf(ctx, id, domain.StatusNotStarted, domain.StatusStoredIncomplete,
		&domain.ItemPatch{RecordKey: &key, Completeness: &completeness})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWorkerPromotesCompletedCitation(t *testing.T) {
	worker, items, provider, queue, ai := setup(t)
	ctx := context.Background()

	addIncompleteItem(t, items, "item-1", "KEY1")
	provider.records["KEY1"] = &domain.Citation{Key: "KEY1", Title: "Distributed Snapshots"}
	ai.citation = &domain.Citation{Creators: []string{"Chandy, K. Mani"}, Date: "1985-02-01"}
	if err := queue.Enqueue(ctx, "item-1", "KEY1"); err != nil {
		t.Fatal(err)
	}

	worker.drainOnce(ctx)

	item, _ := items.GetByID(ctx, "item-1")
	if item.Status != domain.StatusStored {
		t.Errorf("status = %s, want stored", item.Status)
	}
	if item.Completeness != domain.CompletenessComplete {
		t.Errorf("completeness = %s, want complete", item.Completeness)
	}
	if provider.updates != 1 {
		t.Errorf("updates = %d, want 1", provider.updates)
	}
	if n, _ := queue.Count(ctx); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}

	updated := provider.records["KEY1"]
	if len(updated.Creators) == 0 {
		t.Error("creators not merged")
	}
	if updated.Date != "1985-02-01" {
		t.Errorf("date = %q, want AI-supplied date", updated.Date)
	}
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	worker, items, provider, queue, ai := setup(t)
	ctx := context.Background()

	addIncompleteItem(t, items, "item-1", "KEY1")
	// record stays incomplete: no date from anywhere
	provider.records["KEY1"] = &domain.Citation{Key: "KEY1", Title: "Distributed Snapshots"}
	ai.err = fmt.Errorf("model unavailable")
	if err := queue.Enqueue(ctx, "item-1", "KEY1"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < maxAttempts; i++ {
		job, err := queue.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil {
			t.Fatalf("queue empty after %d attempts", i)
		}
		worker.processJob(ctx, job)
	}

	if n, _ := queue.Count(ctx); n != 0 {
		t.Errorf("queue count = %d, want 0 after giving up", n)
	}
	item, _ := items.GetByID(ctx, "item-1")
	if item.Status != domain.StatusStoredIncomplete {
		t.Errorf("status = %s, want stored_incomplete", item.Status)
	}
}

func TestWorkerSkipsMovedOnItems(t *testing.T) {
	worker, items, provider, queue, _ := setup(t)
	ctx := context.Background()

	addIncompleteItem(t, items, "item-1", "KEY1")
	// the user reset the item after the job was queued
	if err := items.Reset(ctx, "item-1"); err != nil {
		t.Fatal(err)
	}
	provider.records["KEY1"] = &domain.Citation{Key: "KEY1", Title: "T"}
	if err := queue.Enqueue(ctx, "item-1", "KEY1"); err != nil {
		t.Fatal(err)
	}

	worker.drainOnce(ctx)

	if n, _ := queue.Count(ctx); n != 0 {
		t.Errorf("queue count = %d, want 0", n)
	}
	if provider.updates != 0 {
		t.Errorf("updates = %d, want 0", provider.updates)
	}
}

func TestMemoryQueueOrdering(t *testing.T) {
	queue := NewMemoryQueue()
	ctx := context.Background()

	_ = queue.Enqueue(ctx, "a", "K1")
	time.Sleep(time.Millisecond)
	_ = queue.Enqueue(ctx, "b", "K2")
	_ = queue.IncrementRetry(ctx, "a")

	job, err := queue.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job.ItemID != "b" {
		t.Errorf("next = %s, want b (fewest attempts first)", job.ItemID)
	}

	_ = queue.MarkDone(ctx, "b")
	job, _ = queue.Next(ctx)
	if job == nil || job.ItemID != "a" {
		t.Errorf("next = %v, want a", job)
	}
}
