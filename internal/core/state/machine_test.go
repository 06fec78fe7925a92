package state

import (
	"context"
	"errors"
	"testing"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/infra/storage/memory"
)

func newTestMachine(t *testing.T) (*Machine, *memory.ItemRepo) {
	t.Helper()
	store := memory.NewMemoryStorage()
	items := memory.NewItemRepo(store)
	return NewMachine(items), items
}

func TestTransitionGuard(t *testing.T) {
	ctx := context.Background()
	m, items := newTestMachine(t)

	item := &domain.Item{ID: "it-1", URL: "https://example.org/paper", Status: domain.StatusNotStarted, Intent: domain.IntentAuto}
	if err := items.Create(ctx, item); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := m.Transition(ctx, "it-1", domain.StatusNotStarted, domain.StatusProcessingIdentifier, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	// Second caller still believes the item is not_started.
	err = m.Transition(ctx, "it-1", domain.StatusNotStarted, domain.StatusProcessingTranslator, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("racing transition error = %v, want ErrInvalidTransition", err)
	}

	got, _ := items.GetByID(ctx, "it-1")
	if got.Status != domain.StatusProcessingIdentifier {
		t.Errorf("status = %s, want processing_identifier (race must not corrupt)", got.Status)
	}
}

func TestTransitionAppliesPatch(t *testing.T) {
	ctx := context.Background()
	m, items := newTestMachine(t)

	if err := items.Create(ctx, &domain.Item{ID: "it-2", URL: "u", Status: domain.StatusProcessingIdentifier}); err != nil {
		t.Fatalf("create: %v", err)
	}

	key := "ABCD1234"
	complete := domain.CompletenessComplete
	err := m.Transition(ctx, "it-2", domain.StatusProcessingIdentifier, domain.StatusStored, &domain.ItemPatch{
		IncrementAttempts: true,
		RecordKey:         &key,
		Completeness:      &complete,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	got, _ := items.GetByID(ctx, "it-2")
	if got.Status != domain.StatusStored {
		t.Errorf("status = %s", got.Status)
	}
	if got.ProcessingAttempts != 1 {
		t.Errorf("attempts = %d, want 1", got.ProcessingAttempts)
	}
	if got.RecordKey != key {
		t.Errorf("record key = %q", got.RecordKey)
	}
	if got.Completeness != domain.CompletenessComplete {
		t.Errorf("completeness = %s", got.Completeness)
	}
}

func TestTransitionMissingItem(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine(t)

	err := m.Transition(ctx, "ghost", domain.StatusNotStarted, domain.StatusProcessingIdentifier, nil)
	if !errors.Is(err, storage.ErrItemNotFound) {
		t.Fatalf("error = %v, want ErrItemNotFound", err)
	}
}

func TestClassificationHelpers(t *testing.T) {
	terminal := []domain.ItemStatus{
		domain.StatusStored, domain.StatusStoredIncomplete, domain.StatusStoredCustom,
		domain.StatusExhausted, domain.StatusIgnored, domain.StatusArchived,
	}
	for _, s := range terminal {
		if !IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = false", s)
		}
	}

	active := []domain.ItemStatus{
		domain.StatusProcessingAPI, domain.StatusProcessingIdentifier,
		domain.StatusProcessingTranslator, domain.StatusProcessingContent, domain.StatusProcessingAI,
	}
	for _, s := range active {
		if !IsActive(s) {
			t.Errorf("IsActive(%s) = false", s)
		}
		if IsTerminal(s) {
			t.Errorf("IsTerminal(%s) = true", s)
		}
	}

	for _, s := range []domain.ItemStatus{domain.StatusAwaitingSelection, domain.StatusAwaitingReview, domain.StatusExhausted} {
		if !NeedsUserAction(s) {
			t.Errorf("NeedsUserAction(%s) = false", s)
		}
	}
	if NeedsUserAction(domain.StatusStored) {
		t.Error("NeedsUserAction(stored) = true")
	}
}
