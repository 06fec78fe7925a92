package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
)

// ErrInvalidTransition is returned when the persisted status no longer
// matches the status the caller observed. It turns a race between two
// orchestrations of the same item into an explicit failure.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal reports whether no further automatic processing applies.
func IsTerminal(s domain.ItemStatus) bool {
	switch s {
	case domain.StatusStored, domain.StatusStoredIncomplete, domain.StatusStoredCustom,
		domain.StatusExhausted, domain.StatusIgnored, domain.StatusArchived:
		return true
	}
	return false
}

// IsActive reports whether a resolution stage is currently running.
func IsActive(s domain.ItemStatus) bool {
	return strings.HasPrefix(string(s), "processing_")
}

// NeedsUserAction reports whether the item is waiting on an operator.
func NeedsUserAction(s domain.ItemStatus) bool {
	switch s {
	case domain.StatusAwaitingSelection, domain.StatusAwaitingReview, domain.StatusExhausted:
		return true
	}
	return false
}

// Machine applies guarded status transitions. The guard is the storage
// layer's conditional update, so the check and the write are one atomic
// statement rather than a read followed by a write.
type Machine struct {
	items storage.ItemRepository
}

// NewMachine creates a state machine over the item repository.
func NewMachine(items storage.ItemRepository) *Machine {
	return &Machine{items: items}
}

// Transition moves the item from expectedFrom to to, merging the patch
// into the item record. Fails with ErrInvalidTransition if the persisted
// status differs from expectedFrom.
func (m *Machine) Transition(
	ctx context.Context,
	id string,
	expectedFrom, to domain.ItemStatus,
	patch *domain.ItemPatch,
) error {
	err := m.items.UpdateStatusIf(ctx, id, expectedFrom, to, patch)
	if errors.Is(err, storage.ErrStaleState) {
		return fmt.Errorf("%w: item %s is no longer %s", ErrInvalidTransition, id, expectedFrom)
	}
	if err != nil {
		return fmt.Errorf("transition %s -> %s: %w", expectedFrom, to, err)
	}
	return nil
}
