package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citelinker/resolver/internal/core/domain"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/metrics"
	"github.com/citelinker/resolver/internal/resolve/orchestrator"
)

var (
	// ErrSessionNotFound is returned for unknown session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal is returned when pausing or resuming a finished session
	ErrSessionTerminal = errors.New("session already finished")
)

const (
	defaultConcurrency = 5
	pausePollInterval  = 250 * time.Millisecond
	durationWindow     = 10
)

// Processor runs the cascade for a single item. Satisfied by the
// orchestrator.
type Processor interface {
	ProcessItem(ctx context.Context, id string) orchestrator.ProcessingResult
}

// Options controls one batch run.
type Options struct {
	Concurrency       int
	RespectUserIntent bool
	StopOnError       bool
}

// Runner fans the processor out over item lists with bounded concurrency.
// Sessions live in process memory only.
type Runner struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	processor Processor
	items     storage.ItemRepository
	retention time.Duration
	now       func() time.Time
}

type session struct {
	mu         sync.Mutex
	state      *domain.BatchSession
	events     chan Event
	durations  []time.Duration
	terminalAt time.Time
}

// NewRunner creates a batch runner. Terminal sessions are kept for
// retention before SweepSessions removes them.
func NewRunner(processor Processor, items storage.ItemRepository, retention time.Duration) *Runner {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Runner{
		sessions:  make(map[string]*session),
		processor: processor,
		items:     items,
		retention: retention,
		now:       time.Now,
	}
}

// RunBatch starts a batch over the given items and returns immediately
// with the new session's id and its event stream. The channel is closed
// once the session reaches a terminal state.
func (r *Runner) RunBatch(ctx context.Context, itemIDs []string, opts Options) (string, <-chan Event) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	ids := itemIDs
	if opts.RespectUserIntent {
		ids = r.filterByIntent(ctx, itemIDs)
	}

	sess := &session{
		state: &domain.BatchSession{
			ID:        uuid.New().String(),
			ItemIDs:   ids,
			Status:    domain.SessionRunning,
			StartedAt: r.now(),
		},
		events: make(chan Event, 2*len(ids)+16),
	}

	r.mu.Lock()
	r.sessions[sess.state.ID] = sess
	r.mu.Unlock()
	metrics.BatchSessionsActive.Inc()

	go r.run(ctx, sess, opts)
	return sess.state.ID, sess.events
}

// run drives the worker pool and stamps the terminal state when every
// worker has returned.
func (r *Runner) run(ctx context.Context, sess *session, opts Options) {
	total := len(sess.state.ItemIDs)
	sess.emit(Event{Type: EventProgress, Phase: "starting", Total: total})

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if !r.awaitRunnable(ctx, sess) {
					continue
				}
				r.processOne(ctx, sess, id, opts)
			}
		}()
	}

	for _, id := range sess.state.ItemIDs {
		work <- id
	}
	close(work)
	wg.Wait()

	sess.mu.Lock()
	if !sess.state.Status.Terminal() {
		if ctx.Err() != nil {
			sess.state.Status = domain.SessionCancelled
		} else {
			sess.state.Status = domain.SessionCompleted
		}
	}
	sess.state.CompletedAt = r.now()
	sess.terminalAt = r.now()
	completed, failed := len(sess.state.Completed), len(sess.state.Failed)
	status := sess.state.Status
	sess.mu.Unlock()

	metrics.BatchSessionsActive.Dec()
	sess.emit(Event{
		Type:  EventComplete,
		Phase: string(status),
		Total: total,
		Stats: &Stats{Completed: completed, Failed: failed},
	})
	close(sess.events)
	slog.Info("Batch session finished",
		"session", sess.state.ID, "status", status, "completed", completed, "failed", failed)
}

// awaitRunnable blocks while the session is paused and reports whether
// the worker should still process its item.
func (r *Runner) awaitRunnable(ctx context.Context, sess *session) bool {
	for {
		sess.mu.Lock()
		status := sess.state.Status
		sess.mu.Unlock()

		switch status {
		case domain.SessionRunning:
			return true
		case domain.SessionPaused:
			select {
			case <-ctx.Done():
				return false
			case <-time.After(pausePollInterval):
			}
		default:
			return false
		}
	}
}

// processOne runs one item through the processor and folds the outcome
// into the session. Panics escaping the processor become failed items.
func (r *Runner) processOne(ctx context.Context, sess *session, id string, opts Options) {
	start := r.now()
	var res orchestrator.ProcessingResult
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				res = orchestrator.ProcessingResult{
					ItemID: id,
					Error:  fmt.Sprintf("panic while processing item: %v", rec),
				}
			}
		}()
		res = r.processor.ProcessItem(ctx, id)
	}()
	duration := r.now().Sub(start)

	sess.mu.Lock()
	sess.state.Results = append(sess.state.Results, domain.ItemResult{
		ItemID:   id,
		Success:  res.Success,
		Status:   res.Status,
		Error:    res.Error,
		Duration: duration,
	})
	if res.Success {
		sess.state.Completed = append(sess.state.Completed, id)
	} else {
		sess.state.Failed = append(sess.state.Failed, id)
		if opts.StopOnError && !sess.state.Status.Terminal() {
			sess.state.Status = domain.SessionCancelled
		}
	}
	sess.state.CurrentIndex++

	sess.durations = append(sess.durations, duration)
	if len(sess.durations) > durationWindow {
		sess.durations = sess.durations[1:]
	}
	remaining := len(sess.state.ItemIDs) - sess.state.CurrentIndex
	sess.state.EstimatedCompletion = r.now().Add(
		time.Duration(remaining) * movingAverage(sess.durations))

	progress := sess.state.CurrentIndex
	total := len(sess.state.ItemIDs)
	completed, failed := len(sess.state.Completed), len(sess.state.Failed)
	eta := sess.state.EstimatedCompletion
	sess.mu.Unlock()

	eventType := EventURLProcessed
	if !res.Success {
		eventType = EventError
	}
	sess.emit(Event{
		Type:     eventType,
		Phase:    "processing",
		Progress: progress,
		Total:    total,
		ItemID:   id,
		Result:   &res,
		Stats:    &Stats{Completed: completed, Failed: failed, EstimatedCompletion: eta},
	})
}

// filterByIntent drops items whose intent forbids automated processing.
// Unknown ids pass through and surface as per-item failures.
func (r *Runner) filterByIntent(ctx context.Context, itemIDs []string) []string {
	filtered := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := r.items.GetByID(ctx, id)
		if err == nil && !item.Intent.AllowsAutomation() {
			continue
		}
		filtered = append(filtered, id)
	}
	return filtered
}

// GetSession returns a snapshot of a session.
func (r *Runner) GetSession(id string) (*domain.BatchSession, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	cp := *sess.state
	cp.ItemIDs = append([]string(nil), sess.state.ItemIDs...)
	cp.Completed = append([]string(nil), sess.state.Completed...)
	cp.Failed = append([]string(nil), sess.state.Failed...)
	cp.Results = append([]domain.ItemResult(nil), sess.state.Results...)
	return &cp, nil
}

// PauseSession pauses a running session; workers observe the change on
// their next poll.
func (r *Runner) PauseSession(id string) error {
	return r.setStatus(id, domain.SessionRunning, domain.SessionPaused)
}

// ResumeSession resumes a paused session.
func (r *Runner) ResumeSession(id string) error {
	return r.setStatus(id, domain.SessionPaused, domain.SessionRunning)
}

// CancelSession cancels a session. In-flight items finish; queued items
// are skipped.
func (r *Runner) CancelSession(id string) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Status.Terminal() {
		return ErrSessionTerminal
	}
	sess.state.Status = domain.SessionCancelled
	return nil
}

func (r *Runner) setStatus(id string, from, to domain.SessionStatus) error {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.Status.Terminal() {
		return ErrSessionTerminal
	}
	if sess.state.Status != from {
		return fmt.Errorf("session is %s, not %s", sess.state.Status, from)
	}
	sess.state.Status = to
	return nil
}

// SweepSessions removes sessions that have been terminal for longer than
// the retention window and returns how many were removed.
func (r *Runner) SweepSessions() int {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		sess.mu.Lock()
		expired := sess.state.Status.Terminal() &&
			!sess.terminalAt.IsZero() && sess.terminalAt.Before(cutoff)
		sess.mu.Unlock()
		if expired {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// emit delivers an event without ever blocking a worker; slow or absent
// consumers lose events rather than stalling the batch.
func (s *session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

func movingAverage(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}
