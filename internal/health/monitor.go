package health

import (
	"context"
	"sync"
	"time"

	"github.com/citelinker/resolver/internal/infra/storage"
)

// Pinger checks one dependency's reachability.
type Pinger interface {
	Health(ctx context.Context) error
}

// BacklogCounter reports the follow-up queue depth.
type BacklogCounter interface {
	Count(ctx context.Context) (int, error)
}

// Monitor aggregates health status from the system's dependencies.
type Monitor struct {
	db         Pinger
	queueStore Pinger
	provider   Pinger
	items      storage.ItemRepository
	backlog    BacklogCounter
	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a health monitor. db, queueStore and backlog may be
// nil when the deployment runs without them.
func NewMonitor(
	db Pinger,
	queueStore Pinger,
	provider Pinger,
	items storage.ItemRepository,
	backlog BacklogCounter,
) *Monitor {
	return &Monitor{
		db:         db,
		queueStore: queueStore,
		provider:   provider,
		items:      items,
		backlog:    backlog,
	}
}

// CheckHealth performs a health check of every dependency.
func (m *Monitor) CheckHealth(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid spamming dependencies
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		ItemCounts:   make(map[string]int),
	}

	// The database is load-bearing; losing it is critical. The provider
	// and the queue store only degrade resolution.
	m.check(ctx, report, "database", m.db, StatusCritical)
	m.check(ctx, report, "provider", m.provider, StatusDegraded)
	m.check(ctx, report, "queue_store", m.queueStore, StatusDegraded)

	if counts, err := m.items.CountByStatus(ctx); err == nil {
		for status, n := range counts {
			report.ItemCounts[string(status)] = n
		}
	}
	if m.backlog != nil {
		if n, err := m.backlog.Count(ctx); err == nil {
			report.FollowupBacklog = n
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) check(ctx context.Context, report *Report, name string, p Pinger, onFail SystemStatus) {
	if p == nil {
		return
	}

	component := ComponentHealth{Name: name, Status: StatusHealthy}
	if err := p.Health(ctx); err != nil {
		component.Status = onFail
		component.Error = err.Error()
		if onFail == StatusCritical || report.SystemStatus == StatusCritical {
			report.SystemStatus = StatusCritical
		} else {
			report.SystemStatus = StatusDegraded
		}
	}
	report.Components[name] = component
}
