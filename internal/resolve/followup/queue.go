package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	redisclient "github.com/citelinker/resolver/internal/infra/redis"
	"github.com/citelinker/resolver/internal/metrics"
)

const jobTTL = 24 * time.Hour

// Job is one pending metadata-enrichment attempt for an incomplete
// citation.
type Job struct {
	ItemID      string    `json:"item_id"`
	RecordKey   string    `json:"record_key"`
	Attempts    int       `json:"attempts"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
}

// Queue is the follow-up job store. Jobs are retried lowest-attempt
// first.
type Queue interface {
	Enqueue(ctx context.Context, itemID, recordKey string) error
	Next(ctx context.Context) (*Job, error)
	IncrementRetry(ctx context.Context, itemID string) error
	MarkDone(ctx context.Context, itemID string) error
	Count(ctx context.Context) (int, error)
}

// RedisQueue implements Queue on a Redis sorted set scored by attempt
// count, with per-job JSON payloads.
type RedisQueue struct {
	rdb *goredis.Client
}

// NewRedisQueue creates a Redis-backed follow-up queue.
func NewRedisQueue(client *redisclient.Client) *RedisQueue {
	return &RedisQueue{rdb: client.Raw()}
}

func queueKey() string {
	return "followup:queue"
}

func jobKey(itemID string) string {
	return fmt.Sprintf("followup:job:%s", itemID)
}

// Enqueue adds a job for an item. Re-enqueueing an already queued item
// resets its payload but keeps its queue position.
func (q *RedisQueue) Enqueue(ctx context.Context, itemID, recordKey string) error {
	job := &Job{
		ItemID:     itemID,
		RecordKey:  recordKey,
		EnqueuedAt: time.Now(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal followup job: %w", err)
	}

	if err := q.rdb.Set(ctx, jobKey(itemID), data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set followup job: %w", err)
	}
	if err := q.rdb.ZAddNX(ctx, queueKey(), goredis.Z{
		Score:  0,
		Member: itemID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to followup queue: %w", err)
	}

	q.observeDepth(ctx)
	return nil
}

// Next returns the job with the fewest attempts, nil when the queue is
// empty.
func (q *RedisQueue) Next(ctx context.Context) (*Job, error) {
	ids, err := q.rdb.ZRange(ctx, queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	id := ids[0]

	data, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == goredis.Nil {
		// Payload expired but the id is still queued; drop it.
		q.rdb.ZRem(ctx, queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get followup job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal followup job: %w", err)
	}
	return &job, nil
}

// IncrementRetry bumps a job's attempt count, pushing it behind jobs
// that have been tried less.
func (q *RedisQueue) IncrementRetry(ctx context.Context, itemID string) error {
	data, err := q.rdb.Get(ctx, jobKey(itemID)).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get followup job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("failed to unmarshal followup job: %w", err)
	}
	job.Attempts++
	job.LastAttempt = time.Now()

	newData, err := json.Marshal(&job)
	if err != nil {
		return fmt.Errorf("failed to marshal followup job: %w", err)
	}
	if err := q.rdb.Set(ctx, jobKey(itemID), newData, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set followup job: %w", err)
	}
	if err := q.rdb.ZAdd(ctx, queueKey(), goredis.Z{
		Score:  float64(job.Attempts),
		Member: itemID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to update followup queue: %w", err)
	}
	return nil
}

// MarkDone removes a job from the queue.
func (q *RedisQueue) MarkDone(ctx context.Context, itemID string) error {
	if err := q.rdb.ZRem(ctx, queueKey(), itemID).Err(); err != nil {
		return fmt.Errorf("failed to remove from followup queue: %w", err)
	}
	if err := q.rdb.Del(ctx, jobKey(itemID)).Err(); err != nil {
		return fmt.Errorf("failed to delete followup job: %w", err)
	}
	q.observeDepth(ctx)
	return nil
}

// Count returns the number of queued jobs.
func (q *RedisQueue) Count(ctx context.Context) (int, error) {
	n, err := q.rdb.ZCard(ctx, queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) observeDepth(ctx context.Context) {
	if n, err := q.Count(ctx); err == nil {
		metrics.FollowupQueueDepth.Set(float64(n))
	}
}

// MemoryQueue implements Queue in process memory, for single-node
// deployments without Redis and for tests.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryQueue creates an in-memory follow-up queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]*Job)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, itemID, recordKey string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if existing, ok := q.jobs[itemID]; ok {
		existing.RecordKey = recordKey
		return nil
	}
	q.jobs[itemID] = &Job{
		ItemID:     itemID,
		RecordKey:  recordKey,
		EnqueuedAt: time.Now(),
	}
	metrics.FollowupQueueDepth.Set(float64(len(q.jobs)))
	return nil
}

func (q *MemoryQueue) Next(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}

	ordered := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		ordered = append(ordered, job)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Attempts != ordered[j].Attempts {
			return ordered[i].Attempts < ordered[j].Attempts
		}
		return ordered[i].EnqueuedAt.Before(ordered[j].EnqueuedAt)
	})
	cp := *ordered[0]
	return &cp, nil
}

func (q *MemoryQueue) IncrementRetry(ctx context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[itemID]
	if !ok {
		return fmt.Errorf("no followup job for item %s", itemID)
	}
	job.Attempts++
	job.LastAttempt = time.Now()
	return nil
}

func (q *MemoryQueue) MarkDone(ctx context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, itemID)
	metrics.FollowupQueueDepth.Set(float64(len(q.jobs)))
	return nil
}

func (q *MemoryQueue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs), nil
}
