// Package mock provides a hand-rolled, in-memory stand-in for queue.Queue
// so stage and orchestrator tests can assert on enqueue calls without a
// Redis instance.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"sifter/internal/queue"
)

// EnqueuedJob records one call to Enqueue.
type EnqueuedJob struct {
	Queue       queue.Name
	ID          string
	DedupKey    string
	Payload     json.RawMessage
	MaxAttempts int
}

// MockQueue is a test double implementing queue.Enqueuer.
type MockQueue struct {
	mu      sync.Mutex
	jobs    []EnqueuedJob
	dedup   map[string]bool
	failNxt error
}

func New() *MockQueue {
	return &MockQueue{dedup: make(map[string]bool)}
}

func (m *MockQueue) Enqueue(ctx context.Context, name queue.Name, id, dedupKey string, payload interface{}, maxAttempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNxt != nil {
		err := m.failNxt
		m.failNxt = nil
		return err
	}
	if dedupKey != "" {
		if m.dedup[dedupKey] {
			return queue.ErrDuplicate
		}
		m.dedup[dedupKey] = true
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.jobs = append(m.jobs, EnqueuedJob{Queue: name, ID: id, DedupKey: dedupKey, Payload: body, MaxAttempts: maxAttempts})
	return nil
}

// FailNext makes the next Enqueue call return err.
func (m *MockQueue) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNxt = err
}

// Jobs returns a copy of every job enqueued so far.
func (m *MockQueue) Jobs() []EnqueuedJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EnqueuedJob, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// JobsFor filters Jobs() to a single named queue.
func (m *MockQueue) JobsFor(name queue.Name) []EnqueuedJob {
	var out []EnqueuedJob
	for _, j := range m.Jobs() {
		if j.Queue == name {
			out = append(out, j)
		}
	}
	return out
}

var _ queue.Enqueuer = (*MockQueue)(nil)
