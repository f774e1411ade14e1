// Package memory implements workqueue.WorkQueue in process memory.
// It backs tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eventidx/eventidx/internal/core/workqueue"
	"github.com/eventidx/eventidx/pkg/model"
)

// DefaultVisibilityTimeout is how long a polled task stays claimed.
const DefaultVisibilityTimeout = 30 * time.Second

type entry struct {
	seq  uint64
	task workqueue.Task
}

type claim struct {
	entry    entry
	deadline time.Time
}

// Queue is an in-memory, FIFO work queue with claim semantics.
type Queue struct {
	mu         sync.Mutex
	seq        uint64
	pending    []entry
	claimed    map[string]claim
	notify     chan struct{}
	visibility time.Duration
	now        func() time.Time
}

var _ workqueue.WorkQueue = (*Queue)(nil)

// Option configures a Queue.
type Option func(*Queue)

// WithVisibilityTimeout sets how long polled tasks stay claimed.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(q *Queue) { q.visibility = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		claimed:    make(map[string]claim),
		notify:     make(chan struct{}),
		visibility: DefaultVisibilityTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends tasks in order.
func (q *Queue) Enqueue(ctx context.Context, tasks []workqueue.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tasks {
		q.seq++
		q.pending = append(q.pending, entry{seq: q.seq, task: workqueue.NewTask(t.UUID, t.Timestamp)})
	}
	q.signalLocked()
	return nil
}

// Poll claims up to max tasks, waiting up to timeout for at least one.
func (q *Queue) Poll(ctx context.Context, max int, timeout time.Duration) ([]workqueue.Task, error) {
	if max <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		tasks := q.claimLocked(max)
		wait := q.notify
		q.mu.Unlock()

		if len(tasks) > 0 {
			return tasks, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", model.ErrCanceled, ctx.Err())
		case <-timer.C:
			q.mu.Lock()
			tasks = q.claimLocked(max)
			q.mu.Unlock()
			return tasks, nil
		case <-wait:
		}
	}
}

// Release makes claimed tasks pollable again, ahead of newer tasks.
func (q *Queue) Release(ctx context.Context, tasks []workqueue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	released := false
	for _, t := range tasks {
		id, ok := t.Handle().(string)
		if !ok {
			continue
		}
		c, ok := q.claimed[id]
		if !ok {
			continue
		}
		delete(q.claimed, id)
		q.pending = append(q.pending, c.entry)
		released = true
	}
	if released {
		sortEntries(q.pending)
		q.signalLocked()
	}
	return nil
}

// Acknowledge removes claimed tasks. Unknown handles are ignored.
func (q *Queue) Acknowledge(ctx context.Context, tasks []workqueue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tasks {
		if id, ok := t.Handle().(string); ok {
			delete(q.claimed, id)
		}
	}
	return nil
}

// Size returns pending plus claimed task counts.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending) + len(q.claimed)), nil
}

func (q *Queue) claimLocked(max int) []workqueue.Task {
	q.reclaimExpiredLocked()
	if len(q.pending) == 0 {
		return nil
	}
	n := min(max, len(q.pending))
	deadline := q.now().Add(q.visibility)
	tasks := make([]workqueue.Task, 0, n)
	for _, e := range q.pending[:n] {
		id := uuid.NewString()
		q.claimed[id] = claim{entry: e, deadline: deadline}
		tasks = append(tasks, e.task.WithHandle(id))
	}
	q.pending = slices.Delete(q.pending, 0, n)
	return tasks
}

// reclaimExpiredLocked returns claims past their deadline to pending,
// preserving original enqueue order.
func (q *Queue) reclaimExpiredLocked() {
	now := q.now()
	expired := false
	for id, c := range q.claimed {
		if !now.Before(c.deadline) {
			delete(q.claimed, id)
			q.pending = append(q.pending, c.entry)
			expired = true
		}
	}
	if expired {
		sortEntries(q.pending)
	}
}

func (q *Queue) signalLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func sortEntries(entries []entry) {
	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}
