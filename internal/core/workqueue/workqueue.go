// Package workqueue defines the durable task queue that records which events
// need (re)indexing.
//
// A task is claimed by Poll and stays invisible to other pollers until it is
// acknowledged, released, or its visibility timeout lapses. Duplicate tasks for
// the same UUID are tolerated; consumers deduplicate.
package workqueue

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports a transport failure talking to the queue backend.
// Callers may retry.
var ErrUnavailable = errors.New("work queue unavailable")

// Task references an event that must be (re)indexed.
type Task struct {
	// UUID of the event.
	UUID string
	// Timestamp is when the task was enqueued, in epoch milliseconds.
	Timestamp int64

	handle any
}

// NewTask creates an unclaimed task.
func NewTask(uuid string, timestamp int64) Task {
	return Task{UUID: uuid, Timestamp: timestamp}
}

// WithHandle returns a copy of t carrying a backend completion token.
// Only queue implementations call this.
func (t Task) WithHandle(h any) Task {
	t.handle = h
	return t
}

// Handle returns the backend completion token, or nil for unclaimed tasks.
func (t Task) Handle() any {
	return t.handle
}

// WorkQueue is a durable, claim-based task queue.
type WorkQueue interface {
	// Enqueue appends tasks to the tail of the queue.
	Enqueue(ctx context.Context, tasks []Task) error

	// Poll claims up to max tasks, waiting at most timeout for the first.
	// An empty result is not an error. Context cancellation returns an
	// error matching model.ErrCanceled.
	Poll(ctx context.Context, max int, timeout time.Duration) ([]Task, error)

	// Release returns claimed tasks to the queue without consuming them.
	Release(ctx context.Context, tasks []Task) error

	// Acknowledge permanently removes claimed tasks. Acknowledging a task
	// that is unknown or already acknowledged is a no-op.
	Acknowledge(ctx context.Context, tasks []Task) error

	// Size reports the number of tasks not yet acknowledged. Best effort.
	Size(ctx context.Context) (int64, error)
}
