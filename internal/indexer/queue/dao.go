// Package queue drives one indexing cycle over a work queue: poll, resolve
// the polled UUIDs against the event store, hand found and missing events to
// a Handler, then acknowledge.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventidx/eventidx/internal/core/workqueue"
	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// DefaultPollTimeout bounds how long a cycle waits for the first task.
const DefaultPollTimeout = 250 * time.Millisecond

// NoCeiling disables the timestamp ceiling in RunCycle.
const NoCeiling int64 = -1

// Handler receives the events of one cycle.
//
// Prepare is called once with all found events (skipped when none were
// found), Handle once per found event, HandleDeleted once per UUID no longer
// in the store, and Complete once at the end. When any of them fails, Abort
// is called instead of the remaining callbacks. None is called when the
// cycle polled nothing.
type Handler interface {
	Prepare(ctx context.Context, events []*model.EventSummary) error
	Handle(ctx context.Context, event *model.EventSummary) error
	HandleDeleted(ctx context.Context, uuid string) error
	Complete(ctx context.Context) error
	Abort(ctx context.Context)
}

// CycleResult describes a completed cycle.
type CycleResult struct {
	// Acknowledged are the tasks consumed by this cycle.
	Acknowledged []workqueue.Task
	// QueueLength is the queue size observed after acknowledging, or -1
	// when it could not be read.
	QueueLength int64
	// Limit is the batch size the cycle ran with.
	Limit int
}

// DAO runs indexing cycles for one event table.
type DAO struct {
	queue       workqueue.WorkQueue
	store       storage.EventStore
	pollTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a DAO.
type Option func(*DAO)

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(d2 *DAO) { d2.pollTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DAO) { d.logger = logger }
}

// NewDAO creates a DAO for the table served by store.
func NewDAO(queue workqueue.WorkQueue, store storage.EventStore, opts ...Option) *DAO {
	d := &DAO{
		queue:       queue,
		store:       store,
		pollTimeout: DefaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "index-queue", "table", store.Table())
	return d
}

// Table returns the event table this DAO indexes.
func (d *DAO) Table() string {
	return d.store.Table()
}

// QueueName returns the work queue name for a table.
func QueueName(table string) string {
	return table + "_index_queue"
}

// RunCycle runs one indexing cycle of at most limit tasks.
//
// When maxTimestamp is not negative, tasks are kept up to the first one
// enqueued after maxTimestamp; that task and the rest of the batch are
// released. The queue is assumed to deliver tasks in non-decreasing
// timestamp order, so a late task may hide earlier ones behind it until
// the next cycle.
//
// A handler error aborts the cycle without acknowledging; the handler's
// Abort is called and the tasks are redelivered once their claim expires.
func (d *DAO) RunCycle(ctx context.Context, h Handler, limit int, maxTimestamp int64) (CycleResult, error) {
	result := CycleResult{Limit: limit, QueueLength: -1}

	tasks, err := d.queue.Poll(ctx, limit, d.pollTimeout)
	if err != nil {
		return result, fmt.Errorf("poll %s: %w", QueueName(d.Table()), err)
	}

	if maxTimestamp >= 0 {
		var late []workqueue.Task
		tasks, late = splitAtCeiling(tasks, maxTimestamp)
		if len(late) > 0 {
			if err := d.queue.Release(ctx, late); err != nil {
				d.logger.Warn("Failed to release tasks past ceiling", "count", len(late), "error", err)
			}
		}
	}

	if len(tasks) > 0 {
		if err := d.dispatch(ctx, h, tasks); err != nil {
			h.Abort(ctx)
			return result, err
		}
		if err := d.queue.Acknowledge(ctx, tasks); err != nil {
			return result, fmt.Errorf("acknowledge %d tasks: %w", len(tasks), err)
		}
	}
	result.Acknowledged = tasks

	size, err := d.queue.Size(ctx)
	if err != nil {
		d.logger.Warn("Failed to read queue length", "error", err)
	} else {
		result.QueueLength = size
	}
	return result, nil
}

func (d *DAO) dispatch(ctx context.Context, h Handler, tasks []workqueue.Task) error {
	uuids := dedupe(tasks)

	found, err := d.store.FindByUUIDs(ctx, uuids)
	if err != nil {
		return fmt.Errorf("find %d events in %s: %w", len(uuids), d.Table(), err)
	}

	present := make(map[string]struct{}, len(found))
	for _, e := range found {
		present[e.UUID] = struct{}{}
	}

	if len(found) > 0 {
		if err := h.Prepare(ctx, found); err != nil {
			return fmt.Errorf("prepare %d events: %w", len(found), err)
		}
	}
	for _, e := range found {
		if err := h.Handle(ctx, e); err != nil {
			return fmt.Errorf("handle event %s: %w", e.UUID, err)
		}
	}
	for _, id := range uuids {
		if _, ok := present[id]; ok {
			continue
		}
		if err := h.HandleDeleted(ctx, id); err != nil {
			return fmt.Errorf("handle deleted event %s: %w", id, err)
		}
	}
	if err := h.Complete(ctx); err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	return nil
}

// QueueEvents enqueues one task per UUID stamped with timestamp (epoch
// millis). An empty list is a no-op.
func (d *DAO) QueueEvents(ctx context.Context, uuids []string, timestamp int64) error {
	if len(uuids) == 0 {
		return nil
	}
	tasks := make([]workqueue.Task, len(uuids))
	for i, id := range uuids {
		tasks[i] = workqueue.NewTask(id, timestamp)
	}
	if err := d.queue.Enqueue(ctx, tasks); err != nil {
		return fmt.Errorf("enqueue %d tasks to %s: %w", len(tasks), QueueName(d.Table()), err)
	}
	return nil
}

// QueueLength returns the current queue size.
func (d *DAO) QueueLength(ctx context.Context) (int64, error) {
	return d.queue.Size(ctx)
}

func splitAtCeiling(tasks []workqueue.Task, maxTimestamp int64) (kept, late []workqueue.Task) {
	for i, t := range tasks {
		if t.Timestamp > maxTimestamp {
			return tasks[:i], tasks[i:]
		}
	}
	return tasks, nil
}

func dedupe(tasks []workqueue.Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.UUID]; ok {
			continue
		}
		seen[t.UUID] = struct{}{}
		out = append(out, t.UUID)
	}
	return out
}
