package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/eventidx/eventidx/pkg/model"
)

// Queuer records that events need (re)indexing.
type Queuer interface {
	QueueEvents(ctx context.Context, uuids []string, timestamp int64) error
}

// IndexedStore wraps an EventStore so every mutation also enqueues an index
// task. A mutation whose enqueue fails is reported as transient so the
// caller retries it.
type IndexedStore struct {
	EventStore
	queue Queuer
	now   func() time.Time
}

// NewIndexedStore decorates store with index task enqueueing.
func NewIndexedStore(store EventStore, queue Queuer) *IndexedStore {
	return &IndexedStore{EventStore: store, queue: queue, now: time.Now}
}

// ImportEvent imports the event and enqueues it. A duplicate is still
// enqueued: a replay after a crash between insert and enqueue must not leave
// the event unindexed.
func (s *IndexedStore) ImportEvent(ctx context.Context, event *model.EventSummary) error {
	err := s.EventStore.ImportEvent(ctx, event)
	if err != nil && !IsDuplicateKey(err) {
		return err
	}
	if qerr := s.enqueue(ctx, event.UUID); qerr != nil {
		return qerr
	}
	return err
}

// SaveEvent saves the event and enqueues it.
func (s *IndexedStore) SaveEvent(ctx context.Context, event *model.EventSummary) error {
	if err := s.EventStore.SaveEvent(ctx, event); err != nil {
		return err
	}
	return s.enqueue(ctx, event.UUID)
}

// DeleteEvents deletes the events and enqueues them so the index drops them.
func (s *IndexedStore) DeleteEvents(ctx context.Context, uuids []string) error {
	if err := s.EventStore.DeleteEvents(ctx, uuids); err != nil {
		return err
	}
	return s.enqueue(ctx, uuids...)
}

func (s *IndexedStore) enqueue(ctx context.Context, uuids ...string) error {
	if err := s.queue.QueueEvents(ctx, uuids, s.now().UnixMilli()); err != nil {
		if model.IsCanceled(err) {
			return err
		}
		return fmt.Errorf("%w: enqueue index tasks for %s: %w", ErrTransient, s.Table(), err)
	}
	return nil
}
