// Package storage defines the event store: the source of truth the search
// index is rebuilt from.
package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/eventidx/eventidx/internal/core/workqueue"
	"github.com/eventidx/eventidx/pkg/model"
)

var (
	// ErrDuplicateKey is returned by ImportEvent when the event already exists.
	ErrDuplicateKey = errors.New("event already exists")
	// ErrTransient marks an infrastructure failure that may succeed on retry.
	ErrTransient = errors.New("transient storage failure")
)

// IsDuplicateKey reports whether err is a duplicate-key conflict.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || mongo.IsDuplicateKeyError(err)
}

// IsTransient reports whether err is worth retrying: explicitly marked
// transient failures, queue outages and mongo network or timeout errors.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || model.IsCanceled(err) {
		return false
	}
	return errors.Is(err, ErrTransient) ||
		errors.Is(err, workqueue.ErrUnavailable) ||
		mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err)
}

// EventStore reads and writes events of one table.
type EventStore interface {
	// Table is the logical table name, e.g. event_summary.
	Table() string

	// FindByUUIDs returns the events that exist. Missing UUIDs are omitted;
	// order is unspecified.
	FindByUUIDs(ctx context.Context, uuids []string) ([]*model.EventSummary, error)

	// ListBatch returns up to limit events ordered by UUID, strictly after
	// afterUUID, whose update time is at or before asOf (epoch millis).
	// An empty afterUUID starts from the beginning.
	ListBatch(ctx context.Context, afterUUID string, asOf int64, limit int) ([]*model.EventSummary, error)

	// ImportEvent inserts an event verbatim. It returns ErrDuplicateKey if
	// an event with the same UUID exists.
	ImportEvent(ctx context.Context, event *model.EventSummary) error

	// SaveEvent inserts or replaces an event.
	SaveEvent(ctx context.Context, event *model.EventSummary) error

	// DeleteEvents removes events. Unknown UUIDs are ignored.
	DeleteEvents(ctx context.Context, uuids []string) error
}
