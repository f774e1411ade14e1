package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eventidx/eventidx/internal/core/pubsub"
	"github.com/eventidx/eventidx/pkg/model"
)

// IndexedNotification is the payload published for each indexed event.
type IndexedNotification struct {
	Table       string `json:"table"`
	UUID        string `json:"uuid"`
	Fingerprint string `json:"fingerprint"`
	UpdateTime  int64  `json:"update_time"`
}

// Notify publishes an IndexedNotification on "indexed.<table>" for every
// processed event. The publisher adds its own subject prefix.
type Notify struct {
	table     string
	publisher pubsub.Publisher
}

var _ Plugin = (*Notify)(nil)

// NewNotify creates a notification plugin for table.
func NewNotify(table string, publisher pubsub.Publisher) *Notify {
	return &Notify{table: table, publisher: publisher}
}

func (n *Notify) Name() string { return "notify" }

// Subject returns the subject notifications are published on.
func (n *Notify) Subject() string {
	return "indexed." + n.table
}

func (n *Notify) Process(ctx context.Context, event *model.EventSummary) error {
	data, err := json.Marshal(IndexedNotification{
		Table:       n.table,
		UUID:        event.UUID,
		Fingerprint: event.Fingerprint,
		UpdateTime:  event.UpdateTime,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.publisher.Publish(ctx, n.Subject(), data); err != nil {
		return fmt.Errorf("publish %s: %w", n.Subject(), err)
	}
	return nil
}
