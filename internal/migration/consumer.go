// Package migration imports events migrated from another system. Events
// arrive as JSON on a broker queue and are written to the event store
// through the same path as every other write, so they get indexed too.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventidx/eventidx/internal/core/cache"
	"github.com/eventidx/eventidx/internal/core/pubsub"
	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// Importer writes a migrated event. It returns an error matching
// storage.ErrDuplicateKey when the event already exists.
type Importer interface {
	ImportEvent(ctx context.Context, event *model.EventSummary) error
}

// Outcome is what the consumer did with a message.
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRequeued  Outcome = "requeued"
	OutcomeRejected  Outcome = "rejected"
)

// Recorder counts message outcomes per queue.
type Recorder interface {
	IncMigrated(queue string, outcome Outcome)
}

type noopRecorder struct{}

func (noopRecorder) IncMigrated(string, Outcome) {}

// Options tune a Consumer.
type Options struct {
	// Queue is the queue identifier, used in logs and metrics.
	Queue string
	// HandleTimeout bounds one import.
	HandleTimeout time.Duration
	// SeenCacheSize is the capacity of the recently imported UUID cache.
	// The cache only shapes logging; every message is imported.
	SeenCacheSize int
	// RequeueDelay is the redelivery delay after a first transient failure.
	RequeueDelay time.Duration
	// Recorder is optional.
	Recorder Recorder
}

// Consumer imports migrated events one message at a time.
//
// A message is acked after a successful import or when the event already
// exists, nakked for redelivery on a transient failure, and terminated on
// anything else. Terminated messages are gone; there is no dead letter
// queue.
type Consumer struct {
	consumer pubsub.Consumer
	importer Importer
	opts     Options
	seen     *cache.Bounded[string, struct{}]
	logger   *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(consumer pubsub.Consumer, importer Importer, opts Options, logger *slog.Logger) (*Consumer, error) {
	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = DefaultConfig().HandleTimeout
	}
	if opts.SeenCacheSize <= 0 {
		opts.SeenCacheSize = DefaultConfig().SeenCacheSize
	}
	if opts.RequeueDelay <= 0 {
		opts.RequeueDelay = DefaultConfig().RequeueDelay
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	seen, err := cache.NewBounded[string, struct{}](opts.SeenCacheSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		consumer: consumer,
		importer: importer,
		opts:     opts,
		seen:     seen,
		logger:   logger.With("component", "migration-consumer", "queue", opts.Queue),
	}, nil
}

// Start consumes until ctx is canceled. The message being imported when
// that happens is finished; messages still buffered are nakked.
func (c *Consumer) Start(ctx context.Context) error {
	msgCh, err := c.consumer.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.logger.Info("Migration consumer started")

	nakked := 0
	for msg := range msgCh {
		if ctx.Err() != nil {
			if err := msg.Nak(); err != nil {
				c.logger.Warn("Failed to nak message on shutdown", "error", err)
			}
			nakked++
			continue
		}
		c.handle(ctx, msg)
	}

	c.logger.Info("Migration consumer stopped", "requeued_on_shutdown", nakked)
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg pubsub.Message) {
	var event model.EventSummary
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		c.reject(msg, "", fmt.Errorf("decode: %w", err))
		return
	}
	if err := event.Validate(); err != nil {
		c.reject(msg, event.UUID, err)
		return
	}

	importCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.HandleTimeout)
	defer cancel()

	err := c.importer.ImportEvent(importCtx, &event)
	outcome := Classify(err)
	switch outcome {
	case OutcomeImported:
		if c.seen.Contains(event.UUID) {
			c.logger.Info("Re-imported event removed since its last delivery", "uuid", event.UUID)
		}
		c.seen.Put(event.UUID, struct{}{})
	case OutcomeDuplicate:
		if c.seen.Contains(event.UUID) {
			c.logger.Debug("Redelivered event already imported by this consumer", "uuid", event.UUID)
		} else {
			c.logger.Info("Event already exists, skipping", "uuid", event.UUID)
		}
		c.seen.Put(event.UUID, struct{}{})
	}
	c.settle(msg, event.UUID, outcome, err)
}

// Classify maps an import result to a message outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeImported
	case storage.IsDuplicateKey(err):
		return OutcomeDuplicate
	case storage.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
		return OutcomeRequeued
	}
	return OutcomeRejected
}

func (c *Consumer) settle(msg pubsub.Message, uuid string, outcome Outcome, cause error) {
	var err error
	switch outcome {
	case OutcomeImported, OutcomeDuplicate:
		err = msg.Ack()
	case OutcomeRequeued:
		delay := c.requeueDelay(msg)
		c.logger.Debug("Requeueing message after transient failure", "uuid", uuid, "delay", delay, "error", cause)
		err = msg.NakWithDelay(delay)
	default:
		c.logger.Warn("Failed processing message", "uuid", uuid, "error", cause)
		err = msg.Term()
	}
	if err != nil {
		c.logger.Warn("Failed to settle message", "uuid", uuid, "outcome", outcome, "error", err)
	}
	c.opts.Recorder.IncMigrated(c.opts.Queue, outcome)
}

// requeueDelay doubles RequeueDelay for every earlier delivery of msg, up
// to maxRequeueDelay. Without delivery metadata the base delay is used.
func (c *Consumer) requeueDelay(msg pubsub.Message) time.Duration {
	delay := c.opts.RequeueDelay
	md, err := msg.Metadata()
	if err != nil {
		return delay
	}
	for n := uint64(1); n < md.NumDelivered && delay < maxRequeueDelay; n++ {
		delay *= 2
	}
	return min(delay, maxRequeueDelay)
}

func (c *Consumer) reject(msg pubsub.Message, uuid string, err error) {
	c.logger.Warn("Rejecting migrated event", "uuid", uuid, "subject", msg.Subject(), "error", err)
	if err := msg.Term(); err != nil {
		c.logger.Warn("Failed to terminate message", "error", err)
	}
	c.opts.Recorder.IncMigrated(c.opts.Queue, OutcomeRejected)
}
