// Package nats implements workqueue.WorkQueue on a NATS JetStream
// work-queue stream.
//
// Each queue owns one stream with WorkQueuePolicy retention, so a message is
// removed once acknowledged, and one durable pull consumer whose AckWait is
// the claim visibility timeout.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	natspubsub "github.com/eventidx/eventidx/internal/core/pubsub/nats"
	"github.com/eventidx/eventidx/internal/core/workqueue"
	"github.com/eventidx/eventidx/pkg/model"
)

// Config configures one JetStream-backed queue.
type Config struct {
	// Name is both the stream name and the durable consumer name.
	Name string
	// SubjectPrefix prefixes the queue subject: <prefix>.<name>.
	SubjectPrefix string
	// AckWait is how long a polled task stays claimed.
	AckWait time.Duration
	// MaxAckPending bounds claimed-but-unacknowledged tasks across pollers.
	MaxAckPending int
	// Replicas of the stream in a clustered deployment.
	Replicas int
}

type payload struct {
	UUID      string `json:"uuid"`
	Timestamp int64  `json:"ts"`
}

// Queue is a JetStream work queue.
type Queue struct {
	js       natspubsub.JetStream
	stream   jetstream.Stream
	consumer jetstream.Consumer
	subject  string
	name     string
	logger   *slog.Logger
}

var _ workqueue.WorkQueue = (*Queue)(nil)

// New ensures the stream and consumer exist and returns the queue.
func New(ctx context.Context, js natspubsub.JetStream, cfg Config, logger *slog.Logger) (*Queue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "workqueue"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	subject := cfg.SubjectPrefix + "." + cfg.Name

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  []string{subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		Replicas:  cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.Name, err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Name, jetstream.ConsumerConfig{
		Durable:       cfg.Name,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
		FilterSubject: subject,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s: %w", cfg.Name, err)
	}

	return &Queue{
		js:       js,
		stream:   stream,
		consumer: consumer,
		subject:  subject,
		name:     cfg.Name,
		logger:   logger.With("component", "workqueue", "queue", cfg.Name),
	}, nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue publishes one message per task. Publishing is acknowledged by the
// stream, so a nil return means the tasks are durable.
func (q *Queue) Enqueue(ctx context.Context, tasks []workqueue.Task) error {
	for _, t := range tasks {
		data, err := json.Marshal(payload{UUID: t.UUID, Timestamp: t.Timestamp})
		if err != nil {
			return fmt.Errorf("encode task %s: %w", t.UUID, err)
		}
		if _, err := q.js.Publish(ctx, q.subject, data); err != nil {
			if model.IsCanceled(err) {
				return fmt.Errorf("%w: %w", model.ErrCanceled, err)
			}
			return fmt.Errorf("%w: publish to %s: %w", workqueue.ErrUnavailable, q.subject, err)
		}
	}
	return nil
}

// Poll fetches up to max messages, waiting at most timeout.
// Messages that cannot be decoded are terminated and skipped.
func (q *Queue) Poll(ctx context.Context, max int, timeout time.Duration) ([]workqueue.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCanceled, err)
	}
	if max <= 0 {
		return nil, nil
	}

	batch, err := q.consumer.Fetch(max, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch from %s: %w", workqueue.ErrUnavailable, q.name, err)
	}

	var tasks []workqueue.Task
	for msg := range batch.Messages() {
		var p payload
		if err := json.Unmarshal(msg.Data(), &p); err != nil || p.UUID == "" {
			q.logger.Warn("Dropping undecodable task", "error", err, "size", len(msg.Data()))
			if termErr := msg.Term(); termErr != nil {
				q.logger.Warn("Failed to terminate task", "error", termErr)
			}
			continue
		}
		tasks = append(tasks, workqueue.NewTask(p.UUID, p.Timestamp).WithHandle(msg))
	}

	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		if len(tasks) == 0 {
			return nil, fmt.Errorf("%w: fetch from %s: %w", workqueue.ErrUnavailable, q.name, err)
		}
		q.logger.Warn("Fetch ended early", "error", err, "fetched", len(tasks))
	}

	if len(tasks) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrCanceled, err)
		}
	}
	return tasks, nil
}

// Release naks tasks so they are redelivered without waiting for AckWait.
func (q *Queue) Release(ctx context.Context, tasks []workqueue.Task) error {
	for _, t := range tasks {
		msg, ok := t.Handle().(jetstream.Msg)
		if !ok {
			continue
		}
		if err := msg.Nak(); err != nil && !errors.Is(err, jetstream.ErrMsgAlreadyAckd) {
			return fmt.Errorf("%w: release %s: %w", workqueue.ErrUnavailable, t.UUID, err)
		}
	}
	return nil
}

// Acknowledge double-acks each task so the removal is confirmed by the server.
func (q *Queue) Acknowledge(ctx context.Context, tasks []workqueue.Task) error {
	for _, t := range tasks {
		msg, ok := t.Handle().(jetstream.Msg)
		if !ok {
			continue
		}
		if err := msg.DoubleAck(ctx); err != nil && !errors.Is(err, jetstream.ErrMsgAlreadyAckd) {
			return fmt.Errorf("%w: acknowledge %s: %w", workqueue.ErrUnavailable, t.UUID, err)
		}
	}
	return nil
}

// Size returns the number of messages retained by the work-queue stream.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	info, err := q.stream.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: stream info %s: %w", workqueue.ErrUnavailable, q.name, err)
	}
	return int64(info.State.Msgs), nil
}
