// Package metrics exposes the indexing pipeline's Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eventidx/eventidx/internal/indexer"
	"github.com/eventidx/eventidx/internal/migration"
)

// Namespace is the Prometheus namespace of every metric.
const Namespace = "eventidx"

// Label names.
const (
	LabelTable   = "table"
	LabelIndex   = "index"
	LabelQueue   = "queue"
	LabelOutcome = "outcome"
	LabelSubject = "subject"
	LabelStatus  = "status"
)

// Metrics holds the collectors. It implements indexer.QueueSizeSink,
// indexer.Recorder and migration.Recorder.
type Metrics struct {
	QueueLength   *prometheus.GaugeVec
	BatchLimit    *prometheus.GaugeVec
	Indexed       *prometheus.CounterVec
	RebuildEvents *prometheus.GaugeVec
	RebuildTime   *prometheus.HistogramVec
	Migrated      *prometheus.CounterVec
	Published     *prometheus.CounterVec
	PublishTime   *prometheus.HistogramVec
}

var (
	_ indexer.QueueSizeSink = (*Metrics)(nil)
	_ indexer.Recorder      = (*Metrics)(nil)
	_ migration.Recorder    = (*Metrics)(nil)
)

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_queue_length",
			Help:      "Index tasks waiting or claimed, observed at the end of the last cycle",
		}, []string{LabelTable}),
		BatchLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_batch_limit",
			Help:      "Tasks requested per indexing cycle",
		}, []string{LabelTable}),
		Indexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "indexed_total",
			Help:      "Index tasks completed",
		}, []string{LabelTable}),
		RebuildEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_rebuild_events",
			Help:      "Events staged by the last full rebuild",
		}, []string{LabelIndex}),
		RebuildTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "index_rebuild_duration_seconds",
			Help:      "Duration of full index rebuilds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{LabelIndex}),
		Migrated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "migrated_messages_total",
			Help:      "Migrated event messages by outcome",
		}, []string{LabelQueue, LabelOutcome}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "notifications_published_total",
			Help:      "Indexed event notifications published",
		}, []string{LabelSubject, LabelStatus}),
		PublishTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "notification_publish_seconds",
			Help:      "Latency of notification publishes",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelSubject}),
	}

	reg.MustRegister(
		m.QueueLength, m.BatchLimit, m.Indexed, m.RebuildEvents, m.RebuildTime,
		m.Migrated, m.Published, m.PublishTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) PublishQueueSize(e indexer.QueueSizeEvent) {
	m.QueueLength.WithLabelValues(e.Table).Set(float64(e.QueueLength))
	m.BatchLimit.WithLabelValues(e.Table).Set(float64(e.Limit))
}

func (m *Metrics) AddIndexed(table string, n int) {
	m.Indexed.WithLabelValues(table).Add(float64(n))
}

func (m *Metrics) ObserveRebuild(index string, events int, elapsed time.Duration) {
	m.RebuildEvents.WithLabelValues(index).Set(float64(events))
	m.RebuildTime.WithLabelValues(index).Observe(elapsed.Seconds())
}

func (m *Metrics) IncMigrated(queue string, outcome migration.Outcome) {
	m.Migrated.WithLabelValues(queue, string(outcome)).Inc()
}

// ObservePublish matches pubsub.PublisherOptions.OnPublish.
func (m *Metrics) ObservePublish(subject string, err error, latency time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Published.WithLabelValues(subject, status).Inc()
	m.PublishTime.WithLabelValues(subject).Observe(latency.Seconds())
}
