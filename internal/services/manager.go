// Package services wires the event indexing pipeline together from the
// process configuration and runs it.
package services

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventidx/eventidx/internal/config"
	"github.com/eventidx/eventidx/internal/core/pubsub"
	natspubsub "github.com/eventidx/eventidx/internal/core/pubsub/nats"
	"github.com/eventidx/eventidx/internal/indexer"
	"github.com/eventidx/eventidx/internal/indexer/index"
	"github.com/eventidx/eventidx/internal/metrics"
	"github.com/eventidx/eventidx/internal/migration"
	"github.com/eventidx/eventidx/internal/storage"
	mongostore "github.com/eventidx/eventidx/internal/storage/mongo"
)

// Options override parts of the wiring.
type Options struct {
	// EventStores replaces the MongoDB stores, keyed by event table.
	EventStores map[string]storage.EventStore

	// Registry receives the metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

type migrationConsumer interface {
	Start(ctx context.Context) error
}

// Manager owns every long-lived component of the process.
type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	mongo         *mongostore.Provider
	natsProvider  *natspubsub.Provider
	metadataDB    *sql.DB
	indexDB       *index.DB
	publisher     pubsub.Publisher
	metrics       *metrics.Metrics
	metricsServer *metrics.Server

	// importers are the queue-feeding stores, keyed by event table.
	importers map[string]*storage.IndexedStore
	indexer   *indexer.Indexer
	service   *indexer.Service
	consumers map[string]migrationConsumer

	wg sync.WaitGroup
}

// NewManager creates a Manager. Call Init before Start.
func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:       cfg,
		opts:      opts,
		logger:    logger.With("component", "services"),
		importers: make(map[string]*storage.IndexedStore),
		consumers: make(map[string]migrationConsumer),
	}
}

// Indexer returns the indexer built by Init.
func (m *Manager) Indexer() *indexer.Indexer {
	return m.indexer
}

// Importer returns the store that imports events into table and queues
// them for indexing.
func (m *Manager) Importer(table string) *storage.IndexedStore {
	return m.importers[table]
}

// Registry returns the metrics registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.opts.Registry
}

var _ migrationConsumer = (*migration.Consumer)(nil)
