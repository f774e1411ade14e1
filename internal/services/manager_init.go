package services

import (
	"context"
	"fmt"

	"github.com/eventidx/eventidx/internal/core/pubsub"
	natspubsub "github.com/eventidx/eventidx/internal/core/pubsub/nats"
	"github.com/eventidx/eventidx/internal/core/workqueue"
	wqmemory "github.com/eventidx/eventidx/internal/core/workqueue/memory"
	wqnats "github.com/eventidx/eventidx/internal/core/workqueue/nats"
	"github.com/eventidx/eventidx/internal/indexer"
	"github.com/eventidx/eventidx/internal/indexer/details"
	"github.com/eventidx/eventidx/internal/indexer/index"
	"github.com/eventidx/eventidx/internal/indexer/metadata"
	"github.com/eventidx/eventidx/internal/indexer/plugin"
	"github.com/eventidx/eventidx/internal/indexer/queue"
	"github.com/eventidx/eventidx/internal/metrics"
	"github.com/eventidx/eventidx/internal/migration"
	"github.com/eventidx/eventidx/internal/storage"
	mongostore "github.com/eventidx/eventidx/internal/storage/mongo"
)

// notifyStream is the JetStream stream indexed-event notifications land in.
const notifyStream = "indexed"

const notifyRetries = 2

var tables = []string{indexer.SummaryIndex, indexer.ArchiveIndex}

// Init connects the backends and builds the indexer and the migration
// consumers. Nothing runs until Start.
func (m *Manager) Init(ctx context.Context) error {
	m.metrics = metrics.New(m.opts.Registry)

	if m.needsNATS() {
		if err := m.initNATS(ctx); err != nil {
			return err
		}
	}

	stores, err := m.initEventStores(ctx)
	if err != nil {
		return err
	}

	idxCfg := m.cfg.Indexer
	m.indexDB, err = index.Open(index.Config{
		Path:           idxCfg.Store.Path,
		BlockCacheSize: idxCfg.Store.BlockCacheSize,
	}, m.logger)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}

	meta, err := m.initMetadata(ctx)
	if err != nil {
		return err
	}

	if m.cfg.Queue.NotifyPrefix != "" {
		m.publisher, err = m.natsProvider.NewPublisher(ctx, pubsub.PublisherOptions{
			StreamName:    notifyStream,
			SubjectPrefix: m.cfg.Queue.NotifyPrefix,
			RetryAttempts: notifyRetries,
			Storage:       pubsub.FileStorage,
			OnPublish:     m.metrics.ObservePublish,
		})
		if err != nil {
			return fmt.Errorf("failed to create notification publisher: %w", err)
		}
	}

	pipelines := make([]indexer.Pipeline, 0, len(tables))
	for _, table := range tables {
		p, err := m.initPipeline(ctx, table, stores[table])
		if err != nil {
			return err
		}
		pipelines = append(pipelines, p)
	}

	m.indexer = indexer.New(pipelines[0], pipelines[1], indexer.Deps{
		Details:  details.File{Path: idxCfg.DetailsPath},
		Metadata: meta,
		Sink:     m.metrics,
		Recorder: m.metrics,
	}, indexer.Options{
		BatchSize:   idxCfg.BatchSize,
		RebuildRate: idxCfg.RebuildRate,
	}, m.logger)
	m.service = indexer.NewService(indexer.ServiceConfig{
		Schedule:       idxCfg.Schedule,
		CatchUpOnStart: idxCfg.CatchUpOnStart,
	}, m.indexer, m.logger)

	if m.cfg.Migration.Enabled {
		if err := m.initMigration(); err != nil {
			return err
		}
	}

	if m.cfg.Metrics.Enabled {
		opts := make([]metrics.ServerOption, 0, len(pipelines))
		for _, p := range pipelines {
			opts = append(opts, metrics.WithQueue(queue.QueueName(p.Queue.Table()), p.Queue.QueueLength))
		}
		m.metricsServer = metrics.NewServer(m.cfg.Metrics.Addr, m.opts.Registry, m.logger, opts...)
	}
	return nil
}

func (m *Manager) needsNATS() bool {
	return m.cfg.Queue.Backend == "nats" || m.cfg.Migration.Enabled || m.cfg.Queue.NotifyPrefix != ""
}

func (m *Manager) initNATS(ctx context.Context) error {
	nc := m.cfg.NATS
	m.natsProvider = natspubsub.NewProvider(nc.URL, nc.Name, nc.ConnectTimeout)
	if err := m.natsProvider.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nil
}

func (m *Manager) initEventStores(ctx context.Context) (map[string]storage.EventStore, error) {
	if m.opts.EventStores != nil {
		for _, table := range tables {
			if m.opts.EventStores[table] == nil {
				return nil, fmt.Errorf("no event store for table %s", table)
			}
		}
		return m.opts.EventStores, nil
	}

	sc := m.cfg.Storage
	provider, err := mongostore.NewProvider(ctx, sc.URI, sc.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event store: %w", err)
	}
	m.mongo = provider

	stores := make(map[string]storage.EventStore, len(tables))
	for _, table := range tables {
		s, err := provider.EventStore(ctx, table, sc.Collections[table])
		if err != nil {
			return nil, fmt.Errorf("failed to open event store %s: %w", table, err)
		}
		stores[table] = s
	}
	return stores, nil
}

func (m *Manager) initMetadata(ctx context.Context) (metadata.Store, error) {
	mc := m.cfg.Indexer.Metadata
	if mc.DSN == "" {
		m.logger.Warn("No metadata DSN configured, keeping index metadata in memory; every start rebuilds")
		return metadata.NewMemoryStore(), nil
	}

	db, err := metadata.Open(ctx, mc.DSN)
	if err != nil {
		return nil, err
	}
	m.metadataDB = db

	store := metadata.NewPostgresStore(db, mc.Table)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (m *Manager) initPipeline(ctx context.Context, table string, store storage.EventStore) (indexer.Pipeline, error) {
	wq, err := m.newWorkQueue(ctx, queue.QueueName(table))
	if err != nil {
		return indexer.Pipeline{}, err
	}
	dao := queue.NewDAO(wq, store,
		queue.WithPollTimeout(m.cfg.Indexer.PollTimeout),
		queue.WithLogger(m.logger),
	)
	m.importers[table] = storage.NewIndexedStore(store, dao)

	p := indexer.Pipeline{
		Store: store,
		Index: m.indexDB.Index(table),
		Queue: dao,
	}
	if m.publisher != nil {
		p.Plugins = plugin.NewRegistry(plugin.NewNotify(table, m.publisher))
	}
	return p, nil
}

func (m *Manager) newWorkQueue(ctx context.Context, name string) (workqueue.WorkQueue, error) {
	qc := m.cfg.Queue
	if qc.Backend == "memory" {
		return wqmemory.New(wqmemory.WithVisibilityTimeout(qc.AckWait)), nil
	}
	q, err := wqnats.New(ctx, m.natsProvider.JetStream(), wqnats.Config{
		Name:          name,
		SubjectPrefix: qc.SubjectPrefix,
		AckWait:       qc.AckWait,
		MaxAckPending: qc.MaxAckPending,
		Replicas:      qc.Replicas,
	}, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create work queue %s: %w", name, err)
	}
	return q, nil
}

func (m *Manager) initMigration() error {
	mc := m.cfg.Migration
	for table, q := range mc.Queues {
		importer := m.importers[table]
		if importer == nil {
			return fmt.Errorf("migration queue %s maps to unknown table %s", q, table)
		}
		sub, err := m.natsProvider.NewConsumer(pubsub.ConsumerOptions{
			StreamName:    mc.StreamName,
			ConsumerName:  migration.ConsumerName(q),
			FilterSubject: mc.Subject(q),
			Prefetch:      mc.Prefetch,
			AckWait:       mc.AckWait,
			Storage:       pubsub.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("failed to create migration consumer %s: %w", q, err)
		}
		c, err := migration.NewConsumer(sub, importer, migration.Options{
			Queue:         q,
			HandleTimeout: mc.HandleTimeout,
			SeenCacheSize: mc.SeenCacheSize,
			RequeueDelay:  mc.RequeueDelay,
			Recorder:      m.metrics,
		}, m.logger)
		if err != nil {
			return err
		}
		m.consumers[q] = c
	}
	return nil
}
