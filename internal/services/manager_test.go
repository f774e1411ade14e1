package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventidx/eventidx/internal/config"
	"github.com/eventidx/eventidx/internal/indexer"
	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/internal/storage/memory"
	"github.com/eventidx/eventidx/pkg/model"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Queue.Backend = "memory"
	cfg.Metrics.Enabled = false
	cfg.Indexer.Schedule = "@every 1h"
	cfg.Indexer.PollTimeout = 10 * time.Millisecond
	cfg.Indexer.Store.Path = filepath.Join(dir, "indexes")
	cfg.Indexer.DetailsPath = filepath.Join(dir, "missing.yml")
	return cfg
}

func memoryStores() map[string]storage.EventStore {
	return map[string]storage.EventStore{
		indexer.SummaryIndex: memory.New(indexer.SummaryIndex),
		indexer.ArchiveIndex: memory.New(indexer.ArchiveIndex),
	}
}

type fakeConsumer struct {
	started atomic.Bool
	stopped chan struct{}
}

func (f *fakeConsumer) Start(ctx context.Context) error {
	f.started.Store(true)
	<-ctx.Done()
	close(f.stopped)
	return nil
}

func TestManager_InitMemoryBackends(t *testing.T) {
	m := NewManager(memoryConfig(t), Options{EventStores: memoryStores()}, nil)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	assert.Nil(t, m.natsProvider)
	assert.Nil(t, m.mongo)
	assert.Nil(t, m.metadataDB)
	assert.Nil(t, m.metricsServer)
	assert.Empty(t, m.consumers)
	assert.NotNil(t, m.Importer(indexer.SummaryIndex))
	assert.NotNil(t, m.Importer(indexer.ArchiveIndex))
	assert.NotNil(t, m.Indexer())
}

func TestManager_InitRequiresEveryStore(t *testing.T) {
	stores := memoryStores()
	delete(stores, indexer.ArchiveIndex)
	m := NewManager(memoryConfig(t), Options{EventStores: stores}, nil)

	err := m.Init(context.Background())
	assert.ErrorContains(t, err, "no event store for table event_archive")
}

func TestManager_ImportedEventsAreIndexed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(memoryConfig(t), Options{EventStores: memoryStores()}, nil)
	require.NoError(t, m.Init(ctx))
	require.NoError(t, m.Start(ctx))
	defer func() {
		cancel()
		m.Shutdown(context.Background())
	}()
	assert.Equal(t, indexer.StateConsistent, m.Indexer().State(indexer.SummaryIndex))

	event := &model.EventSummary{
		UUID:        "0b4f3c2e-4a7c-4d0e-9a51-5d2f1f0a9c01",
		Fingerprint: "host|/Status/Ping",
		UpdateTime:  1,
	}
	require.NoError(t, m.Importer(indexer.SummaryIndex).ImportEvent(ctx, event))

	n, err := m.Indexer().RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.Indexed.WithLabelValues(indexer.SummaryIndex)))
}

func TestManager_HealthReportsIndexQueues(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	m := NewManager(cfg, Options{EventStores: memoryStores()}, nil)
	require.NoError(t, m.Init(ctx))
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	require.NotNil(t, m.metricsServer)

	event := &model.EventSummary{UUID: "0b4f3c2e-4a7c-4d0e-9a51-5d2f1f0a9c01", Fingerprint: "host|/Status/Ping"}
	require.NoError(t, m.Importer(indexer.SummaryIndex).ImportEvent(ctx, event))

	rec := httptest.NewRecorder()
	m.metricsServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","queues":{"event_summary_index_queue":1,"event_archive_index_queue":0}}`, rec.Body.String())
}

func TestManager_StartRunsConsumersUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(memoryConfig(t), Options{EventStores: memoryStores()}, nil)
	require.NoError(t, m.Init(ctx))

	fc := &fakeConsumer{stopped: make(chan struct{})}
	m.consumers["summary"] = fc
	require.NoError(t, m.Start(ctx))
	assert.Eventually(t, fc.started.Load, time.Second, 10*time.Millisecond)

	cancel()
	m.Shutdown(context.Background())
	select {
	case <-fc.stopped:
	default:
		t.Fatal("consumer still running after shutdown")
	}
}

func TestManager_MigrationRejectsUnknownTable(t *testing.T) {
	cfg := memoryConfig(t)
	m := NewManager(cfg, Options{EventStores: memoryStores()}, nil)
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() { m.Shutdown(context.Background()) })

	m.cfg.Migration.Queues = map[string]string{"event_history": "history"}
	err := m.initMigration()
	assert.ErrorContains(t, err, "unknown table event_history")
}
