package services

import (
	"context"
)

// Shutdown stops the indexer, waits for the migration consumers and closes
// every backend. Cancel the context passed to Start first so the consumers
// drain.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.service != nil {
		m.logger.Info("Stopping indexer...")
		if err := m.service.Stop(ctx); err != nil {
			m.logger.Warn("Indexer did not stop cleanly", "error", err)
		}
	}

	m.logger.Info("Waiting for migration consumers to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Migration consumers finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for migration consumers")
	}

	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(ctx); err != nil {
			m.logger.Warn("Error shutting down metrics server", "error", err)
		}
	}
	if m.publisher != nil {
		_ = m.publisher.Close()
	}
	if m.natsProvider != nil {
		_ = m.natsProvider.Close()
	}
	if m.indexDB != nil {
		if err := m.indexDB.Close(); err != nil {
			m.logger.Warn("Error closing index store", "error", err)
		}
	}
	if m.metadataDB != nil {
		if err := m.metadataDB.Close(); err != nil {
			m.logger.Warn("Error closing metadata database", "error", err)
		}
	}
	if m.mongo != nil {
		if err := m.mongo.Close(ctx); err != nil {
			m.logger.Warn("Error closing event store", "error", err)
		}
	}
}
