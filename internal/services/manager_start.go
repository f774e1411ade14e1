package services

import (
	"context"
	"fmt"
)

// Start serves metrics, initializes the indexer and schedules indexing,
// then starts the migration consumers. It returns once everything is
// running; the consumers stop when ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	if m.metricsServer != nil {
		if err := m.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	if err := m.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start indexer: %w", err)
	}

	for name, c := range m.consumers {
		m.wg.Add(1)
		go func(name string, c migrationConsumer) {
			defer m.wg.Done()
			if err := c.Start(ctx); err != nil {
				m.logger.Error("Migration consumer failed", "queue", name, "error", err)
			}
		}(name, c)
	}
	return nil
}
