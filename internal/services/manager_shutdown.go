package services

import (
	"context"
)

// Shutdown stops the components in reverse dependency order. Callers cancel
// the context passed to Start first so background runs can return.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			m.logger.Error("Error stopping server", "error", err)
		}
	}
	if m.admin != nil {
		m.admin.Close()
	}

	if m.indexer != nil {
		if err := m.indexer.Stop(ctx); err != nil {
			m.logger.Error("Error stopping indexer", "error", err)
		}
		stats := m.indexer.Stats()
		m.logger.Info("Indexer settled events",
			"applied", stats.Applied, "terminated", stats.Terminated, "retried", stats.Retried)
	}

	m.logger.Info("Waiting for background tasks to finish...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Background tasks finished")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for background tasks")
	}

	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil {
			m.logger.Error("Error closing event publisher", "error", err)
		}
	}
	if m.provider != nil {
		if err := m.provider.Close(); err != nil {
			m.logger.Error("Error closing event transport", "error", err)
		}
	}
	if m.sourceCloser != nil {
		if err := m.sourceCloser.Close(); err != nil {
			m.logger.Error("Error closing source client", "error", err)
		}
	}
	if m.order != nil {
		if err := m.order.Close(); err != nil {
			m.logger.Error("Error closing load order", "error", err)
		}
	}
	if m.store != nil {
		if err := m.store.Close(ctx); err != nil {
			m.logger.Error("Error closing document store", "error", err)
		}
	}
}
