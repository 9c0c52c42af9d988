package services

import (
	"context"
	"errors"
	"fmt"
)

// Start launches the configured components. A reindex-only process runs
// the reindex in the foreground and returns its result.
func (m *Manager) Start(bgCtx context.Context) error {
	if m.opts.Reindex && !m.opts.RunIndexer && !m.opts.RunServer {
		return m.runReindex(bgCtx)
	}

	if m.indexer != nil {
		if err := m.indexer.Start(bgCtx); err != nil {
			return fmt.Errorf("failed to start indexer: %w", err)
		}
	}

	if m.server != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.server.Start(bgCtx); err != nil {
				m.logger.Error("Server stopped with error", "error", err)
			}
		}()
	}

	switch {
	case m.opts.Reindex:
		m.background(bgCtx, m.runReindex)
	case m.cfg.Reindex.ResumeOnStart:
		pending, err := m.reindexer.Pending(bgCtx)
		if err != nil {
			return fmt.Errorf("failed to read load order: %w", err)
		}
		if len(pending) > 0 {
			m.logger.Info("Resuming interrupted reindex", "pending", len(pending))
			m.background(bgCtx, m.reindexer.FullRefresh)
		}
	}
	return nil
}

func (m *Manager) runReindex(ctx context.Context) error {
	if m.opts.RestartReindex {
		return m.reindexer.Restart(ctx)
	}
	return m.reindexer.FullRefresh(ctx)
}

func (m *Manager) background(ctx context.Context, fn func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("Reindex failed", "error", err)
		}
	}()
}
