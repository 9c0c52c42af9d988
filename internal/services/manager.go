// Package services wires the indexer components together and runs them.
package services

import (
	"io"
	"log/slog"
	"sync"

	"github.com/syntrixbase/inventory/internal/admin"
	"github.com/syntrixbase/inventory/internal/config"
	"github.com/syntrixbase/inventory/internal/core/docstore"
	"github.com/syntrixbase/inventory/internal/core/loadorder"
	"github.com/syntrixbase/inventory/internal/core/pubsub"
	"github.com/syntrixbase/inventory/internal/core/source"
	"github.com/syntrixbase/inventory/internal/hierarchy"
	"github.com/syntrixbase/inventory/internal/indexer"
	"github.com/syntrixbase/inventory/internal/inventory/model"
	"github.com/syntrixbase/inventory/internal/inventory/reindex"
	"github.com/syntrixbase/inventory/internal/server"
)

// Options selects the components a process runs.
type Options struct {
	// RunIndexer consumes change events.
	RunIndexer bool
	// RunServer serves the admin API and, when configured, the gRPC source.
	RunServer bool
	// Reindex runs a full refresh after Init. With neither RunIndexer nor
	// RunServer set the process exits once it finishes.
	Reindex bool
	// RestartReindex discards a pending run instead of resuming it.
	RestartReindex bool
}

type Manager struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	indices   model.Indices
	store     docstore.Store
	provider  pubsub.Provider
	publisher pubsub.Publisher
	indexer   *indexer.Service
	order     loadorder.Store
	source    source.Source
	// sourceCloser closes the gRPC client connection when the source is remote.
	sourceCloser io.Closer
	reindexer    *reindex.Orchestrator
	hierarchy    *hierarchy.Engine
	admin        *admin.Handler
	server       *server.Server

	wg sync.WaitGroup
}

func NewManager(cfg *config.Config, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		indices: model.Indices{Prefix: cfg.Storage.IndexPrefix},
	}
}

// Reindexer returns the bulk reindex orchestrator, nil before Init.
func (m *Manager) Reindexer() *reindex.Orchestrator {
	return m.reindexer
}

// Server returns the network server, nil when RunServer is unset.
func (m *Manager) Server() *server.Server {
	return m.server
}
