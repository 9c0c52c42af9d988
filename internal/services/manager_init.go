package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/syntrixbase/inventory/internal/admin"
	"github.com/syntrixbase/inventory/internal/core/docstore"
	storageconfig "github.com/syntrixbase/inventory/internal/core/docstore/config"
	docmem "github.com/syntrixbase/inventory/internal/core/docstore/memory"
	"github.com/syntrixbase/inventory/internal/core/docstore/mongo"
	"github.com/syntrixbase/inventory/internal/core/loadorder"
	loconfig "github.com/syntrixbase/inventory/internal/core/loadorder/config"
	lomem "github.com/syntrixbase/inventory/internal/core/loadorder/memory"
	lopebble "github.com/syntrixbase/inventory/internal/core/loadorder/pebble"
	lopostgres "github.com/syntrixbase/inventory/internal/core/loadorder/postgres"
	"github.com/syntrixbase/inventory/internal/core/pubsub"
	pubsubmem "github.com/syntrixbase/inventory/internal/core/pubsub/memory"
	pubsubnats "github.com/syntrixbase/inventory/internal/core/pubsub/nats"
	"github.com/syntrixbase/inventory/internal/core/source"
	sourceconfig "github.com/syntrixbase/inventory/internal/core/source/config"
	sourcemem "github.com/syntrixbase/inventory/internal/core/source/memory"
	"github.com/syntrixbase/inventory/internal/core/source/remote"
	"github.com/syntrixbase/inventory/internal/hierarchy"
	"github.com/syntrixbase/inventory/internal/indexer"
	indexerconfig "github.com/syntrixbase/inventory/internal/indexer/config"
	"github.com/syntrixbase/inventory/internal/inventory/changes"
	"github.com/syntrixbase/inventory/internal/inventory/reindex"
	"github.com/syntrixbase/inventory/internal/inventory/resolver"
	"github.com/syntrixbase/inventory/internal/server"
	services "github.com/syntrixbase/inventory/internal/services/config"
)

var docstoreFactory = func(ctx context.Context, cfg storageconfig.Config, logger *slog.Logger) (docstore.Store, error) {
	if cfg.Backend == storageconfig.BackendMemory {
		return docmem.New(), nil
	}
	return mongo.Connect(ctx, cfg.URI, cfg.Database, logger)
}

var loadOrderFactory = func(ctx context.Context, cfg loconfig.Config, logger *slog.Logger) (loadorder.Store, error) {
	switch cfg.Backend {
	case loconfig.BackendMemory:
		return lomem.New(), nil
	case loconfig.BackendPebble:
		return lopebble.Open(cfg.Path, logger)
	default:
		return lopostgres.Open(ctx, cfg.DSN, cfg.Table, logger)
	}
}

var providerFactory = func(ctx context.Context, mode services.DeploymentMode, cfg indexerconfig.Config, logger *slog.Logger) (pubsub.Provider, error) {
	if mode.IsStandalone() {
		return pubsubmem.New(), nil
	}
	p := pubsubnats.NewProvider(cfg.NATSURL, logger)
	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// sourceFactory returns the remote source when an address is configured and
// the embedded source otherwise. The closer is nil for the embedded source.
var sourceFactory = func(cfg sourceconfig.Config) (source.Source, io.Closer, error) {
	if cfg.Address != "" {
		c, err := remote.New(cfg.Address, cfg.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	}
	if cfg.SnapshotPath == "" {
		return sourcemem.New(cfg.ChunkSize), nil, nil
	}
	src, err := sourcemem.LoadSnapshot(cfg.SnapshotPath, cfg.ChunkSize)
	if err != nil {
		return nil, nil, err
	}
	return src, nil, nil
}

// Init builds every component. Components already built are released by
// Shutdown even when Init fails part way.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.initStore(ctx); err != nil {
		return err
	}
	if err := m.initReindexer(ctx); err != nil {
		return err
	}
	if err := m.initHierarchy(ctx); err != nil {
		return err
	}
	if m.opts.RunIndexer || m.opts.RunServer {
		if err := m.initEvents(ctx); err != nil {
			return err
		}
	}
	if m.opts.RunServer {
		m.initServer()
	}
	return nil
}

func (m *Manager) initStore(ctx context.Context) error {
	store, err := docstoreFactory(ctx, m.cfg.Storage, m.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}
	m.store = store

	if err := changes.EnsureIndices(ctx, store, m.indices); err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}
	m.logger.Info("Document store ready", "backend", m.cfg.Storage.Backend, "prefix", m.indices.Prefix)
	return nil
}

func (m *Manager) initReindexer(ctx context.Context) error {
	order, err := loadOrderFactory(ctx, m.cfg.LoadOrder, m.logger)
	if err != nil {
		return fmt.Errorf("failed to open load order: %w", err)
	}
	m.order = order

	src, closer, err := sourceFactory(m.cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	m.source, m.sourceCloser = src, closer

	m.reindexer = reindex.New(m.store, src, order, m.indices, m.cfg.Reindex, m.logger)
	m.logger.Info("Reindex orchestrator ready", "load_order", m.cfg.LoadOrder.Backend, "remote_source", closer != nil)
	return nil
}

func (m *Manager) initHierarchy(ctx context.Context) error {
	repo := hierarchy.NewRepository(m.store, m.indices)
	if err := repo.EnsureIndices(ctx); err != nil {
		return fmt.Errorf("failed to create hierarchy indices: %w", err)
	}
	engine, err := hierarchy.NewEngine(m.store, repo, m.indices, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create hierarchy engine: %w", err)
	}
	m.hierarchy = engine
	return nil
}

func (m *Manager) initEvents(ctx context.Context) error {
	events := m.cfg.Events
	provider, err := providerFactory(ctx, m.cfg.Deployment.Mode, events, m.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event transport: %w", err)
	}
	m.provider = provider

	if m.opts.RunServer {
		logger := m.logger
		m.publisher, err = provider.NewPublisher(pubsub.PublisherOptions{
			StreamName:    events.Stream,
			RetryAttempts: 3,
			OnPublish: func(subject string, err error, latency time.Duration) {
				if err != nil {
					logger.Warn("Event publish failed", "subject", subject, "error", err)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
	}

	if !m.opts.RunIndexer {
		return nil
	}
	consumer, err := provider.NewConsumer(pubsub.ConsumerOptions{
		StreamName:     events.Stream,
		ConsumerName:   events.Consumer,
		ChannelBufSize: events.ChannelBufSize,
		MaxDeliver:     events.MaxAttempts,
		AckWait:        events.HandlerTimeout + 10*time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create event consumer: %w", err)
	}

	router := changes.NewRouter(m.store, resolver.New(m.store, m.indices, m.logger), changes.Options{
		KeepParentIDOnDelete:   m.cfg.Storage.KeepParentIDOnDelete,
		ClearDeletedParameters: m.cfg.Storage.ClearDeletedParameters,
	}, m.logger)
	m.indexer = indexer.NewService(events, consumer, router, m.logger)
	return nil
}

func (m *Manager) initServer() {
	m.server = server.New(m.cfg.Server, m.logger)

	m.admin = admin.NewHandler(m.cfg.Admin, m.reindexer, m.hierarchy, m.logger)
	if m.publisher != nil {
		m.admin.SetPublisher(m.publisher)
	}
	m.admin.Register(m.server)

	// The embedded source is served over gRPC so other indexers can reindex
	// from this process.
	if m.cfg.Server.GRPCPort != 0 && m.sourceCloser == nil {
		remote.Register(m.server, m.source)
		m.logger.Info("Serving embedded source over gRPC", "port", m.cfg.Server.GRPCPort)
	}
}
