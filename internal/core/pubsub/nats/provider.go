// Package nats implements pubsub over NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

// JetStream is the subset of jetstream.JetStream used here.
type JetStream interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error)
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

var (
	connectFunc = func(url string, opts ...nats.Option) (*nats.Conn, error) {
		return nats.Connect(url, opts...)
	}
	newJetStream = func(nc *nats.Conn) (JetStream, error) {
		return jetstream.New(nc)
	}
)

// Provider implements pubsub.Provider over one NATS connection.
type Provider struct {
	url    string
	nc     *nats.Conn
	js     JetStream
	logger *slog.Logger
}

var (
	_ pubsub.Provider    = (*Provider)(nil)
	_ pubsub.Connectable = (*Provider)(nil)
)

// NewProvider returns an unconnected Provider for url.
func NewProvider(url string, logger *slog.Logger) *Provider {
	return &Provider{url: url, logger: logger.With("component", "pubsub-nats")}
}

// Connect dials the server and initializes JetStream.
func (p *Provider) Connect(ctx context.Context) error {
	nc, err := connectFunc(p.url, nats.Name("inventory-indexer"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	js, err := newJetStream(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream: %w", err)
	}
	p.nc = nc
	p.js = js
	p.logger.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewPublisher returns a JetStream publisher.
func (p *Provider) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewPublisher(p.js, opts)
}

// NewConsumer returns a durable JetStream consumer.
func (p *Provider) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewConsumer(p.js, opts, p.logger)
}

// Close drains and closes the connection.
func (p *Provider) Close() error {
	if p.nc == nil {
		return nil
	}
	p.logger.Info("Closing NATS connection")
	err := p.nc.Drain()
	p.nc = nil
	p.js = nil
	return err
}

func storageType(s pubsub.StorageType) jetstream.StorageType {
	if s == pubsub.MemoryStorage {
		return jetstream.MemoryStorage
	}
	return jetstream.FileStorage
}

func ensureStream(ctx context.Context, js JetStream, name, subject string, storage pubsub.StorageType) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  storageType(storage),
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	return nil
}
