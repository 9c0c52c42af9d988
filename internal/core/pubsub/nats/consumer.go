package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

type consumer struct {
	js     JetStream
	opts   pubsub.ConsumerOptions
	logger *slog.Logger
}

// NewConsumer returns a durable consumer on opts.StreamName.
func NewConsumer(js JetStream, opts pubsub.ConsumerOptions, logger *slog.Logger) (pubsub.Consumer, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	defaults := pubsub.DefaultConsumerOptions()
	if opts.ChannelBufSize <= 0 {
		opts.ChannelBufSize = defaults.ChannelBufSize
	}
	if opts.AckWait <= 0 {
		opts.AckWait = defaults.AckWait
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "inventory-indexer"
	}
	return &consumer{js: js, opts: opts, logger: logger}, nil
}

func (c *consumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	filter := c.opts.Filter()
	if err := ensureStream(ctx, c.js, c.opts.StreamName, c.opts.StreamName+".>", c.opts.Storage); err != nil {
		return nil, err
	}
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.opts.StreamName, jetstream.ConsumerConfig{
		Durable:       c.opts.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filter,
		MaxDeliver:    c.opts.MaxDeliver,
		AckWait:       c.opts.AckWait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan pubsub.Message, c.opts.ChannelBufSize)
	var closing atomic.Bool
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			_ = msg.Nak()
			return
		}
		select {
		case out <- &message{msg: msg}:
		case <-ctx.Done():
			_ = msg.Nak()
		}
	})
	if err != nil {
		close(out)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}
	c.logger.Info("Consumer subscribed", "stream", c.opts.StreamName, "consumer", c.opts.ConsumerName, "filter", filter)

	go func() {
		<-ctx.Done()
		closing.Store(true)
		cc.Stop()
		close(out)
		c.logger.Info("Consumer stopped", "stream", c.opts.StreamName)
	}()
	return out, nil
}

type message struct {
	msg jetstream.Msg
}

func (m *message) Key() string {
	if h := m.msg.Headers(); h != nil {
		if key := h.Get(pubsub.HeaderEventKey); key != "" {
			return key
		}
	}
	return pubsub.KeyFromSubject(m.msg.Subject())
}

func (m *message) Data() []byte                           { return m.msg.Data() }
func (m *message) Subject() string                        { return m.msg.Subject() }
func (m *message) Ack() error                             { return m.msg.Ack() }
func (m *message) Nak() error                             { return m.msg.Nak() }
func (m *message) NakWithDelay(delay time.Duration) error { return m.msg.NakWithDelay(delay) }
func (m *message) Term() error                            { return m.msg.Term() }

func (m *message) Metadata() (pubsub.MessageMetadata, error) {
	md, err := m.msg.Metadata()
	if err != nil {
		return pubsub.MessageMetadata{}, err
	}
	return pubsub.MessageMetadata{
		NumDelivered: md.NumDelivered,
		Timestamp:    md.Timestamp,
		Subject:      m.msg.Subject(),
		Stream:       md.Stream,
		Consumer:     md.Consumer,
	}, nil
}
