// Package memory provides an in-process pubsub for standalone mode and tests.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

var (
	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrPatternSubscribed is returned when a filter already has a subscriber.
	ErrPatternSubscribed = errors.New("filter already has a subscriber")
)

var _ pubsub.Provider = (*Engine)(nil)

// Engine routes published events to subscribers within the process.
type Engine struct {
	broker *broker
}

// New returns an open Engine.
func New() *Engine {
	return &Engine{broker: newBroker()}
}

// NewPublisher returns a publisher on the engine.
func (e *Engine) NewPublisher(opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &publisher{broker: e.broker, opts: opts}, nil
}

// NewConsumer returns a consumer on the engine.
func (e *Engine) NewConsumer(opts pubsub.ConsumerOptions) (pubsub.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &consumer{broker: e.broker, opts: opts}, nil
}

// Close cancels every subscription.
func (e *Engine) Close() error {
	e.broker.close()
	return nil
}

// IsClosed reports whether Close was called.
func (e *Engine) IsClosed() bool {
	return e.broker.closed.Load()
}

type publisher struct {
	broker *broker
	opts   pubsub.PublisherOptions
	closed bool
}

func (p *publisher) Publish(ctx context.Context, key string, data []byte) error {
	if p.closed {
		return ErrEngineClosed
	}
	subject, err := pubsub.Subject(p.opts.Prefix(), key)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.broker.publish(ctx, key, subject, data)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(subject, err, time.Since(start))
	}
	return err
}

func (p *publisher) Close() error {
	p.closed = true
	return nil
}

type consumer struct {
	broker *broker
	opts   pubsub.ConsumerOptions
}

func (c *consumer) Subscribe(ctx context.Context) (<-chan pubsub.Message, error) {
	bufSize := c.opts.ChannelBufSize
	if bufSize <= 0 {
		bufSize = pubsub.DefaultConsumerOptions().ChannelBufSize
	}
	sub, err := c.broker.subscribe(ctx, c.opts.Filter(), bufSize, c.opts.MaxDeliver)
	if err != nil {
		return nil, err
	}
	go func() {
		<-sub.ctx.Done()
		c.broker.unsubscribe(sub)
	}()
	return sub.ch, nil
}
