package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

type publisher struct {
	js   JetStream
	opts pubsub.PublisherOptions
}

// NewPublisher ensures the stream exists and returns a publisher on it.
func NewPublisher(js JetStream, opts pubsub.PublisherOptions) (pubsub.Publisher, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}
	if opts.StreamName != "" {
		if err := ensureStream(context.Background(), js, opts.StreamName, opts.Prefix()+".>", opts.Storage); err != nil {
			return nil, err
		}
	}
	return &publisher{js: js, opts: opts}, nil
}

func (p *publisher) Publish(ctx context.Context, key string, data []byte) error {
	subject, err := pubsub.Subject(p.opts.Prefix(), key)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(pubsub.HeaderEventKey, key)
	msg.Data = data

	var opts []jetstream.PublishOpt
	if p.opts.RetryAttempts > 0 {
		opts = append(opts, jetstream.WithRetryAttempts(p.opts.RetryAttempts))
	}

	start := time.Now()
	_, err = p.js.PublishMsg(ctx, msg, opts...)
	if p.opts.OnPublish != nil {
		p.opts.OnPublish(subject, err, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (p *publisher) Close() error {
	return nil
}
