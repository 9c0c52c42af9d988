// Package indexer consumes inventory change events and applies them to the
// search indices.
//
// Events are partitioned across workers by entity kind, so the events of one
// kind are applied in delivery order. Each message is settled by outcome:
// success and partially rejected batches are acked, fatal errors terminate the
// message, and other failures are redelivered with exponential backoff until
// the attempt limit is reached.
package indexer

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
	"github.com/syntrixbase/inventory/internal/indexer/config"
	"github.com/syntrixbase/inventory/internal/inventory/changes"
)

// Handler applies one change event.
type Handler interface {
	HandleKey(ctx context.Context, key string, payload []byte) error
}

// Stats counts settled events.
type Stats struct {
	Applied    int64
	Terminated int64
	Retried    int64
}

// Service runs the event workers.
type Service struct {
	cfg      config.Config
	consumer pubsub.Consumer
	handler  Handler
	logger   *slog.Logger

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	done       chan struct{}

	applied    atomic.Int64
	terminated atomic.Int64
	retried    atomic.Int64
}

// NewService returns a stopped Service.
func NewService(cfg config.Config, consumer pubsub.Consumer, handler Handler, logger *slog.Logger) *Service {
	cfg.ApplyDefaults()
	return &Service{
		cfg:      cfg,
		consumer: consumer,
		handler:  handler,
		logger:   logger.With("component", "indexer"),
	}
}

// Start subscribes and starts the workers. It returns once the subscription
// is established.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("indexer already running")
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := s.consumer.Subscribe(subCtx)
	if err != nil {
		cancel()
		return err
	}
	// Workers outlive the subscription so queued events drain on Stop.
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))

	queues := make([]chan pubsub.Message, s.cfg.Workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan pubsub.Message, s.cfg.ChannelBufSize)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for msg := range queues[id] {
				s.process(workCtx, msg)
			}
		}(i)
	}

	s.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		for msg := range msgs {
			queues[partition(msg.Key(), len(queues))] <- msg
		}
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}(s.done)

	s.cancel = cancel
	s.workCancel = workCancel
	s.running = true
	s.logger.Info("Indexer started", "workers", s.cfg.Workers)
	return nil
}

// Stop cancels the subscription and waits for queued events to drain. When
// ctx expires first, in-flight handlers are cancelled.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	done, workCancel := s.done, s.workCancel
	s.mu.Unlock()

	defer workCancel()
	select {
	case <-done:
		s.logger.Info("Indexer stopped", "applied", s.applied.Load())
		return nil
	case <-ctx.Done():
		s.logger.Warn("Indexer stop timed out, cancelling in-flight events")
		return ctx.Err()
	}
}

// Stats returns the settlement counters.
func (s *Service) Stats() Stats {
	return Stats{
		Applied:    s.applied.Load(),
		Terminated: s.terminated.Load(),
		Retried:    s.retried.Load(),
	}
}

func partition(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(pubsub.EntityKind(key)))
	return int(h.Sum32() % uint32(n))
}

func (s *Service) process(ctx context.Context, msg pubsub.Message) {
	key := msg.Key()
	kind := pubsub.EntityKind(key)

	start := time.Now()
	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	err := s.handler.HandleKey(hctx, key, msg.Data())
	cancel()
	eventDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	result := s.settle(msg, key, err)
	eventsTotal.WithLabelValues(kind, result).Inc()
}

func (s *Service) settle(msg pubsub.Message, key string, err error) string {
	switch {
	case err == nil:
		s.applied.Add(1)
		s.ack(msg, key)
		return "success"
	case changes.IsFatal(err):
		s.logger.Error("Dropping malformed event", "key", key, "error", err)
		s.terminated.Add(1)
		s.term(msg, key)
		return "fatal"
	case !changes.Retryable(err):
		s.logger.Error("Event applied with rejected items", "key", key, "error", err)
		s.applied.Add(1)
		s.ack(msg, key)
		return "partial"
	}

	md, mdErr := msg.Metadata()
	if mdErr != nil {
		s.logger.Error("Failed to read message metadata", "key", key, "error", mdErr)
		s.retried.Add(1)
		if nakErr := msg.Nak(); nakErr != nil {
			s.logger.Warn("Failed to nak event", "key", key, "error", nakErr)
		}
		return "retry"
	}
	attempt := max(int(md.NumDelivered), 1)
	if attempt >= s.cfg.MaxAttempts {
		s.logger.Error("Event failed, attempts exhausted", "key", key, "attempts", attempt, "error", err)
		s.terminated.Add(1)
		s.term(msg, key)
		return "exhausted"
	}
	delay := s.backoff(attempt)
	s.logger.Warn("Event failed, retrying", "key", key, "attempt", attempt, "delay", delay, "error", err)
	s.retried.Add(1)
	if nakErr := msg.NakWithDelay(delay); nakErr != nil {
		s.logger.Warn("Failed to nak event", "key", key, "error", nakErr)
	}
	return "retry"
}

func (s *Service) backoff(attempt int) time.Duration {
	d := s.cfg.InitialBackoff
	for i := 1; i < attempt && d < s.cfg.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, s.cfg.MaxBackoff)
}

func (s *Service) ack(msg pubsub.Message, key string) {
	if err := msg.Ack(); err != nil {
		s.logger.Warn("Failed to ack event", "key", key, "error", err)
	}
}

func (s *Service) term(msg pubsub.Message, key string) {
	if err := msg.Term(); err != nil {
		s.logger.Warn("Failed to terminate event", "key", key, "error", err)
	}
}
