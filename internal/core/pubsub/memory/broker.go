package memory

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

type broker struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed atomic.Bool
}

type subscription struct {
	filter     string
	ch         chan pubsub.Message
	maxDeliver int
	ctx        context.Context
	cancel     context.CancelFunc
}

func newBroker() *broker {
	return &broker{subs: make(map[string]*subscription)}
}

func (b *broker) publish(ctx context.Context, key, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrEngineClosed
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for filter, sub := range b.subs {
		if !matchSubject(filter, subject) {
			continue
		}
		msg := &message{
			key:       key,
			subject:   subject,
			data:      data,
			timestamp: time.Now(),
			delivered: 1,
			broker:    b,
			sub:       sub,
		}
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.ctx.Done():
		}
	}
	return nil
}

func (b *broker) subscribe(ctx context.Context, filter string, bufSize, maxDeliver int) (*subscription, error) {
	if b.closed.Load() {
		return nil, ErrEngineClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[filter]; ok {
		return nil, ErrPatternSubscribed
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		filter:     filter,
		ch:         make(chan pubsub.Message, bufSize),
		maxDeliver: maxDeliver,
		ctx:        subCtx,
		cancel:     cancel,
	}
	b.subs[filter] = sub
	return sub, nil
}

func (b *broker) unsubscribe(sub *subscription) {
	sub.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sub.filter] == sub {
		delete(b.subs, sub.filter)
		close(sub.ch)
	}
}

// redeliver puts msg back on its subscription unless the subscription is gone.
// A full buffer drops the message when wait is false.
func (b *broker) redeliver(msg *message, wait bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.subs[msg.sub.filter] != msg.sub {
		return
	}
	if wait {
		select {
		case msg.sub.ch <- msg:
		case <-msg.sub.ctx.Done():
		}
		return
	}
	select {
	case msg.sub.ch <- msg:
	default:
	}
}

func (b *broker) close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.RLock()
	for _, sub := range b.subs {
		sub.cancel()
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	for filter, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, filter)
	}
}

// matchSubject reports whether subject matches a NATS-style filter where
// "*" matches one token and a trailing ">" matches one or more.
func matchSubject(filter, subject string) bool {
	if filter == "" || subject == "" {
		return false
	}
	fp := strings.Split(filter, ".")
	sp := strings.Split(subject, ".")
	for i, tok := range fp {
		if tok == ">" {
			return i < len(sp)
		}
		if i >= len(sp) || (tok != "*" && tok != sp[i]) {
			return false
		}
	}
	return len(fp) == len(sp)
}
