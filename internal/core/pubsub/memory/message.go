package memory

import (
	"sync"
	"time"

	"github.com/syntrixbase/inventory/internal/core/pubsub"
)

type message struct {
	key       string
	subject   string
	data      []byte
	timestamp time.Time

	broker *broker
	sub    *subscription

	mu        sync.Mutex
	delivered uint64
	settled   bool
}

func (m *message) Key() string     { return m.key }
func (m *message) Data() []byte    { return m.data }
func (m *message) Subject() string { return m.subject }

func (m *message) Ack() error {
	m.settle()
	return nil
}

func (m *message) Term() error {
	m.settle()
	return nil
}

func (m *message) Nak() error {
	if m.requeue() {
		m.broker.redeliver(m, false)
	}
	return nil
}

func (m *message) NakWithDelay(delay time.Duration) error {
	if !m.requeue() {
		return nil
	}
	time.AfterFunc(delay, func() {
		if m.broker.closed.Load() {
			return
		}
		m.broker.redeliver(m, true)
	})
	return nil
}

func (m *message) Metadata() (pubsub.MessageMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pubsub.MessageMetadata{
		NumDelivered: m.delivered,
		Timestamp:    m.timestamp,
		Subject:      m.subject,
		Consumer:     m.sub.filter,
	}, nil
}

func (m *message) settle() {
	m.mu.Lock()
	m.settled = true
	m.mu.Unlock()
}

// requeue bumps the delivery count and reports whether the message may be
// delivered again. Only the first settlement of a delivery counts.
func (m *message) requeue() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settled {
		return false
	}
	if m.sub.maxDeliver > 0 && int(m.delivered) >= m.sub.maxDeliver {
		m.settled = true
		return false
	}
	m.delivered++
	return true
}
