// Package pubsub carries inventory change events from the upstream
// producer to the indexer.
//
// Every message holds one event. Its key, "<EntityKind>:<action>" such as
// "MO:created", travels in the HeaderEventKey header and is mirrored in the
// subject "<prefix>.<EntityKind>.<action>" so consumers can filter by kind.
package pubsub

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// HeaderEventKey is the message header holding the event key.
const HeaderEventKey = "Inventory-Event-Key"

// Message is a received event with acknowledgment controls.
type Message interface {
	// Key returns the event key.
	Key() string

	// Data returns the raw payload.
	Data() []byte

	Subject() string

	// Ack acknowledges successful processing.
	Ack() error

	// Nak requests immediate redelivery.
	Nak() error

	// NakWithDelay requests redelivery after delay.
	NakWithDelay(delay time.Duration) error

	// Term drops the message without redelivery.
	Term() error

	Metadata() (MessageMetadata, error)
}

// MessageMetadata contains delivery information about a message.
type MessageMetadata struct {
	NumDelivered uint64
	Timestamp    time.Time
	Subject      string
	Stream       string
	Consumer     string
}

// Publisher publishes events.
type Publisher interface {
	// Publish sends data under the event key.
	Publish(ctx context.Context, key string, data []byte) error

	Close() error
}

// Consumer consumes events.
type Consumer interface {
	// Subscribe starts consuming and returns a channel that is closed when
	// ctx is cancelled. The caller must Ack, Nak or Term every message.
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// Provider creates publishers and consumers over one broker.
type Provider interface {
	io.Closer

	NewPublisher(opts PublisherOptions) (Publisher, error)

	NewConsumer(opts ConsumerOptions) (Consumer, error)
}

// Connectable is implemented by providers that must connect before use.
type Connectable interface {
	Connect(ctx context.Context) error
}

// Subject returns the subject of an event key under prefix.
func Subject(prefix, key string) (string, error) {
	kind, action, ok := strings.Cut(key, ":")
	if !ok || kind == "" || action == "" || strings.ContainsAny(key, ". *>") {
		return "", fmt.Errorf("invalid event key %q", key)
	}
	if prefix == "" {
		return kind + "." + action, nil
	}
	return prefix + "." + kind + "." + action, nil
}

// KeyFromSubject recovers the event key from the last two subject tokens.
// It returns "" when the subject has fewer than two tokens.
func KeyFromSubject(subject string) string {
	parts := strings.Split(subject, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2] + ":" + parts[len(parts)-1]
}

// EntityKind returns the entity kind token of an event key.
func EntityKind(key string) string {
	kind, _, _ := strings.Cut(key, ":")
	return kind
}
