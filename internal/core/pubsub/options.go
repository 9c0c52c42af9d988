package pubsub

import "time"

// StorageType selects the stream storage backend.
type StorageType int

const (
	// FileStorage persists the stream on disk (default).
	FileStorage StorageType = iota
	// MemoryStorage keeps the stream in memory.
	MemoryStorage
)

// PublisherOptions configures a publisher.
type PublisherOptions struct {
	StreamName string

	// SubjectPrefix is prepended to every subject. Defaults to StreamName.
	SubjectPrefix string

	// RetryAttempts is the number of publish retries. Zero disables retry.
	RetryAttempts int

	Storage StorageType

	// OnPublish is called after each publish attempt.
	OnPublish func(subject string, err error, latency time.Duration)
}

// Prefix returns the effective subject prefix.
func (o PublisherOptions) Prefix() string {
	if o.SubjectPrefix != "" {
		return o.SubjectPrefix
	}
	return o.StreamName
}

// ConsumerOptions configures a durable consumer.
type ConsumerOptions struct {
	StreamName string

	ConsumerName string

	// FilterSubject limits delivery. Defaults to "<StreamName>.>".
	FilterSubject string

	// ChannelBufSize is the buffer of the delivery channel.
	ChannelBufSize int

	Storage StorageType

	// MaxDeliver bounds redeliveries. Zero means unlimited.
	MaxDeliver int

	// AckWait is the redelivery timeout of an unacknowledged message.
	AckWait time.Duration
}

// Filter returns the effective filter subject.
func (o ConsumerOptions) Filter() string {
	if o.FilterSubject != "" {
		return o.FilterSubject
	}
	if o.StreamName != "" {
		return o.StreamName + ".>"
	}
	return ">"
}

// DefaultConsumerOptions returns ConsumerOptions with defaults applied.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		ChannelBufSize: 100,
		AckWait:        30 * time.Second,
	}
}
