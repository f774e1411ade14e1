package pubsub

import "time"

// StorageType selects where a stream keeps its messages.
type StorageType int

const (
	MemoryStorage StorageType = iota
	FileStorage
)

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	// StreamName, when set, is created to cover the publisher's subjects,
	// and every publish is checked to land in it.
	StreamName string

	// SubjectPrefix is joined to every subject with a dot.
	SubjectPrefix string

	// RetryAttempts retries a publish that found no responders.
	RetryAttempts int

	Storage StorageType

	// OnPublish observes every attempt with the full subject.
	OnPublish func(subject string, err error, latency time.Duration)
}

// ConsumerOptions configures a durable Consumer.
type ConsumerOptions struct {
	StreamName   string
	ConsumerName string

	// FilterSubject defaults to every subject of the stream.
	FilterSubject string

	// Prefetch bounds messages delivered but not yet settled. It also
	// sizes the delivery channel.
	Prefetch int

	// AckWait is how long a delivery may stay unsettled before the broker
	// redelivers it.
	AckWait time.Duration

	Storage StorageType
}

// DefaultConsumerOptions returns the defaults applied to zero fields.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		Prefetch: 100,
		AckWait:  30 * time.Second,
		Storage:  FileStorage,
	}
}
