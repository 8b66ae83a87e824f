// Package updatelog provides the ordered, durable, per-object update log
// abstraction the sync protocol runs on. A backend appends records to a
// stream, assigns each a strictly increasing revision position (Rid), and
// replays them to consumers in position order, resuming from any retained
// checkpoint.
package updatelog

import (
	"context"
	"errors"
	"io"
	"time"

	"collabstream/internal/collab"
)

// ErrCheckpointExpired is returned by Subscribe when the log no longer
// retains the record following ConsumerOptions.StartAfter. The caller must
// fall back to fetching a full snapshot; resuming from position zero would
// replay irrelevant early history.
var ErrCheckpointExpired = errors.New("update log: checkpoint no longer retained")

// Message represents one delivered log record with acknowledgment controls.
type Message interface {
	// Data returns the record body.
	Data() []byte

	// Header returns the record's field map. Callers must not mutate it.
	Header() map[string]string

	// Subject returns the record subject.
	Subject() string

	// ID returns the broker-assigned message id in canonical Rid text form.
	ID() string

	// Position returns the broker-assigned revision position.
	Position() collab.Rid

	// Ack acknowledges successful processing.
	Ack() error

	// Nak signals processing failure, requesting redelivery.
	Nak() error

	// NakWithDelay requests redelivery after a delay.
	NakWithDelay(delay time.Duration) error

	// Term terminates the message (no redelivery).
	Term() error

	// Metadata returns delivery metadata.
	Metadata() (MessageMetadata, error)
}

// MessageMetadata contains delivery information about a message.
type MessageMetadata struct {
	NumDelivered uint64
	// NumPending is the number of retained records past this one that
	// match the consumer's filter at delivery time. Zero means the
	// consumer has caught up with the log.
	NumPending uint64
	Timestamp  time.Time
	Subject    string
	Stream     string
	Consumer   string
}

// Appender appends records to a stream. Appends issued through a single
// Appender are observed by all consumers in the exact order they were
// issued; the broker assigns positions.
type Appender interface {
	// Append writes one record to the given subject.
	Append(ctx context.Context, subject string, header map[string]string, data []byte) error

	// Close releases resources.
	Close() error
}

// Consumer replays records from a stream in position order.
type Consumer interface {
	// Subscribe starts delivery and returns the subscription. The message
	// channel is closed when the context is cancelled. Caller is
	// responsible for calling Ack/Nak/Term on each message.
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Subscription is the result of Consumer.Subscribe.
type Subscription struct {
	// Messages delivers retained and new records in position order.
	Messages <-chan Message

	// Backlog is the number of retained records past the start position
	// that matched the filter at subscribe time. Zero means the consumer
	// started caught up.
	Backlog uint64
}

// Provider provides factory methods for appenders and consumers, abstracting
// the underlying broker (NATS JetStream, in-memory) so backends can be
// swapped transparently.
type Provider interface {
	io.Closer

	// NewAppender creates an Appender with the given options.
	NewAppender(opts AppenderOptions) (Appender, error)

	// NewConsumer creates a Consumer with the given options.
	NewConsumer(opts ConsumerOptions) (Consumer, error)
}

// Connectable is an optional interface for providers that must establish a
// connection before use. Memory-based providers don't implement it.
type Connectable interface {
	Connect(ctx context.Context) error
}
