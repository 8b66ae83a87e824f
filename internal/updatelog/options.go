package updatelog

import (
	"time"

	"collabstream/internal/collab"
)

// StorageType defines the storage backend for streams.
type StorageType int

const (
	// MemoryStorage stores records in memory (default).
	MemoryStorage StorageType = iota
	// FileStorage stores records on disk.
	FileStorage
)

// AppenderOptions configures appender behavior.
type AppenderOptions struct {
	// StreamName is the name of the stream to append to.
	StreamName string

	// SubjectPrefix is prepended to all subjects.
	SubjectPrefix string

	// RetryAttempts is the number of retry attempts for appending.
	// 0 means no retry (default).
	RetryAttempts int

	// Storage is the storage type for the stream.
	Storage StorageType

	// OnAppend is called after each append attempt (for metrics).
	OnAppend func(subject string, err error, latency time.Duration)
}

// ConsumerOptions configures consumer behavior.
type ConsumerOptions struct {
	// StreamName is the name of the stream to consume from.
	StreamName string

	// ConsumerName is the durable consumer name.
	ConsumerName string

	// FilterSubject filters records by subject pattern.
	FilterSubject string

	// ChannelBufSize is the buffer size for the message channel.
	ChannelBufSize int

	// StartAfter resumes delivery strictly after the given checkpoint.
	// Nil delivers every retained record. If the record following the
	// checkpoint is no longer retained, Subscribe fails with
	// ErrCheckpointExpired.
	StartAfter *collab.Rid

	// Storage is the storage type for the stream.
	Storage StorageType
}

// DefaultConsumerOptions returns ConsumerOptions with sensible defaults.
func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		ChannelBufSize: 100,
	}
}
