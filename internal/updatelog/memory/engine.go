package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"collabstream/internal/collab"
	"collabstream/internal/updatelog"
)

// Compile-time check that Engine implements updatelog.Provider
var _ updatelog.Provider = (*Engine)(nil)

// Engine provides the public API for the in-memory update log.
// It mirrors the NATS JetStream backend for consistent usage.
type Engine struct {
	mu      sync.Mutex
	streams map[string]*stream
	closed  atomic.Bool
	now     func() time.Time // injectable for tests
}

// New creates a new in-memory update log engine.
func New() *Engine {
	return &Engine{
		streams: make(map[string]*stream),
		now:     time.Now,
	}
}

// stream returns the named stream, creating it on first use.
func (e *Engine) stream(name string) *stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[name]
	if !ok {
		s = newStream()
		e.streams[name] = s
	}
	return s
}

// NewAppender creates a new in-memory Appender.
func (e *Engine) NewAppender(opts updatelog.AppenderOptions) (updatelog.Appender, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryAppender{engine: e, opts: opts}, nil
}

// NewConsumer creates a new in-memory Consumer.
func (e *Engine) NewConsumer(opts updatelog.ConsumerOptions) (updatelog.Consumer, error) {
	if e.IsClosed() {
		return nil, ErrEngineClosed
	}
	return &memoryConsumer{engine: e, opts: opts}, nil
}

// TrimBefore drops every record of the named stream at or before pos,
// simulating broker compaction. Consumers resuming from a checkpoint older
// than pos will fail with ErrCheckpointExpired.
func (e *Engine) TrimBefore(streamName string, pos collab.Rid) {
	e.stream(streamName).trimBefore(pos)
}

// Close shuts down the engine. Active subscriptions drain when their
// contexts are cancelled.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// IsClosed returns true if the engine is closed.
func (e *Engine) IsClosed() bool {
	return e.closed.Load()
}
