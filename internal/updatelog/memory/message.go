package memory

import (
	"context"
	"sync"
	"time"

	"collabstream/internal/collab"
	"collabstream/internal/updatelog"
)

// memoryMessage implements updatelog.Message for in-memory delivery.
type memoryMessage struct {
	rec          record
	numDelivered uint64
	numPending   uint64
	stream       string
	consumer     string

	// For redelivery on Nak
	redeliveryCh chan updatelog.Message
	ctx          context.Context

	mu     sync.Mutex
	acked  bool
	termed bool
}

// Data returns the record body.
func (m *memoryMessage) Data() []byte {
	return m.rec.data
}

// Header returns the record's field map.
func (m *memoryMessage) Header() map[string]string {
	return m.rec.header
}

// Subject returns the record subject.
func (m *memoryMessage) Subject() string {
	return m.rec.subject
}

// ID returns the broker message id in canonical Rid text form.
func (m *memoryMessage) ID() string {
	return m.rec.pos.String()
}

// Position returns the broker-assigned revision position.
func (m *memoryMessage) Position() collab.Rid {
	return m.rec.pos
}

// Ack acknowledges successful processing.
func (m *memoryMessage) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acked || m.termed {
		return nil // Idempotent
	}
	m.acked = true
	return nil
}

// Nak signals processing failure and requeues immediately. The send is
// non-blocking: if the delivery channel is full the redelivery is dropped,
// matching at-most-once requeue of the broker backend.
func (m *memoryMessage) Nak() error {
	if !m.startRedelivery() {
		return nil
	}
	m.requeue(false)
	return nil
}

// NakWithDelay requeues the message after a delay.
func (m *memoryMessage) NakWithDelay(delay time.Duration) error {
	if !m.startRedelivery() {
		return nil
	}
	time.AfterFunc(delay, func() {
		m.requeue(true)
	})
	return nil
}

// startRedelivery records a delivery attempt unless the message already
// reached a terminal state.
func (m *memoryMessage) startRedelivery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acked || m.termed {
		return false
	}
	m.numDelivered++
	return true
}

// requeue offers the message back to its delivery channel. The channel is
// closed when the subscription drains, so the send races with close; the
// recover covers exactly that send.
func (m *memoryMessage) requeue(block bool) {
	defer func() {
		recover()
	}()

	if block {
		select {
		case m.redeliveryCh <- m:
		case <-m.ctx.Done():
		}
		return
	}
	select {
	case m.redeliveryCh <- m:
	case <-m.ctx.Done():
	default:
	}
}

// Term terminates the message (no redelivery).
func (m *memoryMessage) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acked || m.termed {
		return nil
	}
	m.termed = true
	return nil
}

// Metadata returns delivery metadata.
func (m *memoryMessage) Metadata() (updatelog.MessageMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return updatelog.MessageMetadata{
		NumDelivered: m.numDelivered,
		NumPending:   m.numPending,
		Timestamp:    time.UnixMilli(int64(m.rec.pos.Timestamp)),
		Subject:      m.rec.subject,
		Stream:       m.stream,
		Consumer:     m.consumer,
	}, nil
}
