package nats

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"collabstream/internal/collab"
	"collabstream/internal/updatelog"
)

// natsMessage wraps a jetstream.Msg to implement updatelog.Message.
type natsMessage struct {
	msg    jetstream.Msg
	pos    collab.Rid
	header map[string]string
}

// WrapMessage wraps a jetstream.Msg as an updatelog.Message. The position
// is derived from the broker metadata: stream receive time in millis plus
// the stream sequence.
func WrapMessage(msg jetstream.Msg) updatelog.Message {
	var pos collab.Rid
	if md, err := msg.Metadata(); err == nil {
		pos = collab.Rid{
			Timestamp: uint64(md.Timestamp.UnixMilli()),
			Seq:       md.Sequence.Stream,
		}
	}

	var header map[string]string
	if h := msg.Headers(); len(h) > 0 {
		header = make(map[string]string, len(h))
		for k := range h {
			header[k] = h.Get(k)
		}
	}

	return &natsMessage{msg: msg, pos: pos, header: header}
}

// Data returns the record body.
func (m *natsMessage) Data() []byte {
	return m.msg.Data()
}

// Header returns the record's field map.
func (m *natsMessage) Header() map[string]string {
	return m.header
}

// Subject returns the record subject.
func (m *natsMessage) Subject() string {
	return m.msg.Subject()
}

// ID returns the broker message id in canonical Rid text form.
func (m *natsMessage) ID() string {
	return m.pos.String()
}

// Position returns the broker-assigned revision position.
func (m *natsMessage) Position() collab.Rid {
	return m.pos
}

// Ack acknowledges successful processing.
func (m *natsMessage) Ack() error {
	return m.msg.Ack()
}

// Nak signals processing failure, requesting redelivery.
func (m *natsMessage) Nak() error {
	return m.msg.Nak()
}

// NakWithDelay requests redelivery after a delay.
func (m *natsMessage) NakWithDelay(delay time.Duration) error {
	return m.msg.NakWithDelay(delay)
}

// Term terminates the message (no redelivery).
func (m *natsMessage) Term() error {
	return m.msg.Term()
}

// Metadata returns delivery metadata.
func (m *natsMessage) Metadata() (updatelog.MessageMetadata, error) {
	md, err := m.msg.Metadata()
	if err != nil {
		return updatelog.MessageMetadata{}, err
	}
	return updatelog.MessageMetadata{
		NumDelivered: md.NumDelivered,
		NumPending:   md.NumPending,
		Timestamp:    md.Timestamp,
		Subject:      m.msg.Subject(),
		Stream:       md.Stream,
		Consumer:     md.Consumer,
	}, nil
}
