package gateway

import "encoding/json"

// Message types
const (
	TypeOpen     = "open"
	TypeOpenAck  = "open_ack"
	TypeClose    = "close"
	TypeCloseAck = "close_ack"
	TypeUpdate   = "update"
	TypeError    = "error"
)

// Error codes
const (
	CodeCheckpointExpired = "checkpoint_expired"
	CodeMalformedMessage  = "malformed_message"
	CodeInternalError     = "internal_error"
)

// BaseMessage is the envelope for all messages.
type BaseMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OpenPayload subscribes the connection to one object's update stream.
// Checkpoint, when set, resumes delivery strictly after that position; an
// unretained checkpoint is answered with a checkpoint_expired error so the
// client can fall back to fetching a snapshot.
type OpenPayload struct {
	ObjectID   string `json:"object_id"`
	Kind       int32  `json:"kind"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

// OpenAckPayload confirms a subscription. Backlog is the number of events
// retained past the checkpoint at subscription time.
type OpenAckPayload struct {
	ObjectID string `json:"object_id"`
	Backlog  uint64 `json:"backlog"`
}

// ClosePayload drops one object subscription.
type ClosePayload struct {
	ObjectID string `json:"object_id"`
}

// UpdatePayload carries one update event. Client to server it holds a
// locally authored delta; server to client it additionally carries the
// assigned position and the sender.
type UpdatePayload struct {
	ObjectID string `json:"object_id"`
	Kind     int32  `json:"kind"`
	Flags    uint8  `json:"flags,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Position string `json:"position,omitempty"`
	Data     []byte `json:"data"`
}

// ErrorPayload reports a per-request failure without closing the
// connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.Marshal(v) // Should not fail for internal types
	return b
}
