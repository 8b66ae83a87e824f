package syncer

// Handle is the CRDT engine boundary for one replica. The controller never
// inspects delta bytes; it only routes them. Implementations are supplied
// by the embedding application (a CRDT document, database, folder, ...).
//
// The controller serializes all calls on one Handle, but the same delta may
// be handed to ApplyUpdate more than once: the log transport is
// at-least-once and a session observes echoes of its own appends.
// ApplyUpdate must therefore be idempotent under duplicate application.
type Handle interface {
	// ApplyUpdate merges a remote delta (or full-state snapshot) into the
	// local state.
	ApplyUpdate(data []byte) error

	// CaptureUpdate drains the pending local change as an encoded delta.
	// It returns nil when there is nothing to send.
	CaptureUpdate() ([]byte, error)

	// Project returns a structured value view of the current local state.
	Project() (map[string]any, error)
}
