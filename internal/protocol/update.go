// Package protocol defines the wire form of one update-log record and the
// codec between that form and the typed UpdateEvent consumed by the sync
// and gateway layers. Encoding and decoding are pure transforms; the codec
// never inspects the CRDT payload.
package protocol

import (
	"fmt"
	"strconv"

	"collabstream/internal/collab"
)

// Header field names of a log record. The payload travels as the record
// body; the position is the broker-assigned message id.
const (
	FieldObjectID = "oid"
	FieldKind     = "ct"
	FieldSender   = "sender"
	FieldFlags    = "flags"
	FieldData     = "data"
	// FieldPosition is not a header; it names the broker message id in
	// MalformedRecordError.
	FieldPosition = "position"
)

// UpdateEvent is the unit of propagation between an authoring session and
// the subscribers of an object.
type UpdateEvent struct {
	// Position is the record's broker-assigned place in the object's log.
	// Strictly increasing in delivery order within one object.
	Position collab.Rid
	// Sender is the actor that authored the update.
	Sender collab.ActorOrigin
	// ObjectID identifies the object the update belongs to.
	ObjectID collab.ObjectID
	// Kind selects the validation/decoding schema for the payload.
	Kind collab.CollabKind
	// Flags carries auxiliary semantics such as full-state snapshots.
	Flags collab.UpdateFlags
	// Payload is an opaque CRDT delta or snapshot.
	Payload []byte
}

// MalformedRecordError reports a record that cannot be decoded. Field names
// the missing or unparsable field. Decoding must fail loudly rather than
// default: a silently defaulted sender or object id would corrupt ordering
// and attribution guarantees downstream.
type MalformedRecordError struct {
	Field string
	Cause error
}

func (e *MalformedRecordError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("malformed update record: missing field %q", e.Field)
	}
	return fmt.Sprintf("malformed update record: field %q: %v", e.Field, e.Cause)
}

func (e *MalformedRecordError) Unwrap() error { return e.Cause }

func missing(field string) error {
	return &MalformedRecordError{Field: field}
}

func malformed(field string, cause error) error {
	return &MalformedRecordError{Field: field, Cause: cause}
}

// Decode parses one raw log record into an UpdateEvent. msgID is the
// broker-assigned message id, header the record's field map and data the
// record body. Every one of object id, kind, sender and body must be
// present; flags is optional and defaults to the empty bitset so records
// written before flags existed still decode. An unrecognized kind integer
// decodes to KindUnknown rather than failing.
func Decode(msgID string, header map[string]string, data []byte) (UpdateEvent, error) {
	pos, err := collab.ParseRid(msgID)
	if err != nil {
		return UpdateEvent{}, malformed(FieldPosition, err)
	}

	rawOID, ok := header[FieldObjectID]
	if !ok {
		return UpdateEvent{}, missing(FieldObjectID)
	}
	oid, err := collab.ParseObjectID(rawOID)
	if err != nil {
		return UpdateEvent{}, malformed(FieldObjectID, err)
	}

	rawKind, ok := header[FieldKind]
	if !ok {
		return UpdateEvent{}, missing(FieldKind)
	}
	kindInt, err := strconv.ParseInt(rawKind, 10, 32)
	if err != nil {
		return UpdateEvent{}, malformed(FieldKind, err)
	}

	rawSender, ok := header[FieldSender]
	if !ok {
		return UpdateEvent{}, missing(FieldSender)
	}
	sender, err := collab.ParseActorOrigin(rawSender)
	if err != nil {
		return UpdateEvent{}, malformed(FieldSender, err)
	}

	var flags collab.UpdateFlags
	if rawFlags, ok := header[FieldFlags]; ok {
		v, err := strconv.ParseUint(rawFlags, 10, 8)
		if err != nil {
			return UpdateEvent{}, malformed(FieldFlags, err)
		}
		flags = collab.UpdateFlags(v)
	}

	if data == nil {
		return UpdateEvent{}, missing(FieldData)
	}

	return UpdateEvent{
		Position: pos,
		Sender:   sender,
		ObjectID: oid,
		Kind:     collab.KindFromInt(int32(kindInt)),
		Flags:    flags,
		Payload:  data,
	}, nil
}

// Encode renders an event into the header map and body of a log record.
// The position is omitted: the broker assigns it on append. The flags
// field is only written when non-empty, keeping records readable by
// consumers that predate it.
func Encode(ev UpdateEvent) (map[string]string, []byte) {
	header := map[string]string{
		FieldObjectID: ev.ObjectID.String(),
		FieldKind:     strconv.FormatInt(int64(ev.Kind), 10),
		FieldSender:   ev.Sender.String(),
	}
	if ev.Flags != 0 {
		header[FieldFlags] = strconv.FormatUint(uint64(ev.Flags), 10)
	}
	data := ev.Payload
	if data == nil {
		data = []byte{}
	}
	return header, data
}
