// Package collab defines the shared identity and typing vocabulary for
// collaborative objects: object/workspace ids, the structural kind of an
// object's CRDT state, the origin of an update, and the update flag bitset.
// All streamed and stored updates are tagged with these values.
package collab

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ObjectID uniquely identifies a collaborative object (document, database,
// folder, awareness record). Stable for the object's lifetime, never reused.
type ObjectID = uuid.UUID

// WorkspaceID identifies the workspace an object belongs to.
type WorkspaceID = uuid.UUID

// ParseObjectID parses the canonical uuid text form of an object id.
func ParseObjectID(s string) (ObjectID, error) {
	return uuid.Parse(s)
}

// ParseWorkspaceID parses the canonical uuid text form of a workspace id.
func ParseWorkspaceID(s string) (WorkspaceID, error) {
	return uuid.Parse(s)
}

// CollabKind tags the structural schema an object's CRDT state follows.
// The integer mapping is part of the wire and storage format and must not
// be reordered.
type CollabKind int32

const (
	KindDocument          CollabKind = 0
	KindDatabase          CollabKind = 1
	KindWorkspaceDatabase CollabKind = 2
	KindFolder            CollabKind = 3
	KindUserAwareness     CollabKind = 4

	// KindUnknown is the decode result for integers this version does not
	// recognize. Records tagged with a newer kind still flow through the
	// log untouched; only kind-specific validation is skipped.
	KindUnknown CollabKind = -1
)

// KindFromInt decodes an integer-coded kind. Unrecognized values map to
// KindUnknown rather than failing, so newer peers can introduce kinds
// without breaking older consumers.
func KindFromInt(v int32) CollabKind {
	switch CollabKind(v) {
	case KindDocument, KindDatabase, KindWorkspaceDatabase, KindFolder, KindUserAwareness:
		return CollabKind(v)
	default:
		return KindUnknown
	}
}

// IsValid reports whether the kind is one of the known schema kinds.
func (k CollabKind) IsValid() bool {
	return KindFromInt(int32(k)) != KindUnknown
}

func (k CollabKind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindDatabase:
		return "database"
	case KindWorkspaceDatabase:
		return "workspace_database"
	case KindFolder:
		return "folder"
	case KindUserAwareness:
		return "user_awareness"
	default:
		return "unknown"
	}
}

// OriginKind discriminates ActorOrigin variants.
type OriginKind int

const (
	// OriginEmpty marks updates with no provenance, e.g. replays from storage.
	OriginEmpty OriginKind = iota
	// OriginServer marks system-authored updates.
	OriginServer
	// OriginClient ties an update to an authenticated user session.
	OriginClient
)

// ActorOrigin identifies who authored an update. Client origins carry the
// user and device so presence attribution and echo detection work; Empty and
// Server denote provenance-less or system writes.
type ActorOrigin struct {
	Kind     OriginKind
	UID      int64  // set when Kind == OriginClient
	DeviceID string // set when Kind == OriginClient
}

// EmptyOrigin returns the provenance-less origin.
func EmptyOrigin() ActorOrigin { return ActorOrigin{Kind: OriginEmpty} }

// ServerOrigin returns the system-authored origin.
func ServerOrigin() ActorOrigin { return ActorOrigin{Kind: OriginServer} }

// ClientOrigin returns the origin for a specific authenticated session.
func ClientOrigin(uid int64, deviceID string) ActorOrigin {
	return ActorOrigin{Kind: OriginClient, UID: uid, DeviceID: deviceID}
}

const (
	originServerText = "server"
	originClientPfx  = "client:"
)

// String renders the canonical text form: "" for empty, "server", or
// "client:<uid>:<device>". ParseActorOrigin round-trips all three.
func (o ActorOrigin) String() string {
	switch o.Kind {
	case OriginServer:
		return originServerText
	case OriginClient:
		return originClientPfx + strconv.FormatInt(o.UID, 10) + ":" + o.DeviceID
	default:
		return ""
	}
}

// ParseActorOrigin parses the canonical text form produced by String.
func ParseActorOrigin(s string) (ActorOrigin, error) {
	switch {
	case s == "":
		return EmptyOrigin(), nil
	case s == originServerText:
		return ServerOrigin(), nil
	case strings.HasPrefix(s, originClientPfx):
		rest := s[len(originClientPfx):]
		// Device ids may themselves contain ':', so split only once.
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return ActorOrigin{}, fmt.Errorf("malformed client origin %q", s)
		}
		uid, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return ActorOrigin{}, fmt.Errorf("malformed client origin uid %q: %w", parts[0], err)
		}
		return ClientOrigin(uid, parts[1]), nil
	default:
		return ActorOrigin{}, fmt.Errorf("unrecognized actor origin %q", s)
	}
}

// UpdateFlags is a bitset of auxiliary update semantics. Bits this version
// does not define are carried through unmodified.
type UpdateFlags uint8

const (
	// FlagFullState marks the payload as a full-state snapshot rather than
	// an incremental delta.
	FlagFullState UpdateFlags = 1 << 0
)

// Has reports whether all bits of f are set.
func (u UpdateFlags) Has(f UpdateFlags) bool { return u&f == f }

// IsFullState reports whether the payload is a full-state snapshot.
func (u UpdateFlags) IsFullState() bool { return u.Has(FlagFullState) }
