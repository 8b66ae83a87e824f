package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFromInt(t *testing.T) {
	tests := []struct {
		name string
		in   int32
		want CollabKind
	}{
		{"document", 0, KindDocument},
		{"database", 1, KindDatabase},
		{"workspace database", 2, KindWorkspaceDatabase},
		{"folder", 3, KindFolder},
		{"user awareness", 4, KindUserAwareness},
		{"future kind maps to unknown", 42, KindUnknown},
		{"negative maps to unknown", -7, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindFromInt(tt.in))
		})
	}
}

func TestCollabKindIsValid(t *testing.T) {
	assert.True(t, KindDocument.IsValid())
	assert.True(t, KindUserAwareness.IsValid())
	assert.False(t, KindUnknown.IsValid())
	assert.False(t, CollabKind(99).IsValid())
}

func TestActorOriginRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		origin ActorOrigin
		text   string
	}{
		{"empty", EmptyOrigin(), ""},
		{"server", ServerOrigin(), "server"},
		{"client", ClientOrigin(42, "device-1"), "client:42:device-1"},
		{"client with colon in device", ClientOrigin(7, "a:b"), "client:7:a:b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.origin.String())
			parsed, err := ParseActorOrigin(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.origin, parsed)
		})
	}
}

func TestParseActorOriginErrors(t *testing.T) {
	for _, s := range []string{"client:", "client:abc:dev", "client:42", "robot"} {
		_, err := ParseActorOrigin(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestUpdateFlags(t *testing.T) {
	var f UpdateFlags
	assert.False(t, f.IsFullState())
	f |= FlagFullState
	assert.True(t, f.IsFullState())

	// Unknown bits are carried through.
	f = UpdateFlags(0x80) | FlagFullState
	assert.True(t, f.IsFullState())
	assert.Equal(t, UpdateFlags(0x81), f)
}
