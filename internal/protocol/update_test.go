package protocol

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabstream/internal/collab"
)

func validHeader(oid collab.ObjectID) map[string]string {
	return map[string]string{
		FieldObjectID: oid.String(),
		FieldKind:     "0",
		FieldSender:   "client:42:device-1",
		FieldFlags:    "1",
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	oid := uuid.New()
	ev, err := Decode("1693576800000-3", validHeader(oid), []byte("delta"))
	require.NoError(t, err)

	assert.Equal(t, collab.Rid{Timestamp: 1693576800000, Seq: 3}, ev.Position)
	assert.Equal(t, oid, ev.ObjectID)
	assert.Equal(t, collab.KindDocument, ev.Kind)
	assert.Equal(t, collab.ClientOrigin(42, "device-1"), ev.Sender)
	assert.True(t, ev.Flags.IsFullState())
	assert.Equal(t, []byte("delta"), ev.Payload)

	header, data := Encode(ev)
	back, err := Decode(ev.Position.String(), header, data)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}

func TestDecodeFlagsOptional(t *testing.T) {
	oid := uuid.New()
	header := validHeader(oid)
	delete(header, FieldFlags)

	ev, err := Decode("1-1", header, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, collab.UpdateFlags(0), ev.Flags)
}

func TestDecodeUnknownKind(t *testing.T) {
	header := validHeader(uuid.New())
	header[FieldKind] = "900"

	ev, err := Decode("1-1", header, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, collab.KindUnknown, ev.Kind)
}

func TestDecodeMissingFields(t *testing.T) {
	oid := uuid.New()
	tests := []struct {
		name   string
		mutate func(map[string]string)
		data   []byte
		field  string
	}{
		{"missing oid", func(h map[string]string) { delete(h, FieldObjectID) }, []byte("x"), FieldObjectID},
		{"missing kind", func(h map[string]string) { delete(h, FieldKind) }, []byte("x"), FieldKind},
		{"missing sender", func(h map[string]string) { delete(h, FieldSender) }, []byte("x"), FieldSender},
		{"missing data", func(h map[string]string) {}, nil, FieldData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := validHeader(oid)
			tt.mutate(header)
			_, err := Decode("1-1", header, tt.data)
			require.Error(t, err)

			var malformed *MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.field, malformed.Field)
		})
	}
}

func TestDecodeMalformedValues(t *testing.T) {
	oid := uuid.New()
	tests := []struct {
		name   string
		id     string
		mutate func(map[string]string)
		field  string
	}{
		{"bad position", "not-a-rid", func(h map[string]string) {}, FieldPosition},
		{"bad oid", "1-1", func(h map[string]string) { h[FieldObjectID] = "nope" }, FieldObjectID},
		{"bad kind", "1-1", func(h map[string]string) { h[FieldKind] = "abc" }, FieldKind},
		{"bad sender", "1-1", func(h map[string]string) { h[FieldSender] = "martian" }, FieldSender},
		{"bad flags", "1-1", func(h map[string]string) { h[FieldFlags] = "999" }, FieldFlags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := validHeader(oid)
			tt.mutate(header)
			_, err := Decode(tt.id, header, []byte("x"))
			require.Error(t, err)

			var malformed *MalformedRecordError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.field, malformed.Field)
			assert.Error(t, malformed.Cause)
		})
	}
}

func TestEncodeOmitsEmptyFlags(t *testing.T) {
	header, data := Encode(UpdateEvent{
		ObjectID: uuid.New(),
		Kind:     collab.KindFolder,
		Sender:   collab.ServerOrigin(),
	})
	_, hasFlags := header[FieldFlags]
	assert.False(t, hasFlags)
	assert.NotNil(t, data)
}
