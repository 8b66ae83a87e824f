package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRidRoundTrip(t *testing.T) {
	tests := []string{"0-0", "1693576800000-0", "1693576800000-17", "18446744073709551615-1"}
	for _, s := range tests {
		rid, err := ParseRid(s)
		require.NoError(t, err)
		assert.Equal(t, s, rid.String())
	}
}

func TestParseRidErrors(t *testing.T) {
	for _, s := range []string{"", "123", "a-1", "1-b", "-5", "1-"} {
		_, err := ParseRid(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestRidCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Rid
		want int
	}{
		{"equal", Rid{1, 1}, Rid{1, 1}, 0},
		{"earlier timestamp", Rid{1, 9}, Rid{2, 0}, -1},
		{"later timestamp", Rid{3, 0}, Rid{2, 9}, 1},
		{"same timestamp lower seq", Rid{5, 1}, Rid{5, 2}, -1},
		{"same timestamp higher seq", Rid{5, 3}, Rid{5, 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
			assert.Equal(t, -tt.want, tt.b.Compare(tt.a))
		})
	}
}

func TestRidBeforeAndZero(t *testing.T) {
	assert.True(t, Rid{}.IsZero())
	assert.False(t, Rid{Timestamp: 1}.IsZero())
	assert.True(t, Rid{1, 0}.Before(Rid{1, 1}))
	assert.False(t, Rid{1, 1}.Before(Rid{1, 1}))
}
