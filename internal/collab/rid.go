package collab

import (
	"fmt"
	"strconv"
	"strings"
)

// Rid is the revision position of one record in an object's update log.
// The log store assigns it on append: Timestamp is the broker receive time
// in unix milliseconds and Seq breaks ties within the stream, so positions
// within a single object's log form a strict total order. Beyond ordering
// no arithmetic meaning is assumed.
//
// Subscribers persist their last applied Rid as a checkpoint; resuming a
// subscription replays everything strictly greater than it.
type Rid struct {
	Timestamp uint64
	Seq       uint64
}

// ParseRid parses the canonical "<millis>-<seq>" form.
func ParseRid(s string) (Rid, error) {
	i := strings.IndexByte(s, '-')
	if i < 0 {
		return Rid{}, fmt.Errorf("rid %q: missing '-' separator", s)
	}
	ts, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return Rid{}, fmt.Errorf("rid %q: bad timestamp: %w", s, err)
	}
	seq, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Rid{}, fmt.Errorf("rid %q: bad sequence: %w", s, err)
	}
	return Rid{Timestamp: ts, Seq: seq}, nil
}

// String renders the canonical "<millis>-<seq>" form.
func (r Rid) String() string {
	return strconv.FormatUint(r.Timestamp, 10) + "-" + strconv.FormatUint(r.Seq, 10)
}

// Compare returns -1 if r < other, 0 if equal, 1 if r > other.
func (r Rid) Compare(other Rid) int {
	if r.Timestamp < other.Timestamp {
		return -1
	}
	if r.Timestamp > other.Timestamp {
		return 1
	}
	if r.Seq < other.Seq {
		return -1
	}
	if r.Seq > other.Seq {
		return 1
	}
	return 0
}

// Before reports whether r is strictly less than other.
func (r Rid) Before(other Rid) bool { return r.Compare(other) < 0 }

// IsZero reports whether the rid is unset.
func (r Rid) IsZero() bool { return r.Timestamp == 0 && r.Seq == 0 }
