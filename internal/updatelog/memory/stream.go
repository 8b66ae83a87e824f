package memory

import (
	"context"
	"sync"
	"time"

	"collabstream/internal/collab"
)

// record is one retained log entry.
type record struct {
	subject string
	header  map[string]string
	data    []byte
	pos     collab.Rid
}

// stream is an ordered, retained record log. Positions are assigned on
// append: the timestamp is the engine clock in unix millis, never moving
// backwards, and the sequence is contiguous and strictly increasing, so
// positions form a strict total order.
type stream struct {
	mu      sync.Mutex
	records []record
	lastSeq uint64
	lastTS  uint64
	notify  chan struct{} // closed and replaced on every append
}

func newStream() *stream {
	return &stream{notify: make(chan struct{})}
}

// append assigns the next position and retains the record.
func (s *stream) append(now time.Time, subject string, header map[string]string, data []byte) collab.Rid {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := uint64(now.UnixMilli())
	if ts < s.lastTS {
		ts = s.lastTS
	}
	s.lastTS = ts
	s.lastSeq++

	pos := collab.Rid{Timestamp: ts, Seq: s.lastSeq}
	s.records = append(s.records, record{
		subject: subject,
		header:  header,
		data:    data,
		pos:     pos,
	})

	close(s.notify)
	s.notify = make(chan struct{})
	return pos
}

// firstSeq returns the sequence of the oldest retained record, or
// lastSeq+1 when nothing is retained.
func (s *stream) firstSeqLocked() uint64 {
	if len(s.records) == 0 {
		return s.lastSeq + 1
	}
	return s.records[0].pos.Seq
}

// bounds returns (firstSeq, lastSeq) under the lock.
func (s *stream) bounds() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstSeqLocked(), s.lastSeq
}

// trimBefore drops every retained record at or before pos, simulating
// broker compaction.
func (s *stream) trimBefore(pos collab.Rid) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := 0
	for i < len(s.records) && s.records[i].pos.Compare(pos) <= 0 {
		i++
	}
	s.records = s.records[i:]
}

// pendingFrom counts retained records with sequence >= cursor matching the
// pattern.
func (s *stream) pendingFrom(cursor uint64, pattern string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n uint64
	for _, rec := range s.records {
		if rec.pos.Seq >= cursor && matchSubject(pattern, rec.subject) {
			n++
		}
	}
	return n
}

// next blocks until a record with sequence >= cursor matching the pattern
// is retained, then returns it together with the count of matching records
// still pending after it and the cursor for the following call. Returns
// ok=false when the context is cancelled.
func (s *stream) next(ctx context.Context, cursor uint64, pattern string) (rec record, pending uint64, nextCursor uint64, ok bool) {
	for {
		s.mu.Lock()
		// Records below the retention floor are gone; skip forward.
		if first := s.firstSeqLocked(); cursor < first {
			cursor = first
		}
		found := false
		for _, r := range s.records {
			if r.pos.Seq < cursor || !matchSubject(pattern, r.subject) {
				continue
			}
			if !found {
				rec = r
				nextCursor = r.pos.Seq + 1
				found = true
				continue
			}
			pending++
		}
		if found {
			s.mu.Unlock()
			return rec, pending, nextCursor, true
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return record{}, 0, cursor, false
		}
	}
}
