package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dedupAttrInt(r slog.Record, key string) (int, bool) {
	var v int
	var found bool
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v = int(a.Value.Int64())
			found = true
		}
		return true
	})
	return v, found
}

func warnRecord(msg string, attrs ...slog.Attr) slog.Record {
	r := record(slog.LevelWarn, msg)
	r.AddAttrs(attrs...)
	return r
}

func TestDedupHandlerCollapsesRepeats(t *testing.T) {
	sink := &recordSink{}
	h := NewDedupHandlerWithConfig(sink, DedupHandlerConfig{BatchSize: 100, FlushTimeout: time.Minute})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Handle(ctx, warnRecord("append retried", slog.String("object_id", "o1"))))
	}
	require.NoError(t, h.Handle(ctx, warnRecord("apply rejected")))
	require.NoError(t, h.Close())

	require.Equal(t, []string{"append retried", "apply rejected"}, sink.messages())

	n, ok := dedupAttrInt(sink.records[0], "repeated_count")
	require.True(t, ok, "collapsed record must carry the repeat count")
	assert.Equal(t, 3, n)

	_, ok = dedupAttrInt(sink.records[1], "repeated_count")
	assert.False(t, ok, "single record must not carry a repeat count")
}

func TestDedupHandlerDistinctAttrsAreSeparate(t *testing.T) {
	sink := &recordSink{}
	h := NewDedupHandlerWithConfig(sink, DedupHandlerConfig{BatchSize: 100, FlushTimeout: time.Minute})

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, warnRecord("append retried", slog.String("object_id", "o1"))))
	require.NoError(t, h.Handle(ctx, warnRecord("append retried", slog.String("object_id", "o2"))))
	require.NoError(t, h.Close())

	assert.Equal(t, []string{"append retried", "append retried"}, sink.messages())
}

func TestDedupHandlerFlushesOnTicker(t *testing.T) {
	sink := &recordSink{}
	h := NewDedupHandlerWithConfig(sink, DedupHandlerConfig{BatchSize: 100, FlushTimeout: 20 * time.Millisecond})
	defer h.Close()

	require.NoError(t, h.Handle(context.Background(), warnRecord("slow embed call")))

	require.Eventually(t, func() bool {
		return len(sink.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDedupHandlerFlushesWhenBatchFull(t *testing.T) {
	sink := &recordSink{}
	h := NewDedupHandlerWithConfig(sink, DedupHandlerConfig{BatchSize: 2, FlushTimeout: time.Minute})
	defer h.Close()

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, warnRecord("first warning")))
	require.NoError(t, h.Handle(ctx, warnRecord("second warning")))

	assert.Equal(t, []string{"first warning", "second warning"}, sink.messages())
}

func TestDedupHandlerDelegatesEnabled(t *testing.T) {
	h := NewDedupHandlerWithConfig(NewLevelFilter(&recordSink{}, slog.LevelWarn), DefaultDedupHandlerConfig())
	defer h.Close()

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}
