package logging

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lineRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T[0-9:+\-Z.]+: \[(\w+)\] (.+)\n$`)

func TestTextHandlerLineFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, nil)

	r := slog.NewRecord(time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC), slog.LevelInfo, "sync finished", 0)
	r.AddAttrs(slog.String("object_id", "o1"), slog.Int("backlog", 0))
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Equal(t, "2026-08-29T10:30:00Z: [INFO] sync finished object_id=o1 backlog=0\n", buf.String())
}

func TestTextHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, nil)

	r := record(slog.LevelWarn, "append retried")
	r.AddAttrs(slog.String("error", `merge rejected: bad "delta"`))
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), `error="merge rejected: bad \"delta\""`)
	assert.Regexp(t, lineRe, buf.String())
}

func TestTextHandlerValueKinds(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, nil)

	r := record(slog.LevelInfo, "scan complete")
	r.AddAttrs(
		slog.Uint64("seq", 42),
		slog.Bool("indexed", true),
		slog.Float64("ratio", 0.5),
		slog.Duration("took", 1500*time.Millisecond),
		slog.Group("object", slog.String("kind", "document"), slog.Int("rev", 3)),
	)
	require.NoError(t, h.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "seq=42")
	assert.Contains(t, out, "indexed=true")
	assert.Contains(t, out, "ratio=0.5")
	assert.Contains(t, out, "took=1.5s")
	assert.Contains(t, out, "object={kind=document rev=3}")
}

func TestTextHandlerGroupsPrefixKeys(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewTextHandler(&buf, nil)
	h = h.WithGroup("indexer").WithAttrs([]slog.Attr{slog.String("workspace", "w1")})

	require.NoError(t, h.Handle(context.Background(), record(slog.LevelInfo, "backlog drained")))

	assert.Contains(t, buf.String(), "indexer.workspace=w1")
}

func TestTextHandlerLevelFloor(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))

	// A nil-options handler defaults to info.
	d := NewTextHandler(&buf, nil)
	assert.False(t, d.Enabled(ctx, slog.LevelDebug))
	assert.True(t, d.Enabled(ctx, slog.LevelInfo))
}

func TestTextHandlerThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTextHandler(&buf, nil))

	logger.Info("update appended", "position", "1756461000000-7")

	assert.Regexp(t, lineRe, buf.String())
	assert.Contains(t, buf.String(), "[INFO] update appended position=1756461000000-7")
}
