// internal/logging/text_handler.go
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TextHandler renders records as single lines:
//
//	<RFC3339 time>: [<LEVEL>] <message> key=value ...
//
// Group names prefix attribute keys dot-separated; values with spaces or
// escapes are quoted. The mutex serializes whole lines onto the writer.
type TextHandler struct {
	mu     sync.Mutex
	out    io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewTextHandler writes formatted lines to w. Only opts.Level is honored;
// when nil the handler defaults to info.
func NewTextHandler(w io.Writer, opts *slog.HandlerOptions) *TextHandler {
	h := &TextHandler{out: w, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *TextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	floor := slog.LevelInfo
	if h.level != nil {
		floor = h.level.Level()
	}
	return level >= floor
}

func (h *TextHandler) Handle(ctx context.Context, r slog.Record) error {
	line := make([]byte, 0, 256)
	line = r.Time.AppendFormat(line, time.RFC3339)
	line = append(line, ": ["...)
	line = append(line, r.Level.String()...)
	line = append(line, "] "...)
	line = append(line, r.Message...)

	for _, a := range h.attrs {
		line = h.appendAttr(line, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		line = h.appendAttr(line, a)
		return true
	})
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *TextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TextHandler{
		out:    h.out,
		level:  h.level,
		attrs:  merged,
		groups: append([]string(nil), h.groups...),
	}
}

func (h *TextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &TextHandler{
		out:    h.out,
		level:  h.level,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append(append([]string(nil), h.groups...), name),
	}
}

func (h *TextHandler) appendAttr(line []byte, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return line
	}

	line = append(line, ' ')
	for _, g := range h.groups {
		line = append(line, g...)
		line = append(line, '.')
	}
	line = append(line, a.Key...)
	line = append(line, '=')
	return appendValue(line, a.Value)
}

func appendValue(line []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendQuoted(line, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(line, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(line, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(line, v.Float64(), 'g', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(line, v.Bool())
	case slog.KindDuration:
		return append(line, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(line, time.RFC3339)
	case slog.KindGroup:
		attrs := v.Group()
		if len(attrs) == 0 {
			return line
		}
		line = append(line, '{')
		for i, a := range attrs {
			if i > 0 {
				line = append(line, ' ')
			}
			line = append(line, a.Key...)
			line = append(line, '=')
			line = appendValue(line, a.Value)
		}
		return append(line, '}')
	default:
		return fmt.Appendf(line, "%+v", v.Any())
	}
}

// appendQuoted writes s bare when it is a single clean token, quoted with
// backslash escapes otherwise.
func appendQuoted(line []byte, s string) []byte {
	if !strings.ContainsAny(s, " \"\n\t\\") {
		return append(line, s...)
	}

	line = append(line, '"')
	for _, r := range s {
		switch r {
		case '"':
			line = append(line, '\\', '"')
		case '\\':
			line = append(line, '\\', '\\')
		case '\n':
			line = append(line, '\\', 'n')
		case '\t':
			line = append(line, '\\', 't')
		default:
			line = append(line, string(r)...)
		}
	}
	return append(line, '"')
}
