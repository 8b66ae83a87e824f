// internal/logging/level_filter.go
package logging

import (
	"context"
	"log/slog"
)

// LevelFilter drops records below a floor level before they reach the
// wrapped handler. The error log file uses it to keep warn/error entries
// only while the main file takes everything.
type LevelFilter struct {
	next  slog.Handler
	floor slog.Level
}

// NewLevelFilter wraps next so that only records at or above floor pass.
func NewLevelFilter(next slog.Handler, floor slog.Level) *LevelFilter {
	return &LevelFilter{next: next, floor: floor}
}

// Enabled is false below the floor; above it the wrapped handler decides.
func (f *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.floor && f.next.Enabled(ctx, level)
}

func (f *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < f.floor {
		return nil
	}
	return f.next.Handle(ctx, r)
}

func (f *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelFilter{next: f.next.WithAttrs(attrs), floor: f.floor}
}

func (f *LevelFilter) WithGroup(name string) slog.Handler {
	return &LevelFilter{next: f.next.WithGroup(name), floor: f.floor}
}
