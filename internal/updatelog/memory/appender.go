package memory

import (
	"context"
	"sync/atomic"
	"time"

	"collabstream/internal/updatelog"
)

// memoryAppender implements updatelog.Appender on the in-memory engine.
type memoryAppender struct {
	engine *Engine
	opts   updatelog.AppenderOptions
	closed atomic.Bool
}

// Append assigns the next position in the stream and retains the record.
func (a *memoryAppender) Append(ctx context.Context, subject string, header map[string]string, data []byte) error {
	if a.closed.Load() || a.engine.IsClosed() {
		return ErrEngineClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	fullSubject := subject
	if a.opts.SubjectPrefix != "" {
		fullSubject = a.opts.SubjectPrefix + "." + subject
	}

	// Copy the header so later caller mutations don't alter the log.
	var h map[string]string
	if header != nil {
		h = make(map[string]string, len(header))
		for k, v := range header {
			h[k] = v
		}
	}

	s := a.engine.stream(a.opts.StreamName)
	s.append(a.engine.now(), fullSubject, h, data)

	if a.opts.OnAppend != nil {
		a.opts.OnAppend(fullSubject, nil, time.Since(start))
	}
	return nil
}

// Close releases resources.
func (a *memoryAppender) Close() error {
	a.closed.Store(true)
	return nil
}
