package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collabstream/internal/updatelog"
)

// pendingUpdate is one locally authored event awaiting a durable append.
type pendingUpdate struct {
	subject string
	header  map[string]string
	data    []byte
}

// outbox preserves the order a session issued its edits in and never drops
// one: entries survive disconnects and are retried with backoff until the
// log accepts them. A single flush goroutine guarantees that one sender's
// appends reach the log in issue order.
type outbox struct {
	log       *slog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration

	mu       sync.Mutex
	queue    []pendingUpdate
	appender updatelog.Appender
	kick     chan struct{} // buffered(1): new work or new appender
}

func newOutbox(log *slog.Logger, baseDelay, maxDelay time.Duration) *outbox {
	return &outbox{
		log:       log,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		kick:      make(chan struct{}, 1),
	}
}

func (o *outbox) enqueue(p pendingUpdate) {
	o.mu.Lock()
	o.queue = append(o.queue, p)
	o.mu.Unlock()
	o.wake()
}

// setAppender swaps the append target. Nil detaches (disconnected);
// pending entries are kept.
func (o *outbox) setAppender(a updatelog.Appender) {
	o.mu.Lock()
	o.appender = a
	o.mu.Unlock()
	o.wake()
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *outbox) wake() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// run flushes the queue until the context ends. The head entry is retried
// in place so ordering is preserved; a duplicate append caused by an
// ambiguous failure is tolerated by the replica layer's idempotent apply.
func (o *outbox) run(ctx context.Context) {
	delay := o.baseDelay
	for {
		o.mu.Lock()
		var head *pendingUpdate
		appender := o.appender
		if len(o.queue) > 0 {
			head = &o.queue[0]
		}
		o.mu.Unlock()

		if head == nil || appender == nil {
			select {
			case <-o.kick:
				continue
			case <-ctx.Done():
				return
			}
		}

		err := appender.Append(ctx, head.subject, head.header, head.data)
		if err == nil {
			o.mu.Lock()
			o.queue = o.queue[1:]
			o.mu.Unlock()
			delay = o.baseDelay
			continue
		}
		if ctx.Err() != nil {
			return
		}

		o.log.Warn("Outbound append failed, retrying",
			"subject", head.subject,
			"delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > o.maxDelay {
			delay = o.maxDelay
		}
	}
}
