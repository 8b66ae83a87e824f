package memory

import (
	"context"

	"collabstream/internal/updatelog"
)

// memoryConsumer implements updatelog.Consumer on the in-memory engine.
type memoryConsumer struct {
	engine *Engine
	opts   updatelog.ConsumerOptions
}

// Subscribe replays retained records in position order starting strictly
// after the checkpoint, then continues with live appends.
func (c *memoryConsumer) Subscribe(ctx context.Context) (*updatelog.Subscription, error) {
	if c.engine.IsClosed() {
		return nil, ErrEngineClosed
	}

	pattern := c.opts.FilterSubject
	if pattern == "" {
		if c.opts.StreamName != "" {
			pattern = c.opts.StreamName + ".>"
		} else {
			pattern = ">"
		}
	}

	bufSize := c.opts.ChannelBufSize
	if bufSize <= 0 {
		bufSize = updatelog.DefaultConsumerOptions().ChannelBufSize
	}

	s := c.engine.stream(c.opts.StreamName)

	cursor := uint64(1)
	if c.opts.StartAfter != nil {
		first, last := s.bounds()
		// The record right after the checkpoint must still be retained,
		// unless the checkpoint already was the tail of the log.
		if c.opts.StartAfter.Seq+1 < first && c.opts.StartAfter.Seq < last {
			return nil, updatelog.ErrCheckpointExpired
		}
		cursor = c.opts.StartAfter.Seq + 1
	}

	backlog := s.pendingFrom(cursor, pattern)

	msgCh := make(chan updatelog.Message, bufSize)
	go func() {
		defer close(msgCh)
		cur := cursor
		for {
			rec, pending, next, ok := s.next(ctx, cur, pattern)
			if !ok {
				return
			}
			cur = next
			msg := &memoryMessage{
				rec:          rec,
				numDelivered: 1,
				numPending:   pending,
				consumer:     c.opts.ConsumerName,
				stream:       c.opts.StreamName,
				redeliveryCh: msgCh,
				ctx:          ctx,
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &updatelog.Subscription{Messages: msgCh, Backlog: backlog}, nil
}
