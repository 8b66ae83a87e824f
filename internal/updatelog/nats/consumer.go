package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"

	"collabstream/internal/updatelog"
)

// jetStreamConsumer implements updatelog.Consumer using NATS JetStream.
type jetStreamConsumer struct {
	js   jetstream.JetStream
	opts updatelog.ConsumerOptions
}

// Subscribe starts consuming records in position order. When StartAfter is
// set, delivery begins at the following stream sequence; if that record has
// already been compacted away the subscription fails with
// ErrCheckpointExpired so the caller can fetch a snapshot instead.
func (c *jetStreamConsumer) Subscribe(ctx context.Context) (*updatelog.Subscription, error) {
	if c.opts.StreamName == "" {
		return nil, fmt.Errorf("stream name is required")
	}

	filterSubject := c.opts.FilterSubject
	if filterSubject == "" {
		filterSubject = c.opts.StreamName + ".>"
	}

	storage := jetstream.MemoryStorage
	if c.opts.Storage == updatelog.FileStorage {
		storage = jetstream.FileStorage
	}

	// Ensure stream exists
	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.opts.StreamName,
		Subjects: []string{c.opts.StreamName + ".>"},
		Storage:  storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	cfg := jetstream.ConsumerConfig{
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: filterSubject,
	}
	if c.opts.ConsumerName != "" {
		cfg.Durable = c.opts.ConsumerName
	}

	if c.opts.StartAfter != nil {
		info, err := stream.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read stream info: %w", err)
		}
		first := info.State.FirstSeq
		last := info.State.LastSeq
		// The record right after the checkpoint must still be retained,
		// unless the checkpoint already was the tail of the log.
		if c.opts.StartAfter.Seq+1 < first && c.opts.StartAfter.Seq < last {
			return nil, updatelog.ErrCheckpointExpired
		}
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = c.opts.StartAfter.Seq + 1
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	ci, err := consumer.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read consumer info: %w", err)
	}
	backlog := ci.NumPending

	bufSize := c.opts.ChannelBufSize
	if bufSize <= 0 {
		bufSize = updatelog.DefaultConsumerOptions().ChannelBufSize
	}
	msgCh := make(chan updatelog.Message, bufSize)

	// Track if we're closing to avoid sending to closed channel
	var closing atomic.Bool

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if closing.Load() {
			msg.Nak()
			return
		}
		select {
		case msgCh <- WrapMessage(msg):
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		close(msgCh)
		return nil, fmt.Errorf("failed to start consumer: %w", err)
	}

	slog.Debug("Update log consumer subscribed",
		"stream", c.opts.StreamName,
		"filter", filterSubject,
		"backlog", backlog,
	)

	// Goroutine to handle shutdown
	go func() {
		<-ctx.Done()
		closing.Store(true)
		cc.Stop()
		close(msgCh)
	}()

	return &updatelog.Subscription{Messages: msgCh, Backlog: backlog}, nil
}
