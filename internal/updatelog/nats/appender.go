package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"collabstream/internal/updatelog"
)

// jetStreamAppender implements updatelog.Appender using NATS JetStream.
type jetStreamAppender struct {
	js   jetstream.JetStream
	opts updatelog.AppenderOptions
}

// NewAppender creates a new Appender backed by NATS JetStream.
func NewAppender(js jetstream.JetStream, opts updatelog.AppenderOptions) (updatelog.Appender, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream cannot be nil")
	}

	// Ensure stream exists
	if opts.StreamName != "" {
		subjects := []string{opts.StreamName + ".>"}
		if opts.SubjectPrefix != "" && opts.SubjectPrefix != opts.StreamName {
			subjects = []string{opts.SubjectPrefix + ".>"}
		}

		storage := jetstream.MemoryStorage
		if opts.Storage == updatelog.FileStorage {
			storage = jetstream.FileStorage
		}

		_, err := js.CreateOrUpdateStream(context.Background(), jetstream.StreamConfig{
			Name:     opts.StreamName,
			Subjects: subjects,
			Storage:  storage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	return &jetStreamAppender{js: js, opts: opts}, nil
}

// Append writes one record to the specified subject. The header map is
// carried as NATS message headers; JetStream assigns the position.
func (a *jetStreamAppender) Append(ctx context.Context, subject string, header map[string]string, data []byte) error {
	start := time.Now()

	fullSubject := subject
	if a.opts.SubjectPrefix != "" {
		fullSubject = a.opts.SubjectPrefix + "." + subject
	}

	msg := &nats.Msg{
		Subject: fullSubject,
		Data:    data,
	}
	if len(header) > 0 {
		msg.Header = make(nats.Header, len(header))
		for k, v := range header {
			msg.Header.Set(k, v)
		}
	}

	var publishOpts []jetstream.PublishOpt
	if a.opts.RetryAttempts > 0 {
		publishOpts = append(publishOpts, jetstream.WithRetryAttempts(a.opts.RetryAttempts))
	}

	_, err := a.js.PublishMsg(ctx, msg, publishOpts...)

	if a.opts.OnAppend != nil {
		a.opts.OnAppend(fullSubject, err, time.Since(start))
	}

	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", fullSubject, err)
	}

	return nil
}

// Close releases resources.
func (a *jetStreamAppender) Close() error {
	// JetStream doesn't need explicit close
	return nil
}
