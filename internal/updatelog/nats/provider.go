// Package nats implements the update log on NATS JetStream. Each stream is
// a JetStream stream; the broker-assigned stream sequence and receive
// timestamp form the revision position of every record.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"collabstream/internal/updatelog"
)

// natsConnectFunc is a function type for connecting to NATS (injectable for testing)
type natsConnectFunc func(url string) (*nats.Conn, error)

var defaultNatsConnect natsConnectFunc = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

// Provider implements updatelog.Provider using NATS JetStream.
// It manages the NATS connection lifecycle and provides factory methods
// for creating appenders and consumers.
type Provider struct {
	url         string
	nc          *nats.Conn
	js          jetstream.JetStream
	natsConnect natsConnectFunc // injectable for testing
}

// Compile-time checks
var (
	_ updatelog.Provider    = (*Provider)(nil)
	_ updatelog.Connectable = (*Provider)(nil)
)

// NewProvider creates a new NATS-based update log provider.
func NewProvider(url string) (*Provider, error) {
	return &Provider{
		url:         url,
		natsConnect: defaultNatsConnect,
	}, nil
}

// Connect establishes the NATS connection and initializes JetStream.
// This must be called before using NewAppender or NewConsumer.
func (p *Provider) Connect(ctx context.Context) error {
	connectFn := p.natsConnect
	if connectFn == nil {
		connectFn = defaultNatsConnect
	}

	nc, err := connectFn(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}

	js, err := JetStreamNew(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream: %w", err)
	}
	p.nc = nc
	p.js = js

	slog.Info("Connected to NATS", "url", p.url)
	return nil
}

// NewAppender creates a new Appender backed by NATS JetStream.
func (p *Provider) NewAppender(opts updatelog.AppenderOptions) (updatelog.Appender, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return NewAppender(p.js, opts)
}

// NewConsumer creates a new Consumer backed by NATS JetStream.
func (p *Provider) NewConsumer(opts updatelog.ConsumerOptions) (updatelog.Consumer, error) {
	if p.js == nil {
		return nil, fmt.Errorf("NATS not connected, call Connect first")
	}
	return &jetStreamConsumer{js: p.js, opts: opts}, nil
}

// Close closes the NATS connection.
func (p *Provider) Close() error {
	if p.nc != nil {
		slog.Info("Closing NATS connection...")
		p.nc.Close()
		p.nc = nil
		p.js = nil
	}
	return nil
}
