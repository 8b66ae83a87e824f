// internal/logging/dedup_handler.go
package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DedupHandler collapses repeated records before they reach the sink.
// Records are keyed by content hash (level, message, attributes; not the
// timestamp), buffered, and flushed in arrival order with a
// repeated_count attribute on collapsed entries. The error log sits
// behind one of these so a retry loop cannot fill it with identical
// lines.
type DedupHandler struct {
	handler     slog.Handler
	mu          *sync.Mutex // shared across WithAttrs/WithGroup derivatives
	dedupMap    map[uint64]*dedupEntry
	dedupOrder  []uint64
	flushTicker *time.Ticker
	stopChan    chan struct{}
	wg          *sync.WaitGroup

	batchSize    int
	flushTimeout time.Duration
}

type dedupEntry struct {
	record slog.Record
	count  int
}

// DedupHandlerConfig tunes how many unique entries are buffered and how
// long a buffered entry waits before it is flushed anyway.
type DedupHandlerConfig struct {
	BatchSize    int
	FlushTimeout time.Duration
}

// DefaultDedupHandlerConfig returns the production defaults: up to 100
// unique entries held for at most one second.
func DefaultDedupHandlerConfig() DedupHandlerConfig {
	return DedupHandlerConfig{
		BatchSize:    100,
		FlushTimeout: 1 * time.Second,
	}
}

// NewDedupHandler wraps handler with the default configuration.
func NewDedupHandler(handler slog.Handler) *DedupHandler {
	return NewDedupHandlerWithConfig(handler, DefaultDedupHandlerConfig())
}

// NewDedupHandlerWithConfig wraps handler and starts the flush loop.
func NewDedupHandlerWithConfig(handler slog.Handler, cfg DedupHandlerConfig) *DedupHandler {
	dh := &DedupHandler{
		handler:      handler,
		mu:           &sync.Mutex{},
		dedupMap:     make(map[uint64]*dedupEntry),
		dedupOrder:   make([]uint64, 0, cfg.BatchSize),
		flushTicker:  time.NewTicker(cfg.FlushTimeout),
		stopChan:     make(chan struct{}),
		wg:           &sync.WaitGroup{},
		batchSize:    cfg.BatchSize,
		flushTimeout: cfg.FlushTimeout,
	}

	dh.wg.Add(1)
	go dh.flushLoop()

	return dh
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle buffers the record, counting it against an already buffered
// record with the same content instead of storing it twice. A full batch
// flushes inline.
func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	key := h.hashRecord(r)

	h.mu.Lock()
	defer h.mu.Unlock()

	if entry, exists := h.dedupMap[key]; exists {
		entry.count++
		return nil
	}

	h.dedupMap[key] = &dedupEntry{record: r.Clone(), count: 1}
	h.dedupOrder = append(h.dedupOrder, key)

	if len(h.dedupOrder) >= h.batchSize {
		h.flushBatch()
	}
	return nil
}

// hashRecord keys a record by level, message and attributes. The
// timestamp is deliberately excluded: two retries of the same failure
// must collide.
func (h *DedupHandler) hashRecord(r slog.Record) uint64 {
	hash := xxhash.New()

	hash.WriteString(r.Level.String())
	hash.WriteString("|")
	hash.WriteString(r.Message)
	hash.WriteString("|")
	r.Attrs(func(a slog.Attr) bool {
		hash.WriteString(a.Key)
		hash.WriteString("=")
		hash.WriteString(a.Value.String())
		hash.WriteString("|")
		return true
	})

	return hash.Sum64()
}

func (h *DedupHandler) flushLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.flushTicker.C:
			h.mu.Lock()
			h.flushBatch()
			h.mu.Unlock()

		case <-h.stopChan:
			h.mu.Lock()
			h.flushBatch()
			h.mu.Unlock()
			return
		}
	}
}

// flushBatch hands buffered entries to the sink in arrival order,
// stamping collapsed ones with their repeat count. Called with h.mu
// held; the lock is dropped around the sink calls so a sink that logs
// cannot deadlock us.
func (h *DedupHandler) flushBatch() {
	if len(h.dedupOrder) == 0 {
		return
	}

	records := make([]slog.Record, 0, len(h.dedupOrder))
	for _, key := range h.dedupOrder {
		entry := h.dedupMap[key]
		if entry == nil {
			continue
		}
		r := entry.record
		if entry.count > 1 {
			r.AddAttrs(slog.Int("repeated_count", entry.count))
		}
		records = append(records, r)
	}

	h.dedupMap = make(map[uint64]*dedupEntry)
	h.dedupOrder = h.dedupOrder[:0]

	h.mu.Unlock()
	for _, r := range records {
		_ = h.handler.Handle(context.Background(), r)
	}
	h.mu.Lock()
}

// WithAttrs applies attrs to the sink while keeping the dedup state,
// flush loop and mutex shared with the original handler.
func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.handler.WithAttrs(attrs))
}

// WithGroup opens a group on the sink; dedup state stays shared.
func (h *DedupHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(h.handler.WithGroup(name))
}

func (h *DedupHandler) derive(next slog.Handler) *DedupHandler {
	return &DedupHandler{
		handler:      next,
		mu:           h.mu,
		dedupMap:     h.dedupMap,
		dedupOrder:   h.dedupOrder,
		flushTicker:  h.flushTicker,
		stopChan:     h.stopChan,
		wg:           h.wg,
		batchSize:    h.batchSize,
		flushTimeout: h.flushTimeout,
	}
}

// Close flushes whatever is buffered and stops the flush loop.
func (h *DedupHandler) Close() error {
	close(h.stopChan)
	h.flushTicker.Stop()
	h.wg.Wait()
	return nil
}
