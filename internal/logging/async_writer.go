// internal/logging/async_writer.go
package logging

import (
	"io"
	"sync"
	"time"
)

// AsyncWriter decouples log writes from file I/O: entries go onto a
// buffered channel and a background goroutine batches them to the
// underlying writer. Log file sinks sit behind one of these so sync
// hot paths never block on disk.
type AsyncWriter struct {
	writer      io.Writer
	logChan     chan []byte
	flushTicker *time.Ticker
	stopChan    chan struct{}
	wg          sync.WaitGroup
	closed      bool
	mu          sync.Mutex

	// Config
	bufferSize   int
	batchSize    int
	flushTimeout time.Duration
}

// AsyncWriterConfig tunes the channel capacity, batch size and the
// interval after which a partial batch is flushed anyway.
type AsyncWriterConfig struct {
	BufferSize   int
	BatchSize    int
	FlushTimeout time.Duration
}

// DefaultAsyncWriterConfig returns the production defaults: a 10k entry
// buffer flushed every 100ms or every 100 entries.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		BufferSize:   10000,
		BatchSize:    100,
		FlushTimeout: 100 * time.Millisecond,
	}
}

// NewAsyncWriter wraps w with the default configuration.
func NewAsyncWriter(w io.Writer) *AsyncWriter {
	return NewAsyncWriterWithConfig(w, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig wraps w and starts the write loop.
func NewAsyncWriterWithConfig(w io.Writer, cfg AsyncWriterConfig) *AsyncWriter {
	aw := &AsyncWriter{
		writer:       w,
		logChan:      make(chan []byte, cfg.BufferSize),
		flushTicker:  time.NewTicker(cfg.FlushTimeout),
		stopChan:     make(chan struct{}),
		bufferSize:   cfg.BufferSize,
		batchSize:    cfg.BatchSize,
		flushTimeout: cfg.FlushTimeout,
	}

	aw.wg.Add(1)
	go aw.writeLoop()

	return aw
}

// Write queues p for the write loop. The slice is copied: slog reuses
// its buffers after Handle returns. A full channel blocks rather than
// dropping entries.
func (aw *AsyncWriter) Write(p []byte) (n int, err error) {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	aw.mu.Unlock()

	buf := make([]byte, len(p))
	copy(buf, p)

	aw.logChan <- buf
	return len(p), nil
}

// writeLoop batches queued entries to the underlying writer until stopped.
func (aw *AsyncWriter) writeLoop() {
	defer aw.wg.Done()

	batch := make([][]byte, 0, aw.batchSize)

	for {
		select {
		case data, ok := <-aw.logChan:
			if !ok {
				// Channel closed, flush remaining data and exit
				aw.flushBatch(batch)
				return
			}

			batch = append(batch, data)

			// Flush if batch is full
			if len(batch) >= aw.batchSize {
				aw.flushBatch(batch)
				batch = batch[:0] // Reset batch
			}

		case <-aw.flushTicker.C:
			// Timeout reached, flush partial batch if any
			if len(batch) > 0 {
				aw.flushBatch(batch)
				batch = batch[:0]
			}

		case <-aw.stopChan:
			// Stop signal received
			// Drain remaining entries in channel
			for len(aw.logChan) > 0 {
				data := <-aw.logChan
				batch = append(batch, data)

				if len(batch) >= aw.batchSize {
					aw.flushBatch(batch)
					batch = batch[:0]
				}
			}
			// Flush remaining
			if len(batch) > 0 {
				aw.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch writes all entries in the batch to the underlying writer
func (aw *AsyncWriter) flushBatch(batch [][]byte) {
	if len(batch) == 0 {
		return
	}

	// Write all logs in the batch
	for _, data := range batch {
		_, _ = aw.writer.Write(data)
	}

	// If the underlying writer supports flushing, flush it
	if flusher, ok := aw.writer.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}
}

// Close stops the write loop after draining everything still queued,
// then closes the underlying writer if it is an io.Closer. Idempotent.
func (aw *AsyncWriter) Close() error {
	aw.mu.Lock()
	if aw.closed {
		aw.mu.Unlock()
		return nil
	}
	aw.closed = true
	aw.mu.Unlock()

	aw.flushTicker.Stop()
	close(aw.stopChan)
	aw.wg.Wait()
	close(aw.logChan)

	if closer, ok := aw.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Flush waits out one flush interval so buffered entries reach the
// underlying writer. Best-effort: concurrent writes may still be in flight.
func (aw *AsyncWriter) Flush() error {
	time.Sleep(aw.flushTimeout + 10*time.Millisecond)
	return nil
}
