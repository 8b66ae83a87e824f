package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"collabstream/internal/collab"
)

// Embedder computes embedding fragments for one object. Implementations
// call an external embedding provider; the pipeline treats the vectors as
// opaque.
type Embedder interface {
	EmbedCollab(ctx context.Context, ref CollabRef) (fragments []EmbeddingFragment, tokensUsed uint32, err error)
}

// WorkerConfig holds the background indexing worker configuration.
type WorkerConfig struct {
	// ScanInterval is the pause between backlog scans.
	// Defaults to 30s.
	ScanInterval time.Duration

	// BatchLimit bounds how many objects one scan picks up per workspace.
	// Defaults to 50.
	BatchLimit int64
}

// Worker drains the indexing backlog: per workspace it streams objects
// whose content changed since their last index, embeds each and replaces
// its fragments transactionally. Bookkeeping advances only after a
// successful upsert, so a failed object is retried on a later scan instead
// of being skipped forever.
type Worker struct {
	cfg      WorkerConfig
	store    Store
	embedder Embedder
	log      *slog.Logger
	now      func() time.Time // injectable for tests

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Stats
	objectsIndexed atomic.Int64
	tokensUsed     atomic.Int64
}

// NewWorker creates a background indexing worker.
func NewWorker(cfg WorkerConfig, store Store, embedder Embedder, logger *slog.Logger) *Worker {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	return &Worker{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		log:      logger.With("component", "index_worker"),
		now:      time.Now,
	}
}

// Start launches the scan loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(loopCtx)

	w.log.Info("Index worker started", "scan_interval", w.cfg.ScanInterval)
	return nil
}

// Stop cancels the scan loop and waits for it to drain, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info("Index worker stopped",
			"objects_indexed", w.objectsIndexed.Load(),
			"tokens_used", w.tokensUsed.Load(),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ObjectsIndexed reports how many objects have been indexed since start.
func (w *Worker) ObjectsIndexed() int64 { return w.objectsIndexed.Load() }

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ticker.C:
			w.scan(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// scan runs one pass over every active workspace. Errors are logged per
// workspace and per object; one bad object never blocks the rest.
func (w *Worker) scan(ctx context.Context) {
	workspaces, err := w.store.ActiveWorkspaces(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("Failed to list workspaces for index scan", "error", err)
		}
		return
	}

	for _, workspaceID := range workspaces {
		if ctx.Err() != nil {
			return
		}
		w.scanWorkspace(ctx, workspaceID)
	}
}

func (w *Worker) scanWorkspace(ctx context.Context, workspaceID collab.WorkspaceID) {
	backlog, err := w.store.UnindexedBacklog(ctx, workspaceID, w.cfg.BatchLimit)
	if err != nil {
		w.log.Error("Failed to read indexing backlog",
			"workspace_id", workspaceID,
			"error", err,
		)
		return
	}
	defer backlog.Close()

	for backlog.Next() {
		if ctx.Err() != nil {
			return
		}
		w.indexObject(ctx, backlog.Ref())
	}
	if err := backlog.Err(); err != nil && ctx.Err() == nil {
		w.log.Error("Indexing backlog stream failed",
			"workspace_id", workspaceID,
			"error", err,
		)
	}
}

// indexObject embeds one object and persists the result. The indexed-at
// stamp is taken before embedding starts: edits racing with the embedding
// keep the object stale and it is picked up again.
func (w *Worker) indexObject(ctx context.Context, ref CollabRef) {
	contentAt := w.now()

	fragments, tokens, err := w.embedder.EmbedCollab(ctx, ref)
	if err != nil {
		w.log.Warn("Failed to embed object, will retry on next scan",
			"workspace_id", ref.WorkspaceID,
			"object_id", ref.ObjectID,
			"error", err,
		)
		return
	}

	if err := w.store.UpsertEmbeddings(ctx, ref.WorkspaceID, ref.ObjectID, tokens, fragments); err != nil {
		w.log.Error("Failed to upsert embeddings, will retry on next scan",
			"workspace_id", ref.WorkspaceID,
			"object_id", ref.ObjectID,
			"error", err,
		)
		return
	}

	// Only a successful upsert advances the bookkeeping; otherwise the
	// object would be skipped by every later backlog scan.
	if err := w.store.MarkIndexed(ctx, ref.ObjectID, ref.Kind, contentAt); err != nil {
		w.log.Error("Failed to record indexed-at stamp",
			"object_id", ref.ObjectID,
			"error", err,
		)
		return
	}

	w.objectsIndexed.Add(1)
	w.tokensUsed.Add(int64(tokens))
}
