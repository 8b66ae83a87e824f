// Package syncer drives client-side replication of collaborative objects:
// it owns the local replicas of one workspace, binds each to its remote
// update log, applies inbound events in position order and appends locally
// authored deltas, surviving disconnects without losing either side.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"collabstream/internal/collab"
	"collabstream/internal/protocol"
	"collabstream/internal/updatelog"
)

// Options configures a Controller.
type Options struct {
	// WorkspaceID scopes every subject the controller touches.
	WorkspaceID collab.WorkspaceID

	// UID and DeviceID identify this session; locally authored events are
	// tagged Client(UID, DeviceID).
	UID      int64
	DeviceID string

	// Provider is the update log transport.
	Provider updatelog.Provider

	// StreamName is the log stream to use. Defaults to "updates".
	StreamName string

	// Storage selects the stream storage type.
	Storage updatelog.StorageType

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// RetryBaseDelay/RetryMaxDelay bound the outbound append backoff and
	// the inbound apply retry backoff.
	// Default 250ms / 10s.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Controller owns the replicas of one connected session. One instance per
// device connection; replicas of different objects never share a lock, so
// a slow object cannot stall sync of another.
type Controller struct {
	opts   Options
	log    *slog.Logger
	origin collab.ActorOrigin
	gate   *receiveGate
	outbox *outbox

	runCtx    context.Context
	runCancel context.CancelFunc

	mu        sync.Mutex // guards the registry and connection fields only
	replicas  map[collab.ObjectID]*replica
	connected bool
	appender  updatelog.Appender
	closed    bool
}

// New creates a Controller. The provider is owned by the caller and must
// outlive the controller.
func New(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if opts.StreamName == "" {
		opts.StreamName = "updates"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 250 * time.Millisecond
	}
	if opts.RetryMaxDelay <= 0 {
		opts.RetryMaxDelay = 10 * time.Second
	}

	log := opts.Logger.With("workspace_id", opts.WorkspaceID, "device_id", opts.DeviceID)
	runCtx, runCancel := context.WithCancel(context.Background())

	c := &Controller{
		opts:      opts,
		log:       log,
		origin:    collab.ClientOrigin(opts.UID, opts.DeviceID),
		gate:      newReceiveGate(),
		outbox:    newOutbox(log, opts.RetryBaseDelay, opts.RetryMaxDelay),
		runCtx:    runCtx,
		runCancel: runCancel,
		replicas:  make(map[collab.ObjectID]*replica),
	}
	go c.outbox.run(runCtx)
	return c, nil
}

// subject returns the per-object log subject.
func (c *Controller) subject(objectID collab.ObjectID) string {
	return c.opts.StreamName + "." + c.opts.WorkspaceID.String() + "." + objectID.String()
}

// Connect establishes the remote connection and resubscribes every bound
// replica from its checkpoint. Idempotent while connected. On transport
// failure every replica is left in Disconnected and the error wraps
// ErrConnection.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if conn, ok := c.opts.Provider.(updatelog.Connectable); ok {
		if err := conn.Connect(ctx); err != nil {
			c.markAllDisconnected()
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
	}

	appender, err := c.opts.Provider.NewAppender(updatelog.AppenderOptions{
		StreamName: c.opts.StreamName,
		Storage:    c.opts.Storage,
	})
	if err != nil {
		c.markAllDisconnected()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	c.mu.Lock()
	c.connected = true
	c.appender = appender
	replicas := c.snapshotLocked()
	c.mu.Unlock()

	c.outbox.setAppender(appender)

	// Resubscribe previously bound replicas. A replica whose checkpoint
	// is no longer retained stays Disconnected and its error is surfaced
	// so the caller can fetch a snapshot and rebind.
	var errs []error
	for _, r := range replicas {
		if err := c.startReplica(ctx, r); err != nil {
			r.state.set(StateDisconnected)
			errs = append(errs, fmt.Errorf("object %s: %w", r.objectID, err))
		}
	}
	return errors.Join(errs...)
}

// Disconnect tears down the connection without discarding replicas, their
// checkpoints, or pending outbound edits.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	appender := c.appender
	c.appender = nil
	replicas := c.snapshotLocked()
	c.mu.Unlock()

	c.outbox.setAppender(nil)
	if appender != nil {
		_ = appender.Close()
	}
	for _, r := range replicas {
		c.stopReplica(r)
		r.state.set(StateDisconnected)
	}
	c.log.Info("Disconnected from update log")
}

// Close disconnects and stops all background work. Replicas and their
// handles remain usable by their owners; the controller does not.
func (c *Controller) Close() {
	c.Disconnect()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.runCancel()
}

// Bind attaches a local CRDT handle: the object is registered for inbound
// and outbound propagation, transitioning Uninitialized → Connecting →
// Syncing. Binding the same object id twice fails with ErrAlreadyBound.
// While disconnected the replica is registered in Disconnected state and
// syncs on the next Connect.
func (c *Controller) Bind(ctx context.Context, objectID collab.ObjectID, kind collab.CollabKind, handle Handle) error {
	return c.bind(ctx, objectID, kind, handle, collab.Rid{})
}

// BindFrom is Bind resuming from a previously persisted checkpoint: only
// events strictly after it are replayed. If the log no longer retains the
// record following the checkpoint the bind fails with
// updatelog.ErrCheckpointExpired; the caller must fetch a full snapshot
// instead of silently resyncing from position zero.
func (c *Controller) BindFrom(ctx context.Context, objectID collab.ObjectID, kind collab.CollabKind, handle Handle, checkpoint collab.Rid) error {
	return c.bind(ctx, objectID, kind, handle, checkpoint)
}

func (c *Controller) bind(ctx context.Context, objectID collab.ObjectID, kind collab.CollabKind, handle Handle, checkpoint collab.Rid) error {
	if handle == nil {
		return fmt.Errorf("handle is required")
	}

	r := newReplica(objectID, kind, handle)
	r.checkpoint = checkpoint

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if _, exists := c.replicas[objectID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyBound, objectID)
	}
	c.replicas[objectID] = r
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		r.state.set(StateDisconnected)
		return nil
	}

	if err := c.startReplica(ctx, r); err != nil {
		c.mu.Lock()
		delete(c.replicas, objectID)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unbind detaches an object, stopping its inbound propagation. The handle
// itself stays with the caller.
func (c *Controller) Unbind(objectID collab.ObjectID) error {
	c.mu.Lock()
	r, ok := c.replicas[objectID]
	if ok {
		delete(c.replicas, objectID)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBound, objectID)
	}
	c.stopReplica(r)
	return nil
}

// startReplica subscribes the replica's consumer from its checkpoint and
// launches the apply loop.
func (c *Controller) startReplica(ctx context.Context, r *replica) error {
	r.state.set(StateConnecting)

	copts := updatelog.ConsumerOptions{
		StreamName:    c.opts.StreamName,
		FilterSubject: c.subject(r.objectID),
		Storage:       c.opts.Storage,
	}
	if cp := r.lastCheckpoint(); !cp.IsZero() {
		copts.StartAfter = &cp
	}

	consumer, err := c.opts.Provider.NewConsumer(copts)
	if err != nil {
		return err
	}

	consumeCtx, cancel := context.WithCancel(c.runCtx)
	sub, err := consumer.Subscribe(consumeCtx)
	if err != nil {
		cancel()
		return err
	}

	r.mu.Lock()
	r.stopConsume = cancel
	r.mu.Unlock()
	r.state.set(StateSyncing)

	go r.consume(consumeCtx, sub, c.gate, c.log, c.opts.RetryBaseDelay, c.opts.RetryMaxDelay)
	return nil
}

func (c *Controller) stopReplica(r *replica) {
	r.mu.Lock()
	cancel := r.stopConsume
	r.stopConsume = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Controller) markAllDisconnected() {
	c.mu.Lock()
	replicas := c.snapshotLocked()
	c.mu.Unlock()
	for _, r := range replicas {
		r.state.set(StateDisconnected)
	}
}

func (c *Controller) snapshotLocked() []*replica {
	out := make([]*replica, 0, len(c.replicas))
	for _, r := range c.replicas {
		out = append(out, r)
	}
	return out
}

func (c *Controller) replica(objectID collab.ObjectID) (*replica, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.replicas[objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBound, objectID)
	}
	return r, nil
}

// DisableReceiveMessage pauses applying inbound events to every bound
// replica while keeping the connection and the outbound path alive.
// Paused events stay buffered in the transport.
func (c *Controller) DisableReceiveMessage() { c.gate.disable() }

// EnableReceiveMessage resumes applying inbound events.
func (c *Controller) EnableReceiveMessage() { c.gate.enable() }

// Edit runs a local mutation on a bound replica inside its exclusive
// section, captures the resulting delta and queues it for durable append
// with sender Client(uid, device). Appends of one session are observed
// elsewhere in issue order; a disconnect never drops a queued edit.
func (c *Controller) Edit(objectID collab.ObjectID, mutate func(Handle) error) error {
	r, err := c.replica(objectID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if err := mutate(r.handle); err != nil {
		r.mu.Unlock()
		return err
	}
	delta, err := r.handle.CaptureUpdate()
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("capture local change: %w", err)
	}
	if len(delta) == 0 {
		return nil
	}

	header, data := protocol.Encode(protocol.UpdateEvent{
		Sender:   c.origin,
		ObjectID: objectID,
		Kind:     r.kind,
		Payload:  delta,
	})
	c.outbox.enqueue(pendingUpdate{
		subject: c.subject(objectID),
		header:  header,
		data:    data,
	})
	return nil
}

// Project returns the structured view of a bound replica's current state.
func (c *Controller) Project(objectID collab.ObjectID) (map[string]any, error) {
	r, err := c.replica(objectID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle.Project()
}

// SyncState returns a bound replica's current sync state.
func (c *Controller) SyncState(objectID collab.ObjectID) (SyncState, error) {
	r, err := c.replica(objectID)
	if err != nil {
		return StateUninitialized, err
	}
	return r.state.get(), nil
}

// Checkpoint returns the position of the last applied event for the
// object, for callers that persist resume positions.
func (c *Controller) Checkpoint(objectID collab.ObjectID) (collab.Rid, error) {
	r, err := c.replica(objectID)
	if err != nil {
		return collab.Rid{}, err
	}
	return r.lastCheckpoint(), nil
}

// PendingUpdates reports how many locally authored events still await a
// durable append.
func (c *Controller) PendingUpdates() int { return c.outbox.pending() }

// WaitSyncState blocks until the object's state equals want, the timeout
// elapses (ErrSyncTimeout), or ctx ends. The remote catch-up has no upper
// bound guarantee, so callers must bound their waits.
func (c *Controller) WaitSyncState(ctx context.Context, objectID collab.ObjectID, want SyncState, timeout time.Duration) error {
	r, err := c.replica(objectID)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := r.state.wait(waitCtx, want); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: object %s did not reach %s within %s",
				ErrSyncTimeout, objectID, want, timeout)
		}
		return err
	}
	return nil
}

// WaitSyncFinished blocks until the replica has applied every event the
// log held at subscription time.
func (c *Controller) WaitSyncFinished(ctx context.Context, objectID collab.ObjectID, timeout time.Duration) error {
	return c.WaitSyncState(ctx, objectID, StateSyncFinished, timeout)
}
