package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"collabstream/internal/collab"
	"collabstream/internal/protocol"
	"collabstream/internal/updatelog"
)

// replica is one bound object: the caller's CRDT handle, its sync state,
// and the resumable checkpoint. Mutations of the handle (local edits and
// inbound applies) are mutually exclusive via mu; the section is held only
// across the in-memory merge, never across I/O.
type replica struct {
	objectID collab.ObjectID
	kind     collab.CollabKind

	mu          sync.Mutex
	handle      Handle
	checkpoint  collab.Rid // position of the last applied event
	state       *stateCell
	stopConsume context.CancelFunc // nil while disconnected
}

func newReplica(objectID collab.ObjectID, kind collab.CollabKind, handle Handle) *replica {
	return &replica{
		objectID: objectID,
		kind:     kind,
		handle:   handle,
		state:    newStateCell(),
	}
}

// lastCheckpoint returns the resume position (zero when nothing applied).
func (r *replica) lastCheckpoint() collab.Rid {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpoint
}

// consume applies inbound events in position order until the context ends.
// Duplicate positions are idempotent no-ops; malformed records are logged
// and terminated, never crashing the loop; the checkpoint advances only
// after a successful apply.
func (r *replica) consume(ctx context.Context, sub *updatelog.Subscription, gate *receiveGate, log *slog.Logger, retryBase, retryMax time.Duration) {
	if sub.Backlog == 0 {
		r.state.set(StateSyncFinished)
	}

	for {
		var msg updatelog.Message
		var ok bool
		select {
		case msg, ok = <-sub.Messages:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		// Received events are held here while receiving is paused; the
		// rest of the backlog stays buffered in the transport channel.
		// A held, unapplied event is redelivered after reconnect.
		if err := gate.wait(ctx); err != nil {
			return
		}

		r.state.set(StateSyncing)
		if err := r.applyBlocking(ctx, msg, log, retryBase, retryMax); err != nil {
			// Context ended with the event unapplied; the checkpoint was
			// not advanced, so the event is replayed on the next connect.
			return
		}

		if md, err := msg.Metadata(); err == nil && md.NumPending == 0 {
			r.state.set(StateSyncFinished)
		}
	}
}

// applyBlocking retries a failing apply in place with capped exponential
// backoff. Later events must not overtake an unapplied one, so the loop
// never releases the event for out-of-band redelivery; it holds position
// until the handle accepts the update or the context ends.
func (r *replica) applyBlocking(ctx context.Context, msg updatelog.Message, log *slog.Logger, retryBase, retryMax time.Duration) error {
	delay := retryBase
	for {
		err := r.apply(msg, log)
		if err == nil {
			return nil
		}

		log.Error("Failed to apply update, retrying in place",
			"object_id", r.objectID,
			"position", msg.ID(),
			"retry_in", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > retryMax {
			delay = retryMax
		}
	}
}

// apply merges one inbound event into the handle. Malformed and duplicate
// records are settled here and never surface as errors; a handle failure
// is returned with the checkpoint untouched.
func (r *replica) apply(msg updatelog.Message, log *slog.Logger) error {
	ev, err := protocol.Decode(msg.ID(), msg.Header(), msg.Data())
	if err != nil {
		log.Warn("Skipping malformed update record",
			"object_id", r.objectID,
			"position", msg.ID(),
			"error", err,
		)
		_ = msg.Term()
		return nil
	}

	r.mu.Lock()
	if !r.checkpoint.IsZero() && ev.Position.Compare(r.checkpoint) <= 0 {
		// Duplicate or replayed delivery: idempotent no-op.
		r.mu.Unlock()
		_ = msg.Ack()
		return nil
	}
	applyErr := r.handle.ApplyUpdate(ev.Payload)
	if applyErr == nil {
		r.checkpoint = ev.Position
	}
	r.mu.Unlock()

	if applyErr != nil {
		return applyErr
	}
	_ = msg.Ack()
	return nil
}
