package syncer

import (
	"context"
	"sync"
)

// SyncState is the per-replica sync state machine. SyncFinished means the
// local replica has applied every event the log held at subscription time;
// it is not sticky: a new remote event re-enters Syncing until the replica
// is caught up again.
type SyncState int32

const (
	StateUninitialized SyncState = iota
	StateConnecting
	StateSyncing
	StateSyncFinished
	StateDisconnected
)

func (s SyncState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateSyncing:
		return "syncing"
	case StateSyncFinished:
		return "sync_finished"
	case StateDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// stateCell holds one replica's SyncState and lets waiters block on
// transitions without polling: every change closes and replaces the
// broadcast channel.
type stateCell struct {
	mu      sync.Mutex
	state   SyncState
	changed chan struct{}
}

func newStateCell() *stateCell {
	return &stateCell{
		state:   StateUninitialized,
		changed: make(chan struct{}),
	}
}

func (c *stateCell) get() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stateCell) set(s SyncState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == s {
		return
	}
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// wait blocks until the state equals want or the context ends.
func (c *stateCell) wait(ctx context.Context, want SyncState) error {
	for {
		c.mu.Lock()
		if c.state == want {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
