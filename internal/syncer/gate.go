package syncer

import (
	"context"
	"sync"
)

// receiveGate pauses inbound event application while keeping the
// connection and outbound path alive. While the gate is closed inbound
// events stay buffered in the transport channel, not dropped; apply loops
// resume consuming once the gate reopens.
type receiveGate struct {
	mu      sync.Mutex
	enabled bool
	ch      chan struct{} // closed while enabled
}

func newReceiveGate() *receiveGate {
	ch := make(chan struct{})
	close(ch)
	return &receiveGate{enabled: true, ch: ch}
}

func (g *receiveGate) disable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.enabled {
		return
	}
	g.enabled = false
	g.ch = make(chan struct{})
}

func (g *receiveGate) enable() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.enabled {
		return
	}
	g.enabled = true
	close(g.ch)
}

// wait blocks until the gate is enabled or the context ends.
func (g *receiveGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
