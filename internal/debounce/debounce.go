// Package debounce coalesces rapid mutations into a single delayed operation
// per key. Scheduling under an already-pending key cancels and replaces the
// previous operation; only the latest one ever fires.
package debounce

import (
	"sync"
	"time"
)

type entry struct {
	timer *time.Timer
	op    func()
}

// Channel is a keyed debouncer. The zero value is not usable; call New.
type Channel struct {
	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
}

func New() *Channel {
	return &Channel{pending: make(map[string]*entry)}
}

// Schedule arranges for op to run after delay. A later Schedule with the same
// key before the delay elapses replaces op entirely, so last write wins at the
// scheduling boundary. op runs on a timer goroutine.
func (c *Channel) Schedule(key string, delay time.Duration, op func()) {
	if op == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if prev, ok := c.pending[key]; ok {
		prev.timer.Stop()
	}
	e := &entry{op: op}
	e.timer = time.AfterFunc(delay, func() { c.fire(key, e) })
	c.pending[key] = e
}

func (c *Channel) fire(key string, e *entry) {
	c.mu.Lock()
	if c.pending[key] != e {
		// Superseded between timer expiry and lock acquisition.
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.mu.Unlock()
	e.op()
}

// Cancel drops the pending operation for key, if any, and reports whether
// one was pending.
func (c *Channel) Cancel(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.pending, key)
	return true
}

// Flush runs the pending operation for key immediately, on the caller's
// goroutine, and reports whether one was pending.
func (c *Channel) Flush(key string) bool {
	c.mu.Lock()
	e, ok := c.pending[key]
	if ok {
		e.timer.Stop()
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	e.op()
	return true
}

// Pending reports whether key has a not-yet-fired operation.
func (c *Channel) Pending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Stop cancels everything and rejects further scheduling.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	for key, e := range c.pending {
		e.timer.Stop()
		delete(c.pending, key)
	}
}
