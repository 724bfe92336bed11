// Package reorder adapts row-move input to the synchronizer's reorder
// persistence, the way a drag-and-drop wrapper feeds drop events: on each
// completed move it reads the current row sequence, extracts the stable ids,
// and hands the full order to its sink.
package reorder

import (
	"sync"
)

// Source yields the container's current id sequence.
type Source func() []int64

// Sink receives the new full order; the synchronizer debounces persistence.
type Sink func(order []int64)

// Adapter binds containers at most once each. Re-binding an already bound
// container is a no-op, so setup is idempotent.
type Adapter struct {
	mu    sync.Mutex
	bound map[string]binding
}

type binding struct {
	source Source
	sink   Sink
}

func NewAdapter() *Adapter {
	return &Adapter{bound: make(map[string]binding)}
}

// Bind attaches a container. It reports whether the binding was newly made;
// an already bound container keeps its original source and sink.
func (a *Adapter) Bind(container string, source Source, sink Sink) bool {
	if source == nil || sink == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bound[container]; ok {
		return false
	}
	a.bound[container] = binding{source: source, sink: sink}
	return true
}

// Bound reports whether the container has a live binding.
func (a *Adapter) Bound(container string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.bound[container]
	return ok
}

// Move repositions the row at index from to index to within the container's
// current sequence, then feeds the resulting order to the sink. Out-of-range
// indexes and no-op moves feed nothing.
func (a *Adapter) Move(container string, from, to int) bool {
	a.mu.Lock()
	b, ok := a.bound[container]
	a.mu.Unlock()
	if !ok {
		return false
	}

	order := b.source()
	if from == to || from < 0 || from >= len(order) || to < 0 || to >= len(order) {
		return false
	}
	moved := order[from]
	order = append(order[:from], order[from+1:]...)
	rest := make([]int64, 0, len(order)+1)
	rest = append(rest, order[:to]...)
	rest = append(rest, moved)
	rest = append(rest, order[to:]...)

	b.sink(rest)
	return true
}

// Drop re-reads the container's current sequence and feeds it unchanged,
// for UIs that reorder their own rows before notifying.
func (a *Adapter) Drop(container string) bool {
	a.mu.Lock()
	b, ok := a.bound[container]
	a.mu.Unlock()
	if !ok {
		return false
	}
	b.sink(b.source())
	return true
}
