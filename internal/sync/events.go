package sync

import "github.com/tallyhq/tally/internal/model"

// ListKind names one synchronized list instance.
type ListKind string

const (
	Transactions ListKind = "transactions"
	Notes        ListKind = "notes"
)

// PulseKind is the short visual flash a row gets after a save round-trip.
type PulseKind int

const (
	PulseSuccess PulseKind = iota
	PulseError
)

// Event is a domain event emitted by a Synchronizer. The UI subscribes to
// events instead of being queried directly.
type Event interface{ event() }

type ItemCreated struct {
	Kind ListKind
	Item Item
}

type ItemDeleted struct {
	Kind ListKind
	ID   int64
}

type ItemRestored struct {
	Kind ListKind
	Item Item
}

type OrderChanged struct {
	Kind  ListKind
	Order []int64
}

type ItemUpdated struct {
	Kind ListKind
	Item Item
}

type StateChanged struct {
	Kind  ListKind
	ID    int64
	State model.RowState
}

type RowPulsed struct {
	Kind  ListKind
	ID    int64
	Pulse PulseKind
}

func (ItemCreated) event()  {}
func (ItemDeleted) event()  {}
func (ItemRestored) event() {}
func (OrderChanged) event() {}
func (ItemUpdated) event()  {}
func (StateChanged) event() {}
func (RowPulsed) event()    {}

// Dispatcher fans events out to subscribers. Subscriptions are set up during
// wiring, before events flow; delivery order follows subscription order.
type Dispatcher struct {
	subs []func(Event)
}

func (d *Dispatcher) Subscribe(fn func(Event)) {
	if fn != nil {
		d.subs = append(d.subs, fn)
	}
}

func (d *Dispatcher) emit(e Event) {
	for _, fn := range d.subs {
		fn(e)
	}
}
