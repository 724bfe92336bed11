// Package summary owns the aggregate totals snapshot behind the chart.
// Refreshes are single-flight: starting a new one cancels the in-flight
// request, and a cancelled request is silent, never a reported failure.
package summary

import (
	"context"
	"sync"
	"time"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/model"
)

// Snapshot is the chart-ready series plus derived balance. It is superseded
// wholesale on each successful fetch, never partially merged.
type Snapshot struct {
	Income  float64
	Expense float64
	Balance float64
	At      time.Time
}

// Fetch loads totals from the backend; *api.Client.Totals satisfies it.
type Fetch func(ctx context.Context) (model.Totals, error)

// Refresher enforces single-flight refreshes over a totals fetch. onChange,
// when set, is called after every state transition so the UI re-renders.
type Refresher struct {
	fetch    Fetch
	onChange func()
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	busy   bool
	failed bool
	snap   *Snapshot
}

func NewRefresher(fetch Fetch, onChange func()) *Refresher {
	return &Refresher{fetch: fetch, onChange: onChange, now: time.Now}
}

// Refresh fetches a fresh snapshot, cancelling any refresh still in flight.
// The superseded refresh must not surface its failure: only the most
// recently started refresh that is allowed to complete touches the state.
// Returns nil when this refresh was itself superseded or cancelled.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.gen++
	gen := r.gen
	r.busy = true
	r.mu.Unlock()
	r.notify()

	totals, err := r.fetch(ctx)

	r.mu.Lock()
	if gen != r.gen {
		// A newer refresh took over; whatever happened here is moot.
		r.mu.Unlock()
		return nil
	}
	r.cancel = nil
	cancel()
	r.busy = false
	if err != nil {
		if api.IsCanceled(err) {
			// Self-initiated cancellation: swallowed, no fallback.
			r.mu.Unlock()
			r.notify()
			return nil
		}
		r.failed = true
		r.mu.Unlock()
		r.notify()
		return err
	}
	r.failed = false
	r.snap = &Snapshot{
		Income:  totals.Income,
		Expense: totals.Expense,
		Balance: totals.Balance,
		At:      r.now(),
	}
	r.mu.Unlock()
	r.notify()
	return nil
}

// Snapshot returns the last successful snapshot, if any.
func (r *Refresher) Snapshot() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return Snapshot{}, false
	}
	return *r.snap, true
}

// Busy reports whether a refresh is in flight (drives the spinner).
func (r *Refresher) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Failed reports whether the most recent completed refresh failed; the UI
// shows the inline fallback instead of the chart while true.
func (r *Refresher) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

// Stop cancels any in-flight refresh.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *Refresher) notify() {
	if r.onChange != nil {
		r.onChange()
	}
}
