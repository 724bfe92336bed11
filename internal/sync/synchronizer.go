// Package sync keeps an ordered, editable list of server-owned records
// consistent with the backend: optimistic deletes, debounced inline edits,
// soft-delete undo, and whole-order persistence. One Synchronizer instance
// runs per list (transactions, notes); instances are independent.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/debounce"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/toast"
)

const (
	// DefaultEditDelay coalesces keystroke-driven edits into one write
	// per pause.
	DefaultEditDelay = 300 * time.Millisecond
	// DefaultReorderDelay coalesces rapid consecutive row moves.
	DefaultReorderDelay = 250 * time.Millisecond
	// DefaultUndoWindow matches the server-side soft-delete retention.
	DefaultUndoWindow = 10 * time.Second
)

type row struct {
	item  Item
	state model.RowState
}

// RowView is a read-only snapshot of one row for rendering.
type RowView struct {
	Item  Item
	State model.RowState
}

// Config wires a Synchronizer. Binding and Channel are required; Toasts and
// Events may be nil (feedback and events are then dropped).
type Config struct {
	Binding Binding
	Channel *debounce.Channel
	Toasts  *toast.Queue
	Events  *Dispatcher

	EditDelay    time.Duration
	ReorderDelay time.Duration
	UndoWindow   time.Duration
}

// Synchronizer is the per-list controller. All row mutation flows through
// it; the UI renders snapshots and subscribes to events.
type Synchronizer struct {
	binding Binding
	deb     *debounce.Channel
	toasts  *toast.Queue
	events  *Dispatcher

	editDelay    time.Duration
	reorderDelay time.Duration
	undoDur      time.Duration

	ctx context.Context
	now func() time.Time

	mu   stdsync.Mutex
	rows []*row
	undo *undoWindow
}

func New(ctx context.Context, cfg Config) *Synchronizer {
	s := &Synchronizer{
		binding:      cfg.Binding,
		deb:          cfg.Channel,
		toasts:       cfg.Toasts,
		events:       cfg.Events,
		editDelay:    cfg.EditDelay,
		reorderDelay: cfg.ReorderDelay,
		undoDur:      cfg.UndoWindow,
		ctx:          ctx,
		now:          time.Now,
	}
	if s.editDelay <= 0 {
		s.editDelay = DefaultEditDelay
	}
	if s.reorderDelay <= 0 {
		s.reorderDelay = DefaultReorderDelay
	}
	if s.undoDur <= 0 {
		s.undoDur = DefaultUndoWindow
	}
	if s.events == nil {
		s.events = &Dispatcher{}
	}
	return s
}

// Kind returns the bound list kind.
func (s *Synchronizer) Kind() ListKind { return s.binding.Kind() }

// SetInitial loads the server-ordered rows from the page bootstrap.
func (s *Synchronizer) SetInitial(items []Item) {
	s.mu.Lock()
	s.rows = s.rows[:0]
	for _, it := range items {
		s.rows = append(s.rows, &row{item: it, state: model.StateClean})
	}
	s.mu.Unlock()
}

// Rows returns a render snapshot in current order.
func (s *Synchronizer) Rows() []RowView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RowView, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, RowView{Item: r.item, State: r.state})
	}
	return out
}

// Order returns the current id sequence.
func (s *Synchronizer) Order() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderLocked()
}

func (s *Synchronizer) orderLocked() []int64 {
	order := make([]int64, 0, len(s.rows))
	for _, r := range s.rows {
		order = append(order, r.item.RowID())
	}
	return order
}

func (s *Synchronizer) findLocked(id int64) (int, *row) {
	for i, r := range s.rows {
		if r.item.RowID() == id {
			return i, r
		}
	}
	return -1, nil
}

// Validate checks a draft without submitting it, for inline form feedback.
func (s *Synchronizer) Validate(d Draft) error {
	return s.binding.Validate(d)
}

// Create submits new-item input. No optimistic row is added: the row is
// appended only from the server-confirmed representation, then the new order
// is persisted so the append position is authoritative. On failure the
// caller's form input stays intact; only a notification is raised.
func (s *Synchronizer) Create(ctx context.Context, d Draft) error {
	if err := s.binding.Validate(d); err != nil {
		s.say(err.Error(), toast.Error)
		return err
	}
	item, err := s.binding.Create(ctx, d)
	if err != nil {
		s.sayFailure("could not add item", err)
		return err
	}

	s.mu.Lock()
	s.rows = append(s.rows, &row{item: item, state: model.StateClean})
	order := s.orderLocked()
	s.mu.Unlock()

	s.events.emit(ItemCreated{Kind: s.Kind(), Item: item})
	s.events.emit(OrderChanged{Kind: s.Kind(), Order: order})
	s.say("Added", toast.Success)
	return s.persistOrderNow(ctx)
}

// BeginEdit marks a row as being edited (input focused).
func (s *Synchronizer) BeginEdit(id int64) {
	s.mu.Lock()
	_, r := s.findLocked(id)
	if r != nil && (r.state == model.StateClean || r.state == model.StateError) {
		r.state = model.StateEditing
	}
	s.mu.Unlock()
	if r != nil {
		s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateEditing})
	}
}

// SubmitEdit funnels an inline edit through the debounce channel. Invalid
// input is rejected here, with no network call and any previously scheduled
// write for the same row cancelled (the bad edit supersedes it). A newer
// SubmitEdit before the delay elapses replaces the pending write entirely.
func (s *Synchronizer) SubmitEdit(id int64, d Draft) error {
	key := s.editKey(id)
	if err := s.binding.Validate(d); err != nil {
		s.deb.Cancel(key)
		s.say(err.Error(), toast.Error)
		return err
	}
	s.deb.Schedule(key, s.editDelay, func() { s.runUpdate(id, d) })
	return nil
}

func (s *Synchronizer) runUpdate(id int64, d Draft) {
	s.mu.Lock()
	_, r := s.findLocked(id)
	if r == nil {
		// Deleted while the edit was pending.
		s.mu.Unlock()
		return
	}
	r.state = model.StateSaving
	s.mu.Unlock()
	s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateSaving})

	msg, err := s.binding.Update(s.ctx, id, d)
	if err != nil {
		if api.IsCanceled(err) {
			return
		}
		s.mu.Lock()
		if _, r := s.findLocked(id); r != nil {
			r.state = model.StateError
		}
		s.mu.Unlock()
		s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateError})
		s.events.emit(RowPulsed{Kind: s.Kind(), ID: id, Pulse: PulseError})
		s.sayFailure("could not save changes", err)
		return
	}

	s.mu.Lock()
	var updated Item
	if _, r := s.findLocked(id); r != nil {
		r.item = s.binding.Apply(r.item, d)
		r.state = model.StateClean
		updated = r.item
	}
	s.mu.Unlock()
	if updated != nil {
		s.events.emit(ItemUpdated{Kind: s.Kind(), Item: updated})
	}
	s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateClean})
	s.events.emit(RowPulsed{Kind: s.Kind(), ID: id, Pulse: PulseSuccess})
	if msg == "" {
		msg = "Saved"
	}
	s.say(msg, toast.Success)
}

// Delete removes a row. The call is immediate (never debounced); on success
// the row is dropped optimistically and the shifted order re-saved. A row
// already in the deleting state ignores re-submission.
func (s *Synchronizer) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	_, r := s.findLocked(id)
	if r == nil {
		s.mu.Unlock()
		return fmt.Errorf("no row with id %d", id)
	}
	if r.state == model.StateDeleting {
		s.mu.Unlock()
		return nil
	}
	r.state = model.StateDeleting
	s.mu.Unlock()
	s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateDeleting})

	msg, canUndo, err := s.binding.Delete(ctx, id)
	if err != nil {
		// Delete did not happen: the row stays, flagged briefly.
		s.mu.Lock()
		if _, r := s.findLocked(id); r != nil {
			r.state = model.StateClean
		}
		s.mu.Unlock()
		s.events.emit(StateChanged{Kind: s.Kind(), ID: id, State: model.StateClean})
		s.events.emit(RowPulsed{Kind: s.Kind(), ID: id, Pulse: PulseError})
		s.sayFailure("could not delete", err)
		return err
	}

	s.mu.Lock()
	if i, r := s.findLocked(id); r != nil {
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
	}
	order := s.orderLocked()
	if canUndo {
		s.undo = &undoWindow{deletedID: id, expiresAt: s.now().Add(s.undoDur)}
	}
	s.mu.Unlock()

	s.events.emit(ItemDeleted{Kind: s.Kind(), ID: id})
	s.events.emit(OrderChanged{Kind: s.Kind(), Order: order})

	if msg == "" {
		msg = "Deleted"
	}
	if canUndo {
		s.enqueueUndoToast(msg)
	} else {
		s.say(msg, toast.Success)
	}
	return s.persistOrderNow(ctx)
}

func (s *Synchronizer) enqueueUndoToast(msg string) {
	if s.toasts == nil {
		return
	}
	s.toasts.Enqueue(msg, toast.Success, s.undoDur, &toast.Action{
		Label:  "Undo",
		Invoke: func() { _ = s.Undo(s.ctx) },
	})
}

// Undo restores the most recently deleted row. The request carries no id;
// the server keeps one undo slot per session. The restored row is inserted
// at the top and the order re-persisted. A second undo after consumption is
// an expected rejection, reported calmly.
func (s *Synchronizer) Undo(ctx context.Context) error {
	s.mu.Lock()
	w := s.undo
	if w != nil && !w.tryConsume(s.now()) {
		s.mu.Unlock()
		s.say("Nothing to undo.", toast.Info)
		return nil
	}
	s.mu.Unlock()

	item, msg, err := s.binding.Undo(ctx)
	if err != nil {
		if api.IsExpectedRejection(err) {
			s.say(rejectionText(err), toast.Info)
			return nil
		}
		s.sayFailure("could not restore", err)
		return err
	}

	s.mu.Lock()
	s.rows = append([]*row{{item: item, state: model.StateClean}}, s.rows...)
	order := s.orderLocked()
	s.mu.Unlock()

	s.events.emit(ItemRestored{Kind: s.Kind(), Item: item})
	s.events.emit(OrderChanged{Kind: s.Kind(), Order: order})
	if msg == "" {
		msg = "Restored"
	}
	s.say(msg, toast.Success)
	return s.persistOrderNow(ctx)
}

// ApplyOrder adopts a new visible sequence (a completed row move) and
// schedules a debounced persist of the full order. Unknown ids are dropped;
// rows missing from the sequence keep their relative order at the end.
func (s *Synchronizer) ApplyOrder(order []int64) {
	s.mu.Lock()
	byID := make(map[int64]*row, len(s.rows))
	for _, r := range s.rows {
		byID[r.item.RowID()] = r
	}
	next := make([]*row, 0, len(s.rows))
	for _, id := range order {
		if r, ok := byID[id]; ok {
			next = append(next, r)
			delete(byID, id)
		}
	}
	for _, r := range s.rows {
		if _, left := byID[r.item.RowID()]; left {
			next = append(next, r)
		}
	}
	s.rows = next
	current := s.orderLocked()
	s.mu.Unlock()

	s.events.emit(OrderChanged{Kind: s.Kind(), Order: current})
	s.deb.Schedule(s.reorderKey(), s.reorderDelay, func() {
		s.saveOrder(s.ctx, s.Order())
	})
}

// persistOrderNow re-saves the full current sequence immediately. Membership
// changes (create, delete, undo) call this: the channel never diffs, so any
// length or position change must re-send everything. A pending debounced
// reorder is dropped since this order is fresher.
func (s *Synchronizer) persistOrderNow(ctx context.Context) error {
	s.deb.Cancel(s.reorderKey())
	return s.saveOrder(ctx, s.Order())
}

func (s *Synchronizer) saveOrder(ctx context.Context, order []int64) error {
	if len(order) == 0 {
		return nil
	}
	if err := s.binding.SaveOrder(ctx, order); err != nil {
		if !api.IsCanceled(err) {
			s.sayFailure("could not save order", err)
		}
		return err
	}
	return nil
}

func (s *Synchronizer) editKey(id int64) string {
	return fmt.Sprintf("%s/update/%d", s.Kind(), id)
}

func (s *Synchronizer) reorderKey() string {
	return fmt.Sprintf("%s/reorder", s.Kind())
}

func (s *Synchronizer) say(msg string, sev toast.Severity) {
	if s.toasts != nil {
		s.toasts.Enqueue(msg, sev, toast.DefaultDuration, nil)
	}
}

func (s *Synchronizer) sayFailure(fallback string, err error) {
	var ae *api.Error
	if errors.As(err, &ae) && ae.Message != "" {
		s.say(ae.Message, toast.Error)
		return
	}
	s.say(fallback, toast.Error)
}

func rejectionText(err error) string {
	var ae *api.Error
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return "Nothing to undo."
}
