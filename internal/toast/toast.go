// Package toast is a bounded, user-facing notification queue with timed
// dismissal and optional inline actions. It owns the active set exclusively;
// the UI renders snapshots and never mutates them.
package toast

import (
	"sync"
	"time"
)

// MaxActive caps the number of concurrently visible toasts. Enqueueing past
// the cap force-dismisses the oldest toast first.
const MaxActive = 5

// DefaultDuration is used by convenience helpers; 0 means sticky.
const DefaultDuration = 4 * time.Second

type Severity int

const (
	Info Severity = iota
	Success
	Error
)

func (s Severity) String() string {
	switch s {
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "info"
}

// Action is an optional inline control. Invoking it runs the callback and
// then dismisses the toast; action and plain dismissal are mutually
// exclusive per activation.
type Action struct {
	Label  string
	Invoke func()
}

// Handle identifies a toast for Dismiss/Pause/Resume/InvokeAction.
type Handle uint64

// Toast is a read-only snapshot of one queued notification.
type Toast struct {
	ID       Handle
	Message  string
	Severity Severity
	Duration time.Duration
	Action   *Action
	Paused   bool
}

type active struct {
	Toast
	timer    *time.Timer
	deadline time.Time
	consumed bool
}

// Queue manages the active toast set. onChange, when set, is called (without
// the queue lock held) after every visible mutation so a UI can re-render.
type Queue struct {
	mu       sync.Mutex
	nextID   Handle
	toasts   []*active // oldest first
	last     string    // live-region mirror of the most recent message
	onChange func()
	now      func() time.Time
	stopped  bool
}

func NewQueue(onChange func()) *Queue {
	return &Queue{onChange: onChange, now: time.Now}
}

// Enqueue adds a toast and never fails. duration 0 keeps the toast visible
// until it is dismissed explicitly.
func (q *Queue) Enqueue(message string, sev Severity, duration time.Duration, action *Action) Handle {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0
	}
	q.nextID++
	id := q.nextID

	// Evict oldest first so the active set never exceeds the cap.
	for len(q.toasts) >= MaxActive {
		q.removeLocked(q.toasts[0].ID)
	}

	a := &active{Toast: Toast{
		ID:       id,
		Message:  message,
		Severity: sev,
		Duration: duration,
		Action:   action,
	}}
	if duration > 0 {
		a.deadline = q.now().Add(duration)
		a.timer = time.AfterFunc(duration, func() { q.Dismiss(id) })
	}
	q.toasts = append(q.toasts, a)
	q.last = message
	q.mu.Unlock()

	q.notify()
	return id
}

// Dismiss removes the toast if it is still active.
func (q *Queue) Dismiss(h Handle) {
	q.mu.Lock()
	removed := q.removeLocked(h)
	q.mu.Unlock()
	if removed {
		q.notify()
	}
}

func (q *Queue) removeLocked(h Handle) bool {
	for i, a := range q.toasts {
		if a.ID == h {
			if a.timer != nil {
				a.timer.Stop()
			}
			q.toasts = append(q.toasts[:i], q.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Pause suspends the auto-dismiss timer (hover-in). Sticky and already
// paused toasts are unaffected.
func (q *Queue) Pause(h Handle) {
	q.mu.Lock()
	a := q.findLocked(h)
	if a == nil || a.Paused || a.timer == nil {
		q.mu.Unlock()
		return
	}
	a.timer.Stop()
	a.Duration = a.deadline.Sub(q.now())
	if a.Duration < 0 {
		a.Duration = 0
	}
	a.Paused = true
	q.mu.Unlock()
	q.notify()
}

// Resume re-arms the auto-dismiss timer with the remaining time (hover-out).
func (q *Queue) Resume(h Handle) {
	q.mu.Lock()
	a := q.findLocked(h)
	if a == nil || !a.Paused {
		q.mu.Unlock()
		return
	}
	a.Paused = false
	remaining := a.Duration
	if remaining <= 0 {
		remaining = time.Millisecond
	}
	a.deadline = q.now().Add(remaining)
	id := a.ID
	a.timer = time.AfterFunc(remaining, func() { q.Dismiss(id) })
	q.mu.Unlock()
	q.notify()
}

// PauseAll suspends every running timer; ResumeAll restarts them. Used while
// the user is mid-input so messages do not vanish under them.
func (q *Queue) PauseAll() {
	for _, t := range q.Active() {
		q.Pause(t.ID)
	}
}

func (q *Queue) ResumeAll() {
	for _, t := range q.Active() {
		q.Resume(t.ID)
	}
}

// InvokeAction runs the toast's action callback and dismisses it. It reports
// whether the action ran; a toast without an action, or one already
// dismissed, returns false. The action runs at most once.
func (q *Queue) InvokeAction(h Handle) bool {
	q.mu.Lock()
	a := q.findLocked(h)
	if a == nil || a.Action == nil || a.Action.Invoke == nil || a.consumed {
		q.mu.Unlock()
		return false
	}
	a.consumed = true
	fn := a.Action.Invoke
	q.removeLocked(h)
	q.mu.Unlock()

	fn()
	q.notify()
	return true
}

func (q *Queue) findLocked(h Handle) *active {
	for _, a := range q.toasts {
		if a.ID == h {
			return a
		}
	}
	return nil
}

// Active returns a snapshot of the visible toasts, oldest first.
func (q *Queue) Active() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Toast, 0, len(q.toasts))
	for _, a := range q.toasts {
		out = append(out, a.Toast)
	}
	return out
}

// Newest returns the most recently enqueued toast still active.
func (q *Queue) Newest() (Toast, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.toasts) == 0 {
		return Toast{}, false
	}
	return q.toasts[len(q.toasts)-1].Toast, true
}

// NewestAction returns the most recent active toast that carries an action.
func (q *Queue) NewestAction() (Toast, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.toasts) - 1; i >= 0; i-- {
		if q.toasts[i].Action != nil {
			return q.toasts[i].Toast, true
		}
	}
	return Toast{}, false
}

// Last returns the text of the most recent message ever enqueued, dismissed
// or not. It mirrors every user-visible notification for the status line.
func (q *Queue) Last() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last
}

// Stop dismisses everything and rejects further enqueues.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	for _, a := range q.toasts {
		if a.timer != nil {
			a.timer.Stop()
		}
	}
	q.toasts = nil
	q.mu.Unlock()
}

func (q *Queue) notify() {
	if q.onChange != nil {
		q.onChange()
	}
}
