package sync

import "time"

// undoWindow is the ephemeral record opened by a successful delete that
// signalled undo eligibility. It is single-shot: consumed by one undo action
// or dead once it expires, never reusable.
type undoWindow struct {
	deletedID int64
	expiresAt time.Time
	consumed  bool
}

func (w *undoWindow) tryConsume(now time.Time) bool {
	if w == nil || w.consumed || now.After(w.expiresAt) {
		return false
	}
	w.consumed = true
	return true
}
