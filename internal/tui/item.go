package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/sync"
)

// rowItem adapts one synchronizer row to bubbles/list.Item.
type rowItem struct {
	view sync.RowView
}

func (i rowItem) id() int64 { return i.view.Item.RowID() }

func (i rowItem) label() string {
	switch it := i.view.Item.(type) {
	case model.Transaction:
		return it.Description
	case model.Note:
		return it.Content
	}
	return ""
}

func (i rowItem) Title() string       { return i.label() }
func (i rowItem) Description() string { return "" }
func (i rowItem) FilterValue() string { return i.label() }

// flashes tracks the short per-row highlight after a save round-trip. Shared
// between the app (which sets and clears) and the delegates (which read).
type flashes struct {
	seq   int
	byID  map[int64]sync.PulseKind
	kinds map[int64]sync.ListKind
}

func newFlashes() *flashes {
	return &flashes{byID: make(map[int64]sync.PulseKind), kinds: make(map[int64]sync.ListKind)}
}

func (f *flashes) set(kind sync.ListKind, id int64, p sync.PulseKind) int {
	f.seq++
	f.byID[id] = p
	f.kinds[id] = kind
	return f.seq
}

func (f *flashes) clear(seq int) {
	if seq != f.seq {
		return
	}
	f.byID = make(map[int64]sync.PulseKind)
	f.kinds = make(map[int64]sync.ListKind)
}

func (f *flashes) get(kind sync.ListKind, id int64) (sync.PulseKind, bool) {
	if f.kinds[id] != kind {
		return 0, false
	}
	p, ok := f.byID[id]
	return p, ok
}

func stateMarker(s model.RowState) string {
	switch s {
	case model.StateEditing:
		return "✎"
	case model.StateSaving:
		return "…"
	case model.StateError:
		return "!"
	case model.StateDeleting:
		return "×"
	}
	return " "
}

// rowDelegate renders one row per line, with the state
// marker on the left and the pulse highlight when fresh.
type rowDelegate struct {
	kind  sync.ListKind
	flash *flashes
}

func (d rowDelegate) Height() int                               { return 1 }
func (d rowDelegate) Spacing() int                              { return 0 }
func (d rowDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d rowDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(rowItem)
	if !ok {
		return
	}

	marker := stateMarker(it.view.State)
	switch it.view.State {
	case model.StateError:
		marker = errorStyle.Render(marker)
	case model.StateSaving, model.StateDeleting:
		marker = mutedStyle.Render(marker)
	case model.StateEditing:
		marker = accentStyle.Render(marker)
	}

	var line string
	switch v := it.view.Item.(type) {
	case model.Transaction:
		amt := money(v.Amount)
		if v.Type == model.TxIncome {
			amt = incomeStyle.Render("+" + amt)
		} else {
			amt = expenseStyle.Render("-" + amt)
		}
		line = fmt.Sprintf("%s %s", padRight(v.Description, 28), amt)
	case model.Note:
		line = v.Content
	}

	if it.view.State == model.StateSaving || it.view.State == model.StateDeleting {
		line = savingStyle.Render(line)
	}
	if p, ok := d.flash.get(d.kind, it.id()); ok {
		if p == sync.PulseSuccess {
			line = flashOkStyle.Render("✓ ") + line
		} else {
			line = flashErrStyle.Render("✗ ") + line
		}
	}

	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprintln(w, prefix+marker+" "+line)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
