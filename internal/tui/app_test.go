package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/debounce"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/summary"
	"github.com/tallyhq/tally/internal/sync"
	"github.com/tallyhq/tally/internal/toast"
)

// newTestApp wires an App against the given backend the way Run does,
// minus the tea program loop.
func newTestApp(t *testing.T, backend http.Handler) *App {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	client, err := api.New(srv.URL)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}

	channel := debounce.New()
	t.Cleanup(channel.Stop)
	toasts := toast.NewQueue(nil)
	t.Cleanup(toasts.Stop)
	events := &sync.Dispatcher{}

	ctx := context.Background()
	txs := sync.New(ctx, sync.Config{
		Binding: sync.TransactionBinding{Client: client},
		Channel: channel,
		Toasts:  toasts,
		Events:  events,
	})
	notes := sync.New(ctx, sync.Config{
		Binding: sync.NoteBinding{Client: client},
		Channel: channel,
		Toasts:  toasts,
		Events:  events,
	})
	refresher := summary.NewRefresher(client.Totals, nil)
	t.Cleanup(refresher.Stop)

	return newApp(ctx, client, txs, notes, toasts, refresher)
}

func TestParseTxDraft(t *testing.T) {
	tests := []struct {
		in   string
		want sync.Draft
	}{
		{"coffee 3.50", sync.Draft{Description: "coffee", Amount: "3.50", Type: model.TxExpense}},
		{"+salary 2500", sync.Draft{Description: "salary", Amount: "2500", Type: model.TxIncome}},
		{"two words 12", sync.Draft{Description: "two words", Amount: "12", Type: model.TxExpense}},
		{"noamount", sync.Draft{Description: "noamount", Type: model.TxExpense}},
		{"  spaced  4 ", sync.Draft{Description: "spaced", Amount: "4", Type: model.TxExpense}},
	}
	for _, tt := range tests {
		if got := parseTxDraft(tt.in); got != tt.want {
			t.Errorf("parseTxDraft(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestEditTextRoundTrips(t *testing.T) {
	tx := model.Transaction{Description: "salary", Amount: 2500, Type: model.TxIncome}
	got := parseTxDraft(editText(tx))
	if got.Description != "salary" || got.Amount != "2500.00" || got.Type != model.TxIncome {
		t.Errorf("round trip = %+v", got)
	}
}

func TestFailedCreateReopensFilledForm(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	a.openAdd("")
	a.ti.SetValue("coffee 3.50")
	_, cmd := a.handleInputKey(tea.KeyMsg{Type: tea.KeyEnter})
	if a.mode != modeBrowse {
		t.Fatal("input should close while the create is in flight")
	}
	if cmd == nil {
		t.Fatal("enter on a valid draft should dispatch a create")
	}

	msg := cmd()
	done, ok := msg.(createDoneMsg)
	if !ok {
		t.Fatalf("create command returned %T", msg)
	}
	if done.err == nil {
		t.Fatal("create against a failing backend should report an error")
	}

	a.Update(msg)
	if a.mode != modeAdd {
		t.Fatalf("mode = %v, want add mode reopened after the failure", a.mode)
	}
	if got := a.ti.Value(); got != "coffee 3.50" {
		t.Fatalf("input = %q, want the failed draft preserved", got)
	}
	if rows := a.txs.Rows(); len(rows) != 0 {
		t.Fatalf("rows = %d, want none after a rejected create", len(rows))
	}
}

func TestSuccessfulCreateLeavesFormClosed(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<li data-id="1" data-amount="3.50" data-type="expense"><span class="description">coffee</span></li>`))
	}))

	a.openAdd("")
	a.ti.SetValue("coffee 3.50")
	_, cmd := a.handleInputKey(tea.KeyMsg{Type: tea.KeyEnter})
	msg := cmd()
	if done := msg.(createDoneMsg); done.err != nil {
		t.Fatalf("create: %v", done.err)
	}

	a.Update(msg)
	if a.mode != modeBrowse {
		t.Fatal("a successful create should leave browse mode in place")
	}
	if got := a.ti.Value(); got != "" {
		t.Fatalf("input = %q, want empty after success", got)
	}
}

func TestFlashesClearOnlyLatestSeq(t *testing.T) {
	f := newFlashes()
	seq1 := f.set(sync.Transactions, 1, sync.PulseSuccess)
	seq2 := f.set(sync.Transactions, 2, sync.PulseError)

	f.clear(seq1) // stale timer; must not wipe the newer flash
	if _, ok := f.get(sync.Transactions, 2); !ok {
		t.Fatal("newer flash cleared by stale seq")
	}
	f.clear(seq2)
	if _, ok := f.get(sync.Transactions, 2); ok {
		t.Fatal("flash survived its own clear")
	}
}

func TestFlashesAreKindScoped(t *testing.T) {
	f := newFlashes()
	f.set(sync.Transactions, 7, sync.PulseSuccess)
	if _, ok := f.get(sync.Notes, 7); ok {
		t.Error("note row picked up a transaction flash with the same id")
	}
}
