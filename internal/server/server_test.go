package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/model"
)

func newTestServer(t *testing.T) (*Server, *api.Client) {
	t.Helper()
	s, err := New(NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	c, err := api.New(ts.URL)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	if _, err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return s, c
}

func addTx(t *testing.T, c *api.Client, description, amount string, typ model.TxType) model.Transaction {
	t.Helper()
	tx, err := c.AddTransaction(context.Background(), description, amount, typ)
	if err != nil {
		t.Fatalf("AddTransaction(%s): %v", description, err)
	}
	return tx
}

func pageOrder(t *testing.T, c *api.Client) []int64 {
	t.Helper()
	p, err := c.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	ids := make([]int64, 0, len(p.Transactions))
	for _, tx := range p.Transactions {
		ids = append(ids, tx.ID)
	}
	return ids
}

func TestReorderPersists(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)
	b := addTx(t, c, "b", "2", model.TxExpense)
	d := addTx(t, c, "c", "3", model.TxExpense)

	want := []int64{d.ID, a.ID, b.ID}
	if err := c.ReorderTransactions(context.Background(), want); err != nil {
		t.Fatalf("ReorderTransactions: %v", err)
	}
	if diff := cmp.Diff(want, pageOrder(t, c)); diff != "" {
		t.Errorf("persisted order (-want +got):\n%s", diff)
	}
}

func TestReorderUnknownIDsForbidden(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)

	err := c.ReorderTransactions(context.Background(), []int64{a.ID, 999})
	var ae *api.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
	// The stored order is untouched.
	if diff := cmp.Diff([]int64{a.ID}, pageOrder(t, c)); diff != "" {
		t.Errorf("order changed on rejected reorder:\n%s", diff)
	}
}

func TestDeleteThenUndoRestoresOriginalID(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)
	b := addTx(t, c, "b", "2", model.TxExpense)

	msg, canUndo, err := c.DeleteTransaction(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if !canUndo || msg == "" {
		t.Errorf("msg=%q canUndo=%v", msg, canUndo)
	}
	if diff := cmp.Diff([]int64{b.ID}, pageOrder(t, c)); diff != "" {
		t.Errorf("order after delete:\n%s", diff)
	}

	restored, _, err := c.UndoDeleteTransaction(context.Background())
	if err != nil {
		t.Fatalf("UndoDeleteTransaction: %v", err)
	}
	if restored.ID != a.ID {
		t.Errorf("restored id = %d, want original %d", restored.ID, a.ID)
	}
	if restored.Description != "a" || restored.Amount != 1 {
		t.Errorf("restored = %+v", restored)
	}
	// Back at its old position, exactly once.
	if diff := cmp.Diff([]int64{a.ID, b.ID}, pageOrder(t, c)); diff != "" {
		t.Errorf("order after undo:\n%s", diff)
	}
}

func TestSecondUndoRejected(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)

	if _, _, err := c.DeleteTransaction(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, _, err := c.UndoDeleteTransaction(context.Background()); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	_, _, err := c.UndoDeleteTransaction(context.Background())
	if !api.IsExpectedRejection(err) {
		t.Fatalf("second undo err = %v, want 4xx rejection", err)
	}
	var ae *api.Error
	if errors.As(err, &ae) && ae.Message != "Nothing to undo." {
		t.Errorf("message = %q", ae.Message)
	}
}

func TestConcurrentUndoRestoresOnce(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)
	b := addTx(t, c, "b", "2", model.TxExpense)

	if _, _, err := c.DeleteTransaction(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	// Racing undos on one session must consume the slot exactly once.
	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = c.UndoDeleteTransaction(context.Background())
		}(i)
	}
	wg.Wait()

	restores := 0
	for _, err := range errs {
		if err == nil {
			restores++
			continue
		}
		if !api.IsExpectedRejection(err) {
			t.Errorf("undo error: %v", err)
		}
	}
	if restores != 1 {
		t.Fatalf("restores = %d, want exactly one", restores)
	}
	if diff := cmp.Diff([]int64{a.ID, b.ID}, pageOrder(t, c)); diff != "" {
		t.Errorf("order after racing undos:\n%s", diff)
	}
}

func TestUndoWindowExpires(t *testing.T) {
	s, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)

	if _, _, err := c.DeleteTransaction(context.Background(), a.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	s.now = func() time.Time { return time.Now().Add(undoWindow + time.Second) }
	_, _, err := c.UndoDeleteTransaction(context.Background())
	var ae *api.Error
	if !errors.As(err, &ae) || ae.Message != "Undo window expired." {
		t.Fatalf("err = %v, want window expiry rejection", err)
	}
}

func TestSecondDeleteOverwritesUndoSlot(t *testing.T) {
	_, c := newTestServer(t)
	a := addTx(t, c, "a", "1", model.TxExpense)
	b := addTx(t, c, "b", "2", model.TxExpense)

	if _, _, err := c.DeleteTransaction(context.Background(), a.ID); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	if _, _, err := c.DeleteTransaction(context.Background(), b.ID); err != nil {
		t.Fatalf("delete b: %v", err)
	}
	restored, _, err := c.UndoDeleteTransaction(context.Background())
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if restored.ID != b.ID {
		t.Errorf("restored id = %d, want most recent %d", restored.ID, b.ID)
	}
}

func TestTotalsMathAndRounding(t *testing.T) {
	_, c := newTestServer(t)
	addTx(t, c, "salary", "100.75", model.TxIncome)
	addTx(t, c, "coffee", "40.25", model.TxExpense)

	totals, err := c.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if totals.Income != 100.75 || totals.Expense != 40.25 {
		t.Errorf("totals = %+v", totals)
	}
	if totals.Balance != 60.5 {
		t.Errorf("balance = %v, want 60.5", totals.Balance)
	}
}

func TestTotalsCacheInvalidatedByMutation(t *testing.T) {
	_, c := newTestServer(t)
	addTx(t, c, "salary", "100", model.TxIncome)

	first, err := c.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if first.Income != 100 {
		t.Fatalf("income = %v", first.Income)
	}

	addTx(t, c, "bonus", "50", model.TxIncome)
	second, err := c.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if second.Income != 150 {
		t.Errorf("income after mutation = %v, want 150 (cache invalidated)", second.Income)
	}
}

func TestMutationRequiresCSRF(t *testing.T) {
	s, err := New(NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/reorder_transactions", "application/json", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without a token", resp.StatusCode)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	tests := []struct {
		name        string
		description string
		amount      string
		typ         model.TxType
		wantMsg     string
	}{
		{"empty description", "", "1", model.TxExpense, "Description is required."},
		{"bad amount", "x", "abc", model.TxExpense, "Invalid amount format."},
		{"negative amount", "x", "-5", model.TxExpense, "Amount must be non negative."},
		{"bad type", "x", "1", "loan", "Invalid transaction type."},
	}
	_, c := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.AddTransaction(context.Background(), tt.description, tt.amount, tt.typ)
			var ae *api.Error
			if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
				t.Fatalf("err = %v, want 400", err)
			}
			if ae.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", ae.Message, tt.wantMsg)
			}
		})
	}
}

func TestNoteLifecycle(t *testing.T) {
	_, c := newTestServer(t)
	n, err := c.AddNote(context.Background(), "remember this")
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if n.ID == 0 || n.Content != "remember this" {
		t.Fatalf("note = %+v", n)
	}

	if _, err := c.UpdateNote(context.Background(), n.ID, "updated"); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if _, _, err := c.DeleteNote(context.Background(), n.ID); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	restored, _, err := c.UndoDeleteNote(context.Background())
	if err != nil {
		t.Fatalf("UndoDeleteNote: %v", err)
	}
	if restored.ID != n.ID || restored.Content != "updated" {
		t.Errorf("restored = %+v", restored)
	}
}
