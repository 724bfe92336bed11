package server

import (
	"path/filepath"
	"testing"

	"github.com/tallyhq/tally/internal/model"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.json")

	f, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	tx, err := f.AddTransaction("coffee", 3.5, model.TxExpense)
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if _, err := f.AddNote("remember"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	g, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	txs, err := g.Transactions()
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != tx.ID || txs[0].Description != "coffee" {
		t.Errorf("transactions after reopen = %+v", txs)
	}
	notes, err := g.Notes()
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Content != "remember" {
		t.Errorf("notes after reopen = %+v", notes)
	}

	// New ids keep advancing past persisted ones.
	tx2, err := g.AddTransaction("lunch", 12, model.TxExpense)
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if tx2.ID <= tx.ID {
		t.Errorf("new id %d did not advance past %d", tx2.ID, tx.ID)
	}
}

func TestFileStoreMissingFileStartsEmpty(t *testing.T) {
	f, err := OpenFileStore(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	txs, err := f.Transactions()
	if err != nil || len(txs) != 0 {
		t.Errorf("txs=%v err=%v, want empty", txs, err)
	}
}
