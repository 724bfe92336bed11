package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tallyhq/tally/internal/model"
)

// FileStore is a JSON-backed Store. Single file, human-readable, portable.
// Every mutation rewrites the file; fine for a local single-user backend.
type FileStore struct {
	path string
	mem  *MemoryStore
}

type fileSnapshot struct {
	Transactions []model.Transaction `json:"transactions"`
	Notes        []model.Note        `json:"notes"`
	NextTxID     int64               `json:"next_transaction_id"`
	NextNoteID   int64               `json:"next_note_id"`
}

func OpenFileStore(path string) (*FileStore, error) {
	f := &FileStore{path: path, mem: NewMemoryStore()}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	f.mem.txs = snap.Transactions
	f.mem.notes = snap.Notes
	if snap.NextTxID > 0 {
		f.mem.nextTx = snap.NextTxID
	}
	if snap.NextNoteID > 0 {
		f.mem.nextNo = snap.NextNoteID
	}
	// Hand-edited files may omit the counters.
	for _, tx := range f.mem.txs {
		if tx.ID >= f.mem.nextTx {
			f.mem.nextTx = tx.ID + 1
		}
	}
	for _, n := range f.mem.notes {
		if n.ID >= f.mem.nextNo {
			f.mem.nextNo = n.ID + 1
		}
	}
	return f, nil
}

func (f *FileStore) save() error {
	f.mem.mu.Lock()
	snap := fileSnapshot{
		Transactions: append([]model.Transaction(nil), f.mem.txs...),
		Notes:        append([]model.Note(nil), f.mem.notes...),
		NextTxID:     f.mem.nextTx,
		NextNoteID:   f.mem.nextNo,
	}
	f.mem.mu.Unlock()

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return f.save() }

func (f *FileStore) Transactions() ([]model.Transaction, error) { return f.mem.Transactions() }
func (f *FileStore) Notes() ([]model.Note, error)               { return f.mem.Notes() }
func (f *FileStore) TransactionSums() (float64, float64, error) { return f.mem.TransactionSums() }

func (f *FileStore) AddTransaction(description string, amount float64, t model.TxType) (model.Transaction, error) {
	tx, err := f.mem.AddTransaction(description, amount, t)
	if err != nil {
		return model.Transaction{}, err
	}
	return tx, f.save()
}

func (f *FileStore) UpdateTransaction(id int64, description string, amount float64, t model.TxType) error {
	if err := f.mem.UpdateTransaction(id, description, amount, t); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) DeleteTransaction(id int64) (model.Transaction, error) {
	tx, err := f.mem.DeleteTransaction(id)
	if err != nil {
		return model.Transaction{}, err
	}
	return tx, f.save()
}

func (f *FileStore) RestoreTransaction(tx model.Transaction) (model.Transaction, error) {
	restored, err := f.mem.RestoreTransaction(tx)
	if err != nil {
		return model.Transaction{}, err
	}
	return restored, f.save()
}

func (f *FileStore) ReorderTransactions(ids []int64) error {
	if err := f.mem.ReorderTransactions(ids); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) AddNote(content string) (model.Note, error) {
	n, err := f.mem.AddNote(content)
	if err != nil {
		return model.Note{}, err
	}
	return n, f.save()
}

func (f *FileStore) UpdateNote(id int64, content string) error {
	if err := f.mem.UpdateNote(id, content); err != nil {
		return err
	}
	return f.save()
}

func (f *FileStore) DeleteNote(id int64) (model.Note, error) {
	n, err := f.mem.DeleteNote(id)
	if err != nil {
		return model.Note{}, err
	}
	return n, f.save()
}

func (f *FileStore) RestoreNote(n model.Note) (model.Note, error) {
	restored, err := f.mem.RestoreNote(n)
	if err != nil {
		return model.Note{}, err
	}
	return restored, f.save()
}

func (f *FileStore) ReorderNotes(ids []int64) error {
	if err := f.mem.ReorderNotes(ids); err != nil {
		return err
	}
	return f.save()
}
