// Package server is the reference backend: it serves the exact wire contract
// the sync client speaks, with an in-memory store for development and tests
// and a SQLite store for persistence.
package server

import (
	"errors"

	"github.com/tallyhq/tally/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUnknownIDs = errors.New("unknown or unauthorized ids")
)

// Store persists the two ordered lists. Lists come back ordered by position
// then id; reorder replaces the whole stored order atomically, renumbering
// positions 1..n.
type Store interface {
	Transactions() ([]model.Transaction, error)
	AddTransaction(description string, amount float64, t model.TxType) (model.Transaction, error)
	UpdateTransaction(id int64, description string, amount float64, t model.TxType) error
	DeleteTransaction(id int64) (model.Transaction, error)
	// RestoreTransaction reinserts a soft-deleted transaction with its
	// original id at its old position, shifting later rows down;
	// position <= 0 appends.
	RestoreTransaction(tx model.Transaction) (model.Transaction, error)
	ReorderTransactions(ids []int64) error
	TransactionSums() (income, expense float64, err error)

	Notes() ([]model.Note, error)
	AddNote(content string) (model.Note, error)
	UpdateNote(id int64, content string) error
	DeleteNote(id int64) (model.Note, error)
	RestoreNote(n model.Note) (model.Note, error)
	ReorderNotes(ids []int64) error

	Close() error
}
