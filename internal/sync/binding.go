package sync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/model"
)

// ErrValidation marks input rejected before any network call is made.
var ErrValidation = errors.New("validation")

// Item is one synchronized row's payload. The id is server-assigned and is
// the join key between the in-memory sequence and the persisted one.
type Item interface {
	RowID() int64
}

// Draft carries raw user input for create and update. Amount stays a string
// until validation so "abc" can be rejected without touching the network.
type Draft struct {
	Description string
	Amount      string
	Type        model.TxType
	Content     string
}

// Binding adapts one list kind to its mutation endpoints. The synchronizer
// owns ordering, state, and undo; the binding owns payloads and wire calls.
type Binding interface {
	Kind() ListKind

	// Validate rejects a draft client-side. Errors wrap ErrValidation.
	Validate(d Draft) error

	// Create submits the draft and returns the canonical server-rendered item.
	Create(ctx context.Context, d Draft) (Item, error)

	// Update saves an inline edit and returns the server message.
	Update(ctx context.Context, id int64, d Draft) (string, error)

	// Apply merges a saved draft into the in-memory item.
	Apply(item Item, d Draft) Item

	// Delete removes the item; canUndo signals a live server-side undo slot.
	Delete(ctx context.Context, id int64) (msg string, canUndo bool, err error)

	// Undo restores the most recently deleted item for this session.
	Undo(ctx context.Context) (Item, string, error)

	// SaveOrder replaces the entire persisted order atomically.
	SaveOrder(ctx context.Context, order []int64) error
}

// TransactionBinding binds the transactions list to the backend.
type TransactionBinding struct {
	Client *api.Client
}

func (TransactionBinding) Kind() ListKind { return Transactions }

func (TransactionBinding) Validate(d Draft) error {
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(d.Amount), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: invalid amount format", ErrValidation)
	}
	if amount < 0 {
		return fmt.Errorf("%w: amount must be non negative", ErrValidation)
	}
	if !model.ValidTxType(d.Type) {
		return fmt.Errorf("%w: invalid transaction type", ErrValidation)
	}
	return nil
}

func (b TransactionBinding) Create(ctx context.Context, d Draft) (Item, error) {
	return b.Client.AddTransaction(ctx, strings.TrimSpace(d.Description), strings.TrimSpace(d.Amount), d.Type)
}

func (b TransactionBinding) Update(ctx context.Context, id int64, d Draft) (string, error) {
	amount, _ := strconv.ParseFloat(strings.TrimSpace(d.Amount), 64)
	return b.Client.UpdateTransaction(ctx, id, api.TxPayload{
		Description: strings.TrimSpace(d.Description),
		Amount:      amount,
		Type:        d.Type,
	})
}

func (TransactionBinding) Apply(item Item, d Draft) Item {
	tx, ok := item.(model.Transaction)
	if !ok {
		return item
	}
	tx.Description = strings.TrimSpace(d.Description)
	tx.Amount, _ = strconv.ParseFloat(strings.TrimSpace(d.Amount), 64)
	tx.Type = d.Type
	return tx
}

func (b TransactionBinding) Delete(ctx context.Context, id int64) (string, bool, error) {
	return b.Client.DeleteTransaction(ctx, id)
}

func (b TransactionBinding) Undo(ctx context.Context) (Item, string, error) {
	return b.Client.UndoDeleteTransaction(ctx)
}

func (b TransactionBinding) SaveOrder(ctx context.Context, order []int64) error {
	return b.Client.ReorderTransactions(ctx, order)
}

// NoteBinding binds the notes list to the backend.
type NoteBinding struct {
	Client *api.Client
}

func (NoteBinding) Kind() ListKind { return Notes }

func (NoteBinding) Validate(d Draft) error {
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrValidation)
	}
	return nil
}

func (b NoteBinding) Create(ctx context.Context, d Draft) (Item, error) {
	return b.Client.AddNote(ctx, strings.TrimSpace(d.Content))
}

func (b NoteBinding) Update(ctx context.Context, id int64, d Draft) (string, error) {
	return b.Client.UpdateNote(ctx, id, strings.TrimSpace(d.Content))
}

func (NoteBinding) Apply(item Item, d Draft) Item {
	n, ok := item.(model.Note)
	if !ok {
		return item
	}
	n.Content = strings.TrimSpace(d.Content)
	return n
}

func (b NoteBinding) Delete(ctx context.Context, id int64) (string, bool, error) {
	return b.Client.DeleteNote(ctx, id)
}

func (b NoteBinding) Undo(ctx context.Context) (Item, string, error) {
	return b.Client.UndoDeleteNote(ctx)
}

func (b NoteBinding) SaveOrder(ctx context.Context, order []int64) error {
	return b.Client.ReorderNotes(ctx, order)
}
