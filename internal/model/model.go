// Package model holds the domain types shared by the sync engine, the API
// client, and the reference server.
package model

// RowState tracks where a list row sits in its mutation lifecycle.
type RowState int

const (
	StateClean RowState = iota
	StateEditing
	StateSaving
	StateError
	StateDeleting
)

func (s RowState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateEditing:
		return "editing"
	case StateSaving:
		return "saving"
	case StateError:
		return "error"
	case StateDeleting:
		return "deleting"
	}
	return "unknown"
}

// TxType is the transaction direction. The backend only accepts these two.
type TxType string

const (
	TxIncome  TxType = "income"
	TxExpense TxType = "expense"
)

// ValidTxType reports whether t is one of the accepted directions.
func ValidTxType(t TxType) bool { return t == TxIncome || t == TxExpense }

// Transaction is one entry in the transactions list. ID is server-assigned
// and stable; Position is 1-based persisted order.
type Transaction struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        TxType  `json:"type"`
	Position    int     `json:"position"`
}

// RowID implements sync.Item.
func (t Transaction) RowID() int64 { return t.ID }

// Note is one entry in the notes list.
type Note struct {
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// RowID implements sync.Item.
func (n Note) RowID() int64 { return n.ID }

// Totals is the aggregate snapshot served by /api/finance_totals.
// It is always replaced wholesale, never merged field by field.
type Totals struct {
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}
