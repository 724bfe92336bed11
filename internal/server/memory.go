package server

import (
	"sort"
	"sync"

	"github.com/tallyhq/tally/internal/model"
)

// MemoryStore keeps everything in process memory. It is the default for
// development and the round-trip tests.
type MemoryStore struct {
	mu     sync.Mutex
	txs    []model.Transaction
	notes  []model.Note
	nextTx int64
	nextNo int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextTx: 1, nextNo: 1}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Transactions() ([]model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Transaction(nil), m.txs...)
	sortTxs(out)
	return out, nil
}

func sortTxs(txs []model.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Position != txs[j].Position {
			return txs[i].Position < txs[j].Position
		}
		return txs[i].ID < txs[j].ID
	})
}

func sortNotes(notes []model.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Position != notes[j].Position {
			return notes[i].Position < notes[j].Position
		}
		return notes[i].ID < notes[j].ID
	})
}

func (m *MemoryStore) AddTransaction(description string, amount float64, t model.TxType) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxPos := 0
	for _, tx := range m.txs {
		if tx.Position > maxPos {
			maxPos = tx.Position
		}
	}
	tx := model.Transaction{
		ID:          m.nextTx,
		Description: description,
		Amount:      amount,
		Type:        t,
		Position:    maxPos + 1,
	}
	m.nextTx++
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MemoryStore) UpdateTransaction(id int64, description string, amount float64, t model.TxType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txs {
		if m.txs[i].ID == id {
			m.txs[i].Description = description
			m.txs[i].Amount = amount
			m.txs[i].Type = t
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteTransaction(id int64) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.txs {
		if m.txs[i].ID == id {
			tx := m.txs[i]
			m.txs = append(m.txs[:i], m.txs[i+1:]...)
			return tx, nil
		}
	}
	return model.Transaction{}, ErrNotFound
}

func (m *MemoryStore) RestoreTransaction(tx model.Transaction) (model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.Position <= 0 {
		maxPos := 0
		for _, cur := range m.txs {
			if cur.Position > maxPos {
				maxPos = cur.Position
			}
		}
		tx.Position = maxPos + 1
	} else {
		for i := range m.txs {
			if m.txs[i].Position >= tx.Position {
				m.txs[i].Position++
			}
		}
	}
	if tx.ID == 0 {
		tx.ID = m.nextTx
		m.nextTx++
	}
	m.txs = append(m.txs, tx)
	return tx, nil
}

func (m *MemoryStore) ReorderTransactions(ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := positionsFor(ids, len(m.txs), func(id int64) bool {
		for _, tx := range m.txs {
			if tx.ID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return err
	}
	for i := range m.txs {
		m.txs[i].Position = pos[m.txs[i].ID]
	}
	return nil
}

func (m *MemoryStore) TransactionSums() (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var income, expense float64
	for _, tx := range m.txs {
		switch tx.Type {
		case model.TxIncome:
			income += tx.Amount
		case model.TxExpense:
			expense += tx.Amount
		}
	}
	return income, expense, nil
}

// positionsFor maps ids to 1-based positions, requiring the id set to match
// the stored set exactly: the wire contract replaces the whole order.
func positionsFor(ids []int64, stored int, exists func(int64) bool) (map[int64]int, error) {
	if len(ids) == 0 || len(ids) != stored {
		return nil, ErrUnknownIDs
	}
	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		if !exists(id) {
			return nil, ErrUnknownIDs
		}
		if _, dup := pos[id]; dup {
			return nil, ErrUnknownIDs
		}
		pos[id] = i + 1
	}
	return pos, nil
}

func (m *MemoryStore) Notes() ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]model.Note(nil), m.notes...)
	sortNotes(out)
	return out, nil
}

func (m *MemoryStore) AddNote(content string) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	maxPos := 0
	for _, n := range m.notes {
		if n.Position > maxPos {
			maxPos = n.Position
		}
	}
	n := model.Note{ID: m.nextNo, Content: content, Position: maxPos + 1}
	m.nextNo++
	m.notes = append(m.notes, n)
	return n, nil
}

func (m *MemoryStore) UpdateNote(id int64, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		if m.notes[i].ID == id {
			m.notes[i].Content = content
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) DeleteNote(id int64) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		if m.notes[i].ID == id {
			n := m.notes[i]
			m.notes = append(m.notes[:i], m.notes[i+1:]...)
			return n, nil
		}
	}
	return model.Note{}, ErrNotFound
}

func (m *MemoryStore) RestoreNote(n model.Note) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.Position <= 0 {
		maxPos := 0
		for _, cur := range m.notes {
			if cur.Position > maxPos {
				maxPos = cur.Position
			}
		}
		n.Position = maxPos + 1
	} else {
		for i := range m.notes {
			if m.notes[i].Position >= n.Position {
				m.notes[i].Position++
			}
		}
	}
	if n.ID == 0 {
		n.ID = m.nextNo
		m.nextNo++
	}
	m.notes = append(m.notes, n)
	return n, nil
}

func (m *MemoryStore) ReorderNotes(ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, err := positionsFor(ids, len(m.notes), func(id int64) bool {
		for _, n := range m.notes {
			if n.ID == id {
				return true
			}
		}
		return false
	})
	if err != nil {
		return err
	}
	for i := range m.notes {
		m.notes[i].Position = pos[m.notes[i].ID]
	}
	return nil
}
