package server

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tallyhq/tally/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	amount REAL NOT NULL,
	type TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transactions_position ON transactions(position);
CREATE TABLE IF NOT EXISTS notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_notes_position ON notes(position);
`

// SQLiteStore persists both lists in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Transactions() ([]model.Transaction, error) {
	rows, err := s.db.Query(`SELECT id, description, amount, type, position FROM transactions ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.ID, &tx.Description, &tx.Amount, &tx.Type, &tx.Position); err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddTransaction(description string, amount float64, t model.TxType) (model.Transaction, error) {
	var tx model.Transaction
	err := s.inTx(func(q *sql.Tx) error {
		var maxPos sql.NullInt64
		if err := q.QueryRow(`SELECT MAX(position) FROM transactions`).Scan(&maxPos); err != nil {
			return err
		}
		pos := int(maxPos.Int64) + 1
		res, err := q.Exec(`INSERT INTO transactions (description, amount, type, position) VALUES (?, ?, ?, ?)`,
			description, amount, string(t), pos)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		tx = model.Transaction{ID: id, Description: description, Amount: amount, Type: t, Position: pos}
		return nil
	})
	return tx, err
}

func (s *SQLiteStore) UpdateTransaction(id int64, description string, amount float64, t model.TxType) error {
	res, err := s.db.Exec(`UPDATE transactions SET description = ?, amount = ?, type = ? WHERE id = ?`,
		description, amount, string(t), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteTransaction(id int64) (model.Transaction, error) {
	var tx model.Transaction
	err := s.inTx(func(q *sql.Tx) error {
		row := q.QueryRow(`SELECT id, description, amount, type, position FROM transactions WHERE id = ?`, id)
		if err := row.Scan(&tx.ID, &tx.Description, &tx.Amount, &tx.Type, &tx.Position); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		_, err := q.Exec(`DELETE FROM transactions WHERE id = ?`, id)
		return err
	})
	return tx, err
}

func (s *SQLiteStore) RestoreTransaction(tx model.Transaction) (model.Transaction, error) {
	err := s.inTx(func(q *sql.Tx) error {
		if tx.Position <= 0 {
			var maxPos sql.NullInt64
			if err := q.QueryRow(`SELECT MAX(position) FROM transactions`).Scan(&maxPos); err != nil {
				return err
			}
			tx.Position = int(maxPos.Int64) + 1
		} else {
			if _, err := q.Exec(`UPDATE transactions SET position = position + 1 WHERE position >= ?`, tx.Position); err != nil {
				return err
			}
		}
		if tx.ID > 0 {
			_, err := q.Exec(`INSERT INTO transactions (id, description, amount, type, position) VALUES (?, ?, ?, ?, ?)`,
				tx.ID, tx.Description, tx.Amount, string(tx.Type), tx.Position)
			return err
		}
		res, err := q.Exec(`INSERT INTO transactions (description, amount, type, position) VALUES (?, ?, ?, ?)`,
			tx.Description, tx.Amount, string(tx.Type), tx.Position)
		if err != nil {
			return err
		}
		tx.ID, err = res.LastInsertId()
		return err
	})
	return tx, err
}

func (s *SQLiteStore) ReorderTransactions(ids []int64) error {
	return s.reorder(`transactions`, ids)
}

func (s *SQLiteStore) TransactionSums() (float64, float64, error) {
	var income, expense sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT
			SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END),
			SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END)
		FROM transactions`).Scan(&income, &expense)
	if err != nil {
		return 0, 0, err
	}
	return income.Float64, expense.Float64, nil
}

func (s *SQLiteStore) Notes() ([]model.Note, error) {
	rows, err := s.db.Query(`SELECT id, content, position FROM notes ORDER BY position ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Content, &n.Position); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddNote(content string) (model.Note, error) {
	var n model.Note
	err := s.inTx(func(q *sql.Tx) error {
		var maxPos sql.NullInt64
		if err := q.QueryRow(`SELECT MAX(position) FROM notes`).Scan(&maxPos); err != nil {
			return err
		}
		pos := int(maxPos.Int64) + 1
		res, err := q.Exec(`INSERT INTO notes (content, position) VALUES (?, ?)`, content, pos)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		n = model.Note{ID: id, Content: content, Position: pos}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) UpdateNote(id int64, content string) error {
	res, err := s.db.Exec(`UPDATE notes SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteNote(id int64) (model.Note, error) {
	var n model.Note
	err := s.inTx(func(q *sql.Tx) error {
		row := q.QueryRow(`SELECT id, content, position FROM notes WHERE id = ?`, id)
		if err := row.Scan(&n.ID, &n.Content, &n.Position); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		_, err := q.Exec(`DELETE FROM notes WHERE id = ?`, id)
		return err
	})
	return n, err
}

func (s *SQLiteStore) RestoreNote(n model.Note) (model.Note, error) {
	err := s.inTx(func(q *sql.Tx) error {
		if n.Position <= 0 {
			var maxPos sql.NullInt64
			if err := q.QueryRow(`SELECT MAX(position) FROM notes`).Scan(&maxPos); err != nil {
				return err
			}
			n.Position = int(maxPos.Int64) + 1
		} else {
			if _, err := q.Exec(`UPDATE notes SET position = position + 1 WHERE position >= ?`, n.Position); err != nil {
				return err
			}
		}
		if n.ID > 0 {
			_, err := q.Exec(`INSERT INTO notes (id, content, position) VALUES (?, ?, ?)`, n.ID, n.Content, n.Position)
			return err
		}
		res, err := q.Exec(`INSERT INTO notes (content, position) VALUES (?, ?)`, n.Content, n.Position)
		if err != nil {
			return err
		}
		n.ID, err = res.LastInsertId()
		return err
	})
	return n, err
}

func (s *SQLiteStore) ReorderNotes(ids []int64) error {
	return s.reorder(`notes`, ids)
}

// reorder replaces the whole stored order: the id set must match exactly,
// then positions are renumbered 1..n in the given sequence.
func (s *SQLiteStore) reorder(table string, ids []int64) error {
	if len(ids) == 0 {
		return ErrUnknownIDs
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return ErrUnknownIDs
		}
		seen[id] = true
	}
	return s.inTx(func(q *sql.Tx) error {
		var total int
		if err := q.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&total); err != nil {
			return err
		}
		if total != len(ids) {
			return ErrUnknownIDs
		}
		for i, id := range ids {
			res, err := q.Exec(`UPDATE `+table+` SET position = ? WHERE id = ?`, i+1, id)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrUnknownIDs
			}
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
