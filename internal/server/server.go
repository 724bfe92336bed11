package server

import (
	"crypto/rand"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tallyhq/tally/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	sessionCookie = "tally_session"
	// undoWindow matches the client-side toast: past it the slot is dead.
	undoWindow = 10 * time.Second
	// totalsCacheTTL bounds how stale the totals feed may get between
	// mutations.
	totalsCacheTTL = 30 * time.Second
)

// session holds per-actor state: the CSRF token and the single undo slot for
// each list. Deleting a second item overwrites the slot.
type session struct {
	csrf string

	// mu guards the undo slots; handlers for one session may run
	// concurrently.
	mu            sync.Mutex
	lastDeletedTx *deletedSlot[model.Transaction]
	lastDeletedNo *deletedSlot[model.Note]
}

func (sess *session) putTx(slot *deletedSlot[model.Transaction]) {
	sess.mu.Lock()
	sess.lastDeletedTx = slot
	sess.mu.Unlock()
}

func (sess *session) putNote(slot *deletedSlot[model.Note]) {
	sess.mu.Lock()
	sess.lastDeletedNo = slot
	sess.mu.Unlock()
}

// takeTx consumes the transaction undo slot. Only one caller gets it.
func (sess *session) takeTx() *deletedSlot[model.Transaction] {
	sess.mu.Lock()
	slot := sess.lastDeletedTx
	sess.lastDeletedTx = nil
	sess.mu.Unlock()
	return slot
}

func (sess *session) takeNote() *deletedSlot[model.Note] {
	sess.mu.Lock()
	slot := sess.lastDeletedNo
	sess.lastDeletedNo = nil
	sess.mu.Unlock()
	return slot
}

type deletedSlot[T any] struct {
	item      T
	deletedAt time.Time
}

type totalsCache struct {
	income  float64
	expense float64
	at      time.Time
}

// Server serves the index page, the totals feed, and the list mutation
// endpoints over a Store.
type Server struct {
	store Store
	tmpl  *template.Template
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	totals   *totalsCache
}

func New(store Store, log *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:    store,
		tmpl:     tmpl,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*session),
	}, nil
}

// Handler returns the full route set wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/finance_totals", s.financeTotals)

	mux.HandleFunc("POST /add_transaction", s.mutating(s.addTransaction))
	mux.HandleFunc("POST /update_transaction/{id}", s.mutating(s.updateTransaction))
	mux.HandleFunc("POST /delete_transaction/{id}", s.mutating(s.deleteTransaction))
	mux.HandleFunc("POST /undo_delete_transaction", s.mutating(s.undoDeleteTransaction))
	mux.HandleFunc("POST /reorder_transactions", s.mutating(s.reorderTransactions))

	mux.HandleFunc("POST /add_note", s.mutating(s.addNote))
	mux.HandleFunc("POST /update_note/{id}", s.mutating(s.updateNote))
	mux.HandleFunc("POST /delete_note/{id}", s.mutating(s.deleteNote))
	mux.HandleFunc("POST /undo_delete_note", s.mutating(s.undoDeleteNote))
	mux.HandleFunc("POST /reorder_notes", s.mutating(s.reorderNotes))

	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFor finds or creates the caller's session, setting the cookie on
// first contact.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		if sess, ok := s.sessions[c.Value]; ok {
			s.mu.Unlock()
			return sess
		}
		s.mu.Unlock()
	}

	id := randomToken()
	sess := &session{csrf: randomToken()}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func randomToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// mutating wraps a handler with session lookup and CSRF verification. The
// token is accepted from either compatibility header or the form field.
func (s *Server) mutating(next func(http.ResponseWriter, *http.Request, *session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.sessionFor(w, r)
		token := r.Header.Get("X-CSRFToken")
		if token == "" {
			token = r.Header.Get("X-CSRF-Token")
		}
		if token == "" && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
			token = r.PostFormValue("csrf_token")
		}
		if token == "" || token != sess.csrf {
			s.log.Info("csrf rejected", "path", r.URL.Path)
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "CSRF token missing or invalid."})
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	sess := s.sessionFor(w, r)
	txs, err := s.store.Transactions()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	notes, err := s.store.Notes()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := struct {
		CSRF         string
		Transactions []model.Transaction
		Notes        []model.Note
	}{sess.csrf, txs, notes}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index", data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) financeTotals(w http.ResponseWriter, r *http.Request) {
	// scenario_id is accepted for contract compatibility; the reference
	// store holds a single scenario.
	_ = r.URL.Query().Get("scenario_id")

	s.mu.Lock()
	cached := s.totals
	s.mu.Unlock()

	if cached == nil || s.now().Sub(cached.at) > totalsCacheTTL {
		income, expense, err := s.store.TransactionSums()
		if err != nil {
			s.fail(w, r, err)
			return
		}
		cached = &totalsCache{income: income, expense: expense, at: s.now()}
		s.mu.Lock()
		s.totals = cached
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusOK, map[string]float64{
		"income":  round2(cached.income),
		"expense": round2(cached.expense),
		"balance": round2(cached.income - cached.expense),
	})
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func (s *Server) invalidateTotals() {
	s.mu.Lock()
	s.totals = nil
	s.mu.Unlock()
}

func (s *Server) addTransaction(w http.ResponseWriter, r *http.Request, _ *session) {
	description := strings.TrimSpace(r.PostFormValue("description"))
	amountStr := strings.TrimSpace(r.PostFormValue("amount"))
	t := model.TxType(strings.TrimSpace(r.PostFormValue("type")))

	if description == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Description is required."})
		return
	}
	amount, err := strconv.ParseFloat(amountStr, 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid amount format."})
		return
	}
	if amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Amount must be non negative."})
		return
	}
	if !model.ValidTxType(t) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid transaction type."})
		return
	}

	tx, err := s.store.AddTransaction(description, amount, t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateTotals()
	s.renderRow(w, "transaction_row", tx)
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request, _ *session) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p struct {
		Description string       `json:"description"`
		Amount      float64      `json:"amount"`
		Type        model.TxType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payload."})
		return
	}
	if p.Amount < 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Amount must be non negative."})
		return
	}
	if !model.ValidTxType(p.Type) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid transaction type."})
		return
	}
	if err := s.store.UpdateTransaction(id, strings.TrimSpace(p.Description), p.Amount, p.Type); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction updated successfully"})
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request, sess *session) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tx, err := s.store.DeleteTransaction(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess.putTx(&deletedSlot[model.Transaction]{item: tx, deletedAt: s.now()})
	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Transaction deleted", "can_undo": true})
}

func (s *Server) undoDeleteTransaction(w http.ResponseWriter, r *http.Request, sess *session) {
	slot := sess.takeTx()
	if slot == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Nothing to undo."})
		return
	}
	if s.now().Sub(slot.deletedAt) > undoWindow {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Undo window expired."})
		return
	}
	restored, err := s.store.RestoreTransaction(slot.item)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidateTotals()

	var sb strings.Builder
	if err := s.tmpl.ExecuteTemplate(&sb, "transaction_row", restored); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction restored.", "row_html": sb.String()})
}

func (s *Server) reorderTransactions(w http.ResponseWriter, r *http.Request, _ *session) {
	ids, ok := readOrder(w, r)
	if !ok {
		return
	}
	if err := s.store.ReorderTransactions(ids); err != nil {
		if errors.Is(err, ErrUnknownIDs) {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "Order contains unknown or unauthorized transaction ids."})
			return
		}
		s.fail(w, r, err)
		return
	}
	s.invalidateTotals()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction order saved."})
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request, _ *session) {
	content := strings.TrimSpace(r.PostFormValue("note"))
	if content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Empty content"})
		return
	}
	n, err := s.store.AddNote(content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderRow(w, "note_row", n)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request, _ *session) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payload."})
		return
	}
	content := strings.TrimSpace(p.Content)
	if content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Empty content"})
		return
	}
	if err := s.store.UpdateNote(id, content); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note updated"})
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request, sess *session) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := s.store.DeleteNote(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess.putNote(&deletedSlot[model.Note]{item: n, deletedAt: s.now()})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Note deleted", "can_undo": true})
}

func (s *Server) undoDeleteNote(w http.ResponseWriter, r *http.Request, sess *session) {
	slot := sess.takeNote()
	if slot == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Nothing to undo."})
		return
	}
	if s.now().Sub(slot.deletedAt) > undoWindow {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Undo window expired."})
		return
	}
	restored, err := s.store.RestoreNote(slot.item)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var sb strings.Builder
	if err := s.tmpl.ExecuteTemplate(&sb, "note_row", restored); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note restored.", "row_html": sb.String()})
}

func (s *Server) reorderNotes(w http.ResponseWriter, r *http.Request, _ *session) {
	ids, ok := readOrder(w, r)
	if !ok {
		return
	}
	if err := s.store.ReorderNotes(ids); err != nil {
		if errors.Is(err, ErrUnknownIDs) {
			writeJSON(w, http.StatusForbidden, map[string]string{"message": "Order contains unknown or unauthorized note ids."})
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note order saved."})
}

func (s *Server) renderRow(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("render row", "template", name, "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
		return
	}
	s.log.Error("request failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Database error"})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
		return 0, false
	}
	return id, true
}

func readOrder(w http.ResponseWriter, r *http.Request) ([]int64, bool) {
	var p struct {
		Order []int64 `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || len(p.Order) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid order payload."})
		return nil, false
	}
	return p.Order, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
