// Package api is the HTTP client for the finance/notes backend. It speaks
// the backend's exact wire contract: form-encoded creates answered with HTML
// row fragments, JSON mutations, and a JSON totals feed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/tallyhq/tally/internal/model"
)

// extraAttempts is the retry cap for the calls that retry at all (totals
// fetch and note saves): two extra attempts, immediate, then surface.
const extraAttempts = 2

type Client struct {
	base *url.URL
	hc   *http.Client

	mu   sync.Mutex
	csrf string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithSessionCookie seeds a session cookie for backends that authenticate
// requests, e.g. from stored credentials.
func WithSessionCookie(name, value string) Option {
	return func(c *Client) {
		c.hc.Jar.SetCookies(c.base, []*http.Cookie{{Name: name, Value: value}})
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	c := &Client{
		base: base,
		hc:   &http.Client{Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Bootstrap loads the index page, captures the document-level CSRF token
// (sourced once per load), and returns the server-ordered lists.
func (c *Client) Bootstrap(ctx context.Context) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/"), nil)
	if err != nil {
		return Page{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("load page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, &Error{Status: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("read page: %w", err)
	}
	page, err := ParsePage(string(body))
	if err != nil {
		return Page{}, err
	}
	c.mu.Lock()
	c.csrf = page.CSRF
	c.mu.Unlock()
	return page, nil
}

// SetCSRF overrides the token, for tests and for tokens sourced elsewhere.
func (c *Client) SetCSRF(token string) {
	c.mu.Lock()
	c.csrf = token
	c.mu.Unlock()
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// mutatingHeaders attaches the XHR marker plus the CSRF token under both
// header names the backend accepts.
func (c *Client) mutatingHeaders(req *http.Request) {
	c.mu.Lock()
	token := c.csrf
	c.mu.Unlock()
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("X-CSRFToken", token)
	req.Header.Set("X-CSRF-Token", token)
	req.Header.Set("Accept", "application/json")
}

type messageBody struct {
	Message string `json:"message"`
	CanUndo bool   `json:"can_undo"`
	RowHTML string `json:"row_html"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out *messageBody) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mutatingHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var mb messageBody
	_ = json.Unmarshal(raw, &mb)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: mb.Message}
	}
	if out != nil {
		*out = mb
	}
	return nil
}

// Totals fetches the aggregate snapshot, retrying transport failures up to
// the cap. Income and expense must decode as finite numbers; anything else
// is a malformed response and takes the failure path.
func (c *Client) Totals(ctx context.Context) (model.Totals, error) {
	return c.totals(ctx, "")
}

// TotalsForScenario fetches totals scoped by scenario_id.
func (c *Client) TotalsForScenario(ctx context.Context, scenarioID int64) (model.Totals, error) {
	return c.totals(ctx, fmt.Sprintf("?scenario_id=%d", scenarioID))
}

func (c *Client) totals(ctx context.Context, query string) (model.Totals, error) {
	var out model.Totals
	err := retryDo(ctx, extraAttempts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/finance_totals")+query, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("fetch totals: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &Error{Status: resp.StatusCode}
		}
		var raw struct {
			Income  *float64 `json:"income"`
			Expense *float64 `json:"expense"`
			Balance *float64 `json:"balance"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if raw.Income == nil || raw.Expense == nil {
			return fmt.Errorf("%w: income/expense missing", ErrMalformed)
		}
		if !finite(*raw.Income) || !finite(*raw.Expense) {
			return fmt.Errorf("%w: income/expense not finite", ErrMalformed)
		}
		out = model.Totals{Income: *raw.Income, Expense: *raw.Expense}
		if raw.Balance != nil && finite(*raw.Balance) {
			out.Balance = *raw.Balance
		} else {
			out.Balance = out.Income - out.Expense
		}
		return nil
	})
	return out, err
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// AddTransaction submits the new-item form. The server answers with the
// canonical rendered row, which carries the assigned id.
func (c *Client) AddTransaction(ctx context.Context, description, amount string, t model.TxType) (model.Transaction, error) {
	c.mu.Lock()
	token := c.csrf
	c.mu.Unlock()

	form := url.Values{}
	form.Set("description", description)
	form.Set("amount", amount)
	form.Set("type", string(t))
	form.Set("csrf_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/add_transaction"), strings.NewReader(form.Encode()))
	if err != nil {
		return model.Transaction{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.mutatingHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var mb messageBody
		_ = json.Unmarshal(raw, &mb)
		return model.Transaction{}, &Error{Status: resp.StatusCode, Message: mb.Message}
	}
	return ParseTransactionRow(string(raw))
}

// TxPayload is the inline-edit body for a transaction.
type TxPayload struct {
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	Type        model.TxType `json:"type"`
}

// UpdateTransaction saves an inline edit. Transaction mutations are not
// retried client-side; the user re-acts on failure.
func (c *Client) UpdateTransaction(ctx context.Context, id int64, p TxPayload) (string, error) {
	var out messageBody
	if err := c.postJSON(ctx, fmt.Sprintf("/update_transaction/%d", id), p, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// DeleteTransaction removes a row. can_undo signals a live undo window
// server-side.
func (c *Client) DeleteTransaction(ctx context.Context, id int64) (string, bool, error) {
	var out messageBody
	if err := c.postJSON(ctx, fmt.Sprintf("/delete_transaction/%d", id), nil, &out); err != nil {
		return "", false, err
	}
	return out.Message, out.CanUndo, nil
}

// UndoDeleteTransaction restores the most recently deleted transaction for
// this session. The request carries no id: the server keeps a single undo
// slot per session. The response carries the rendered restored row.
func (c *Client) UndoDeleteTransaction(ctx context.Context) (model.Transaction, string, error) {
	var out messageBody
	if err := c.postJSON(ctx, "/undo_delete_transaction", nil, &out); err != nil {
		return model.Transaction{}, "", err
	}
	tx, err := ParseTransactionRow(out.RowHTML)
	if err != nil {
		return model.Transaction{}, "", err
	}
	return tx, out.Message, nil
}

// ReorderTransactions replaces the entire persisted order atomically.
func (c *Client) ReorderTransactions(ctx context.Context, order []int64) error {
	return c.postJSON(ctx, "/reorder_transactions", map[string][]int64{"order": order}, nil)
}

// UpdateNote saves note content, retrying transport failures up to the cap.
func (c *Client) UpdateNote(ctx context.Context, id int64, content string) (string, error) {
	var out messageBody
	err := retryDo(ctx, extraAttempts, func(ctx context.Context) error {
		return c.postJSON(ctx, fmt.Sprintf("/update_note/%d", id), map[string]string{"content": content}, &out)
	})
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// AddNote submits the new-note form and returns the rendered row.
func (c *Client) AddNote(ctx context.Context, content string) (model.Note, error) {
	c.mu.Lock()
	token := c.csrf
	c.mu.Unlock()

	form := url.Values{}
	form.Set("note", content)
	form.Set("csrf_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/add_note"), strings.NewReader(form.Encode()))
	if err != nil {
		return model.Note{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.mutatingHeaders(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		return model.Note{}, fmt.Errorf("add note: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var mb messageBody
		_ = json.Unmarshal(raw, &mb)
		return model.Note{}, &Error{Status: resp.StatusCode, Message: mb.Message}
	}
	return ParseNoteRow(string(raw))
}

// DeleteNote removes a note row.
func (c *Client) DeleteNote(ctx context.Context, id int64) (string, bool, error) {
	var out messageBody
	if err := c.postJSON(ctx, fmt.Sprintf("/delete_note/%d", id), nil, &out); err != nil {
		return "", false, err
	}
	return out.Message, out.CanUndo, nil
}

// UndoDeleteNote restores the most recently deleted note for this session.
func (c *Client) UndoDeleteNote(ctx context.Context) (model.Note, string, error) {
	var out messageBody
	if err := c.postJSON(ctx, "/undo_delete_note", nil, &out); err != nil {
		return model.Note{}, "", err
	}
	n, err := ParseNoteRow(out.RowHTML)
	if err != nil {
		return model.Note{}, "", err
	}
	return n, out.Message, nil
}

// ReorderNotes replaces the entire persisted note order atomically.
func (c *Client) ReorderNotes(ctx context.Context, order []int64) error {
	return c.postJSON(ctx, "/reorder_notes", map[string][]int64{"order": order}, nil)
}
