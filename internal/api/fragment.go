package api

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/tallyhq/tally/internal/model"
)

// The backend answers create and undo calls with rendered HTML fragments, one
// item[data-id] node per row. data-id is the join key between a row and its
// server record, so a fragment without it is malformed.

func parseFragment(src string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return doc, nil
}

// ParseTransactionRow extracts a transaction from a rendered row fragment.
func ParseTransactionRow(src string) (model.Transaction, error) {
	doc, err := parseFragment(src)
	if err != nil {
		return model.Transaction{}, err
	}
	row := findRow(doc)
	if row == nil {
		return model.Transaction{}, fmt.Errorf("%w: no item node with data-id", ErrMalformed)
	}
	id, err := strconv.ParseInt(attr(row, "data-id"), 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: bad data-id %q", ErrMalformed, attr(row, "data-id"))
	}
	amount, err := strconv.ParseFloat(attr(row, "data-amount"), 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: bad data-amount %q", ErrMalformed, attr(row, "data-amount"))
	}
	t := model.TxType(attr(row, "data-type"))
	if !model.ValidTxType(t) {
		return model.Transaction{}, fmt.Errorf("%w: bad data-type %q", ErrMalformed, attr(row, "data-type"))
	}
	return model.Transaction{
		ID:          id,
		Description: textOfClass(row, "description"),
		Amount:      amount,
		Type:        t,
	}, nil
}

// ParseNoteRow extracts a note from a rendered row fragment.
func ParseNoteRow(src string) (model.Note, error) {
	doc, err := parseFragment(src)
	if err != nil {
		return model.Note{}, err
	}
	row := findRow(doc)
	if row == nil {
		return model.Note{}, fmt.Errorf("%w: no item node with data-id", ErrMalformed)
	}
	id, err := strconv.ParseInt(attr(row, "data-id"), 10, 64)
	if err != nil {
		return model.Note{}, fmt.Errorf("%w: bad data-id %q", ErrMalformed, attr(row, "data-id"))
	}
	return model.Note{ID: id, Content: textOfClass(row, "content")}, nil
}

// Page is the parsed initial document: the CSRF token sourced once per load
// and the two server-ordered lists.
type Page struct {
	CSRF         string
	Transactions []model.Transaction
	Notes        []model.Note
}

// ParsePage reads the bootstrap HTML served at /.
func ParsePage(src string) (Page, error) {
	doc, err := parseFragment(src)
	if err != nil {
		return Page{}, err
	}
	var p Page

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch {
		case n.Data == "meta" && attr(n, "name") == "csrf-token":
			p.CSRF = attr(n, "content")
		case attr(n, "id") == "transactions":
			for _, row := range childRows(n) {
				tx, err := rowToTransaction(row)
				if err == nil {
					p.Transactions = append(p.Transactions, tx)
				}
			}
		case attr(n, "id") == "notes":
			for _, row := range childRows(n) {
				id, err := strconv.ParseInt(attr(row, "data-id"), 10, 64)
				if err == nil {
					p.Notes = append(p.Notes, model.Note{ID: id, Content: textOfClass(row, "content")})
				}
			}
		}
	})

	if p.CSRF == "" {
		return Page{}, fmt.Errorf("%w: page has no csrf-token meta", ErrMalformed)
	}
	return p, nil
}

func rowToTransaction(row *html.Node) (model.Transaction, error) {
	id, err := strconv.ParseInt(attr(row, "data-id"), 10, 64)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := strconv.ParseFloat(attr(row, "data-amount"), 64)
	if err != nil {
		return model.Transaction{}, err
	}
	return model.Transaction{
		ID:          id,
		Description: textOfClass(row, "description"),
		Amount:      amount,
		Type:        model.TxType(attr(row, "data-type")),
	}, nil
}

func findRow(n *html.Node) *html.Node {
	var row *html.Node
	walk(n, func(c *html.Node) {
		if row == nil && c.Type == html.ElementNode && attr(c, "data-id") != "" {
			row = c
		}
	})
	return row
}

func childRows(container *html.Node) []*html.Node {
	var rows []*html.Node
	walk(container, func(c *html.Node) {
		if c != container && c.Type == html.ElementNode && attr(c, "data-id") != "" {
			rows = append(rows, c)
		}
	})
	return rows
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOfClass(n *html.Node, class string) string {
	var target *html.Node
	walk(n, func(c *html.Node) {
		if target == nil && c.Type == html.ElementNode && hasClass(c, class) {
			target = c
		}
	})
	if target == nil {
		return ""
	}
	var sb strings.Builder
	walk(target, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return strings.TrimSpace(sb.String())
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
