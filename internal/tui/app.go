// Package tui is the interactive terminal front end. It renders the two
// synchronized lists, the totals chart, and the notification stack, and maps
// key presses onto synchronizer operations.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tallyhq/tally/internal/api"
	"github.com/tallyhq/tally/internal/debounce"
	"github.com/tallyhq/tally/internal/model"
	"github.com/tallyhq/tally/internal/reorder"
	"github.com/tallyhq/tally/internal/summary"
	"github.com/tallyhq/tally/internal/sync"
	"github.com/tallyhq/tally/internal/toast"
)

const flashDuration = 900 * time.Millisecond

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
)

type (
	bootMsg struct {
		page api.Page
		err  error
	}
	syncEvMsg    struct{ ev sync.Event }
	toastsMsg    struct{}
	totalsMsg    struct{}
	opDoneMsg    struct{}
	flashDoneMsg struct{ seq int }

	// createDoneMsg carries the raw input back so a failed create can
	// reopen the form with the draft still filled in.
	createDoneMsg struct {
		raw   string
		focus int
		err   error
	}
)

// App is the Bubble Tea model. Both panes share one text input for inline
// add and edit: one field, two modes.
type App struct {
	ctx context.Context

	client    *api.Client
	txs       *sync.Synchronizer
	notes     *sync.Synchronizer
	toasts    *toast.Queue
	refresher *summary.Refresher
	adapter   *reorder.Adapter

	lists [2]list.Model
	focus int
	flash *flashes

	spin     spinner.Model
	ti       textinput.Model
	mode     mode
	editID   int64
	inputErr string

	width  int
	height int
	ready  bool
	err    error
}

func newList(title string, kind sync.ListKind, f *flashes) list.Model {
	l := list.New(nil, rowDelegate{kind: kind, flash: f}, 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetShowPagination(true)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = helpStyle
	l.FilterInput.Prompt = "/ "

	moveUp := key.NewBinding(key.WithKeys("K"), key.WithHelp("K", "move up"))
	moveDown := key.NewBinding(key.WithKeys("J"), key.WithHelp("J", "move down"))
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{moveUp, moveDown} }
	return l
}

func newApp(ctx context.Context, client *api.Client, txs, notes *sync.Synchronizer, toasts *toast.Queue, refresher *summary.Refresher) *App {
	f := newFlashes()
	a := &App{
		ctx:       ctx,
		client:    client,
		txs:       txs,
		notes:     notes,
		toasts:    toasts,
		refresher: refresher,
		adapter:   reorder.NewAdapter(),
		flash:     f,
	}
	a.lists[0] = newList("Transactions", sync.Transactions, f)
	a.lists[1] = newList("Notes", sync.Notes, f)

	a.spin = spinner.New()
	a.spin.Spinner = spinner.Dot
	a.spin.Style = accentStyle

	a.ti = textinput.New()
	a.ti.Prompt = "> "
	a.ti.CharLimit = 200
	return a
}

// Run wires the full client stack and blocks until the user quits.
func Run(ctx context.Context, client *api.Client) error {
	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	channel := debounce.New()
	defer channel.Stop()
	toasts := toast.NewQueue(func() { send(toastsMsg{}) })
	defer toasts.Stop()
	events := &sync.Dispatcher{}
	events.Subscribe(func(ev sync.Event) { send(syncEvMsg{ev: ev}) })

	txs := sync.New(ctx, sync.Config{
		Binding: sync.TransactionBinding{Client: client},
		Channel: channel,
		Toasts:  toasts,
		Events:  events,
	})
	notes := sync.New(ctx, sync.Config{
		Binding: sync.NoteBinding{Client: client},
		Channel: channel,
		Toasts:  toasts,
		Events:  events,
	})
	refresher := summary.NewRefresher(client.Totals, func() { send(totalsMsg{}) })
	defer refresher.Stop()

	app := newApp(ctx, client, txs, notes, toasts, refresher)
	program = tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.bootstrapCmd(), a.spin.Tick)
}

func (a *App) bootstrapCmd() tea.Cmd {
	return func() tea.Msg {
		page, err := a.client.Bootstrap(a.ctx)
		return bootMsg{page: page, err: err}
	}
}

func (a *App) refreshTotalsCmd() tea.Cmd {
	return func() tea.Msg {
		_ = a.refresher.Refresh(a.ctx)
		return totalsMsg{}
	}
}

func (a *App) synchronizer(pane int) *sync.Synchronizer {
	if pane == 1 {
		return a.notes
	}
	return a.txs
}

func (a *App) current() *sync.Synchronizer { return a.synchronizer(a.focus) }

func (a *App) refreshRows() {
	for pane := 0; pane < 2; pane++ {
		rows := a.synchronizer(pane).Rows()
		items := make([]list.Item, 0, len(rows))
		for _, r := range rows {
			items = append(items, rowItem{view: r})
		}
		a.lists[pane].SetItems(items)
	}
}

func (a *App) selectedID() (int64, bool) {
	it, ok := a.lists[a.focus].SelectedItem().(rowItem)
	if !ok {
		return 0, false
	}
	return it.id(), true
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		return a, nil

	case bootMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, tea.Quit
		}
		items := make([]sync.Item, 0, len(msg.page.Transactions))
		for _, tx := range msg.page.Transactions {
			items = append(items, tx)
		}
		a.txs.SetInitial(items)
		items = items[:0]
		for _, n := range msg.page.Notes {
			items = append(items, n)
		}
		a.notes.SetInitial(items)
		a.bindReorder()
		a.refreshRows()
		a.ready = true
		return a, a.refreshTotalsCmd()

	case syncEvMsg:
		return a.handleEvent(msg.ev)

	case flashDoneMsg:
		a.flash.clear(msg.seq)
		a.refreshRows()
		return a, nil

	case toastsMsg, totalsMsg, opDoneMsg:
		a.refreshRows()
		return a, nil

	case createDoneMsg:
		a.refreshRows()
		if msg.err != nil && a.mode == modeBrowse {
			a.focus = msg.focus
			a.openAdd(msg.raw)
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	var cmd tea.Cmd
	if a.mode != modeBrowse {
		a.ti, cmd = a.ti.Update(msg)
		return a, cmd
	}
	a.lists[a.focus], cmd = a.lists[a.focus].Update(msg)
	return a, cmd
}

func (a *App) bindReorder() {
	a.adapter.Bind(string(sync.Transactions), a.txs.Order, a.txs.ApplyOrder)
	a.adapter.Bind(string(sync.Notes), a.notes.Order, a.notes.ApplyOrder)
}

func (a *App) handleEvent(ev sync.Event) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch e := ev.(type) {
	case sync.RowPulsed:
		seq := a.flash.set(e.Kind, e.ID, e.Pulse)
		cmds = append(cmds, tea.Tick(flashDuration, func(time.Time) tea.Msg {
			return flashDoneMsg{seq: seq}
		}))
	case sync.ItemCreated, sync.ItemDeleted, sync.ItemRestored, sync.ItemUpdated:
		if kindOf(ev) == sync.Transactions {
			// Totals feed the chart; any transaction mutation refreshes it.
			cmds = append(cmds, a.refreshTotalsCmd())
		}
	}
	a.refreshRows()
	return a, tea.Batch(cmds...)
}

func kindOf(ev sync.Event) sync.ListKind {
	switch e := ev.(type) {
	case sync.ItemCreated:
		return e.Kind
	case sync.ItemDeleted:
		return e.Kind
	case sync.ItemRestored:
		return e.Kind
	case sync.ItemUpdated:
		return e.Kind
	}
	return ""
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.mode != modeBrowse {
		return a.handleInputKey(msg)
	}
	if a.lists[a.focus].FilterState() == list.Filtering {
		var cmd tea.Cmd
		a.lists[a.focus], cmd = a.lists[a.focus].Update(msg)
		return a, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "tab":
		a.focus = (a.focus + 1) % 2
		return a, nil
	case "a":
		a.openAdd("")
		return a, nil
	case "e":
		return a.beginEdit()
	case "d":
		if id, ok := a.selectedID(); ok {
			syncer := a.current()
			return a, func() tea.Msg {
				_ = syncer.Delete(a.ctx, id)
				return opDoneMsg{}
			}
		}
		return a, nil
	case "u":
		return a.undo()
	case "r":
		return a, a.refreshTotalsCmd()
	case "J":
		return a.moveRow(1)
	case "K":
		return a.moveRow(-1)
	}

	var cmd tea.Cmd
	a.lists[a.focus], cmd = a.lists[a.focus].Update(msg)
	return a, cmd
}

func (a *App) inputPlaceholder() string {
	if a.focus == 1 {
		return "Note content..."
	}
	return "description amount (+ prefix for income)"
}

func (a *App) beginEdit() (tea.Model, tea.Cmd) {
	id, ok := a.selectedID()
	if !ok {
		return a, nil
	}
	it, _ := a.lists[a.focus].SelectedItem().(rowItem)
	a.mode = modeEdit
	a.editID = id
	a.inputErr = ""
	a.ti.SetValue(editText(it.view.Item))
	a.ti.CursorEnd()
	a.ti.Placeholder = a.inputPlaceholder()
	a.ti.Focus()
	a.toasts.PauseAll()
	a.current().BeginEdit(id)
	return a, nil
}

func editText(item sync.Item) string {
	switch v := item.(type) {
	case model.Transaction:
		prefix := ""
		if v.Type == model.TxIncome {
			prefix = "+"
		}
		return fmt.Sprintf("%s%s %s", prefix, v.Description, money(v.Amount))
	case model.Note:
		return v.Content
	}
	return ""
}

func (a *App) draftFromInput() sync.Draft {
	raw := a.ti.Value()
	if a.focus == 1 {
		return sync.Draft{Content: strings.TrimSpace(raw)}
	}
	return parseTxDraft(raw)
}

// parseTxDraft splits "description amount" on the last space; a leading "+"
// marks income. The amount stays textual so bad input reaches validation.
func parseTxDraft(s string) sync.Draft {
	s = strings.TrimSpace(s)
	typ := model.TxExpense
	if strings.HasPrefix(s, "+") {
		typ = model.TxIncome
		s = strings.TrimSpace(strings.TrimPrefix(s, "+"))
	}
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return sync.Draft{Description: s, Type: typ}
	}
	return sync.Draft{
		Description: strings.TrimSpace(s[:i]),
		Amount:      strings.TrimSpace(s[i+1:]),
		Type:        typ,
	}
}

// openAdd enters add mode. A non-empty value pre-fills the field, used to
// hand a draft back when its create failed on the server.
func (a *App) openAdd(value string) {
	a.mode = modeAdd
	a.inputErr = ""
	a.ti.SetValue(value)
	a.ti.CursorEnd()
	a.ti.Placeholder = a.inputPlaceholder()
	a.ti.Focus()
	a.toasts.PauseAll()
}

func (a *App) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		d := a.draftFromInput()
		if a.mode == modeAdd {
			syncer := a.current()
			if err := syncer.Validate(d); err != nil {
				a.inputErr = err.Error()
				return a, nil
			}
			raw, focus := a.ti.Value(), a.focus
			a.closeInput()
			return a, func() tea.Msg {
				return createDoneMsg{raw: raw, focus: focus, err: syncer.Create(a.ctx, d)}
			}
		}
		if err := a.current().SubmitEdit(a.editID, d); err != nil {
			a.inputErr = err.Error()
			return a, nil
		}
		a.closeInput()
		return a, nil
	case "esc":
		a.closeInput()
		return a, nil
	}
	var cmd tea.Cmd
	a.ti, cmd = a.ti.Update(msg)
	return a, cmd
}

func (a *App) closeInput() {
	a.mode = modeBrowse
	a.inputErr = ""
	a.ti.SetValue("")
	a.ti.Blur()
	a.toasts.ResumeAll()
}

// undo prefers the live toast action so the toast is consumed with it;
// without one it still asks the synchronizer, which answers calmly.
func (a *App) undo() (tea.Model, tea.Cmd) {
	if t, ok := a.toasts.NewestAction(); ok {
		a.toasts.InvokeAction(t.ID)
		return a, nil
	}
	syncer := a.current()
	return a, func() tea.Msg {
		_ = syncer.Undo(a.ctx)
		return opDoneMsg{}
	}
}

func (a *App) moveRow(delta int) (tea.Model, tea.Cmd) {
	l := &a.lists[a.focus]
	from := l.Index()
	to := from + delta
	container := string(sync.Transactions)
	if a.focus == 1 {
		container = string(sync.Notes)
	}
	if a.adapter.Move(container, from, to) {
		a.refreshRows()
		l.Select(to)
	}
	return a, nil
}

func (a *App) layout() {
	if a.width == 0 {
		return
	}
	paneWidth := a.width/2 - 4
	paneHeight := a.height - 12
	if paneHeight < 5 {
		paneHeight = 5
	}
	for i := range a.lists {
		a.lists[i].SetSize(paneWidth, paneHeight)
	}
	a.ti.Width = a.width - 8
}

func (a *App) View() string {
	if a.err != nil {
		return errorStyle.Render("✖ " + a.err.Error())
	}
	if !a.ready {
		return fmt.Sprintf("\n  %s loading...\n", a.spin.View())
	}

	header := a.viewToasts()
	summaryPanel := a.viewSummary()

	left := panelStyle
	right := panelStyle
	if a.focus == 0 {
		left = focusedPanelStyle
	} else {
		right = focusedPanelStyle
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		left.Render(a.lists[0].View()),
		right.Render(a.lists[1].View()),
	)

	var input string
	if a.mode != modeBrowse {
		title := "Add"
		if a.mode == modeEdit {
			title = "Edit"
		}
		if a.inputErr != "" {
			title += "  " + errorStyle.Render(a.inputErr)
		}
		input = panelStyle.Render(title + "\n" + a.ti.View())
	}

	status := a.viewStatus()
	parts := []string{header, summaryPanel, panes}
	if input != "" {
		parts = append(parts, input)
	}
	parts = append(parts, status)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

func (a *App) viewToasts() string {
	active := a.toasts.Active()
	if len(active) == 0 {
		return ""
	}
	lines := make([]string, 0, len(active))
	for _, t := range active {
		var style lipgloss.Style
		switch t.Severity {
		case toast.Success:
			style = successStyle
		case toast.Error:
			style = errorStyle
		default:
			style = infoStyle
		}
		line := style.Render("● " + t.Message)
		if t.Action != nil {
			line += helpStyle.Render("  [u] " + t.Action.Label)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (a *App) viewSummary() string {
	var body string
	switch {
	case a.refresher.Failed():
		body = errorStyle.Render("Totals unavailable") + helpStyle.Render("  press r to retry")
	default:
		snap, ok := a.refresher.Snapshot()
		if !ok {
			body = mutedStyle.Render("Loading totals...")
			break
		}
		max := snap.Income
		if snap.Expense > max {
			max = snap.Expense
		}
		width := 30
		body = fmt.Sprintf("%s %s %s\n%s %s %s\n%s %s",
			incomeStyle.Render("Income "), bar(snap.Income, max, width), money(snap.Income),
			expenseStyle.Render("Expense"), bar(snap.Expense, max, width), money(snap.Expense),
			accentStyle.Render("Balance"), money(snap.Balance),
		)
	}
	if a.refresher.Busy() {
		body += "  " + a.spin.View()
	}
	return panelStyle.Render(body)
}

func (a *App) viewStatus() string {
	last := a.toasts.Last()
	help := helpStyle.Render("a add · e edit · d delete · u undo · J/K move · r refresh · tab switch · q quit")
	if last == "" {
		return help
	}
	return mutedStyle.Render(last) + "\n" + help
}
