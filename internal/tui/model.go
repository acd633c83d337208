// Package tui is the interactive artworks table: one page at a time, a
// checkbox per row, and the "select N rows" overlay.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/artsel/internal/session"
	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Key bindings.
const (
	keySpace     = " "
	keySpaceAlt  = "space"
	keySelectAll = "a"
	keyTarget    = "n"
	keyClear     = "c"
	keyPrev      = "left"
	keyPrevAlt   = "h"
	keyNext      = "right"
	keyNextAlt   = "l"
	keyEnter     = "enter"
	keyEsc       = "esc"
	keyQuit      = "q"
	keyCtrlC     = "ctrl+c"
)

const (
	defaultTableHeight = 14
	targetPrompt       = "Enter number of rows to select across all pages"
)

// columns of the table after the checkbox, as artwork field names.
var columns = []struct {
	title string
	field string
	width int
}{
	{"TITLE", "title", 32},
	{"PLACE OF ORIGIN", "place_of_origin", 16},
	{"ARTIST", "artist_display", 24},
	{"INSCRIPTIONS", "inscriptions", 20},
	{"START DATE", "date_start", 10},
	{"END DATE", "date_end", 10},
}

// pageLoadedMsg carries the result of an asynchronous page load.
type pageLoadedMsg struct {
	page int
	view session.View
	err  error
}

// Model is the Bubble Tea model of the table.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View interface methods.
type Model struct {
	ctx  context.Context
	sess *session.Session

	view    session.View
	table   table.Model
	input   textinput.Model
	spinner spinner.Model

	loading  bool
	overlay  bool
	status   string
	quitting bool
}

// New creates the model. The first page is loaded by Init.
func New(ctx context.Context, sess *session.Session) Model {
	cols := []table.Column{{Title: "[ ]", Width: 3}}
	for _, c := range columns {
		cols = append(cols, table.Column{Title: c.title, Width: c.width})
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(defaultTableHeight),
	)
	t.SetStyles(tableStyles())

	in := textinput.New()
	in.Placeholder = "e.g. 30"
	in.CharLimit = 9
	in.Width = 12

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	return Model{
		ctx:     ctx,
		sess:    sess,
		view:    sess.View(),
		table:   t,
		input:   in,
		spinner: sp,
		loading: true,
	}
}

// Init starts the spinner and loads page 1.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadPage(1))
}

// Update handles messages and updates the model state (Bubble Tea interface).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h := msg.Height - 8
		if h < 3 {
			h = 3
		}
		m.table.SetHeight(h)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pageLoadedMsg:
		return m.handlePageLoaded(msg)

	case tea.KeyMsg:
		if msg.String() == keyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.overlay {
			return m.handleOverlayKey(msg)
		}
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handlePageLoaded(msg pageLoadedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.status = loadErrorText(msg.page, msg.err)
		return m, nil
	}
	m.status = ""
	m.view = msg.view
	m.refreshRows()
	m.table.SetCursor(0)
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyQuit:
		m.quitting = true
		return m, tea.Quit

	case keySpace, keySpaceAlt:
		if row, ok := m.cursorRow(); ok {
			m.view = m.sess.ToggleRow(row.Artwork.ID)
			m.refreshRows()
		}
		return m, nil

	case keySelectAll:
		if len(m.view.Rows) > 0 {
			m.view = m.sess.ToggleSelectAll(!m.view.AllSelected)
			m.refreshRows()
		}
		return m, nil

	case keyClear:
		m.view = m.sess.Clear()
		m.refreshRows()
		return m, nil

	case keyTarget:
		m.overlay = true
		m.input.SetValue("")
		return m, m.input.Focus()

	case keyPrev, keyPrevAlt:
		if m.loading || m.view.Page <= 1 {
			return m, nil
		}
		return m.startLoad(m.view.Page - 1)

	case keyNext, keyNextAlt:
		if m.loading || m.view.Page >= m.view.TotalPages {
			return m, nil
		}
		return m.startLoad(m.view.Page + 1)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc:
		m.overlay = false
		m.input.Blur()
		return m, nil

	case keyEnter:
		view, err := m.sess.RequestTargetInput(m.input.Value())
		if err != nil {
			// invalid input changes nothing and keeps the overlay open
			return m, nil
		}
		m.view = view
		m.overlay = false
		m.input.Blur()
		m.refreshRows()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startLoad(page int) (tea.Model, tea.Cmd) {
	m.loading = true
	m.status = ""
	return m, tea.Batch(m.spinner.Tick, m.loadPage(page))
}

// loadPage fetches page n off the UI goroutine.
func (m Model) loadPage(n int) tea.Cmd {
	sess := m.sess
	ctx := m.ctx
	return func() tea.Msg {
		view, err := sess.Load(ctx, n)
		return pageLoadedMsg{page: n, view: view, err: err}
	}
}

func (m *Model) refreshRows() {
	rows := make([]table.Row, len(m.view.Rows))
	for i, r := range m.view.Rows {
		row := table.Row{checkbox(r.Selected)}
		for _, c := range columns {
			row = append(row, artwork.Field(r.Artwork, c.field))
		}
		rows[i] = row
	}
	m.table.SetRows(rows)

	cols := m.table.Columns()
	cols[0].Title = checkbox(m.view.AllSelected && len(m.view.Rows) > 0)
	m.table.SetColumns(cols)
}

func (m Model) cursorRow() (session.Row, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.view.Rows) {
		return session.Row{}, false
	}
	return m.view.Rows[i], true
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func loadErrorText(page int, err error) string {
	if errors.Is(err, context.Canceled) {
		return "Loading cancelled"
	}
	if class := client.ClassOf(err); class != "" {
		return fmt.Sprintf("Failed to load page %d (%s error), selection unchanged", page, class)
	}
	return fmt.Sprintf("Failed to load page %d, selection unchanged", page)
}

// Run shows the table until the user quits or ctx ends.
func Run(ctx context.Context, sess *session.Session) error {
	p := tea.NewProgram(New(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
