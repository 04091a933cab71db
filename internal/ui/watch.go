package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is one refresh of a watched table.
type Snapshot struct {
	Columns []string
	Rows    [][]string
}

// FetchFunc loads the next snapshot.
type FetchFunc func(ctx context.Context) (Snapshot, error)

const (
	minWatchInterval = 250 * time.Millisecond
	maxColumnWidth   = 40
)

type watchKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Pause   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Pause, k.Help, k.Quit}
}

func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Refresh, k.Pause},
		{k.Help, k.Quit},
	}
}

var watchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p", " "),
		key.WithHelp("p", "pause"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type snapshotMsg struct {
	snap Snapshot
	err  error
	at   time.Time
}

type tickMsg time.Time

// WatchModel polls a FetchFunc and shows the latest snapshot as a table.
type WatchModel struct {
	title    string
	fetch    FetchFunc
	interval time.Duration

	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    watchKeyMap

	loading bool
	paused  bool
	err     error
	updated time.Time
	columns []string
	width   int
}

// NewWatchModel creates a dashboard that refreshes every interval.
func NewWatchModel(title string, interval time.Duration, fetch FetchFunc) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(table.WithFocused(true), table.WithHeight(15))
	st := table.DefaultStyles()
	st.Header = st.Header.Foreground(PrimaryColor).Bold(true)
	st.Selected = st.Selected.Foreground(TextColor).Background(PrimaryColor)
	t.SetStyles(st)

	return WatchModel{
		title:    title,
		fetch:    fetch,
		interval: max(interval, minWatchInterval),
		table:    t,
		spinner:  s,
		help:     help.New(),
		keys:     watchKeys,
		loading:  true,
	}
}

// Init starts the spinner and the first fetch.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh())
}

func (m WatchModel) refresh() tea.Cmd {
	fetch, timeout := m.fetch, m.interval*4
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		snap, err := fetch(ctx)
		return snapshotMsg{snap: snap, err: err, at: time.Now()}
	}
}

func (m WatchModel) schedule() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			if !m.paused && !m.loading {
				m.loading = true
				return m, m.refresh()
			}
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			if m.loading {
				return m, nil
			}
			m.loading = true
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.apply(msg.snap)
			m.updated = msg.at
		}
		if m.paused {
			return m, nil
		}
		return m, m.schedule()

	case tickMsg:
		if m.paused || m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// apply replaces the table contents. Rows are padded or truncated to the
// column count.
func (m *WatchModel) apply(snap Snapshot) {
	widths := make([]int, len(snap.Columns))
	for i, c := range snap.Columns {
		widths[i] = lipgloss.Width(c)
	}
	rows := make([]table.Row, len(snap.Rows))
	for r, src := range snap.Rows {
		row := make(table.Row, len(snap.Columns))
		copy(row, src)
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
		rows[r] = row
	}
	cols := make([]table.Column, len(snap.Columns))
	for i, c := range snap.Columns {
		cols[i] = table.Column{Title: c, Width: min(widths[i], maxColumnWidth)}
	}

	m.table.SetRows(nil)
	m.table.SetColumns(cols)
	m.table.SetRows(rows)
	m.columns = snap.Columns
}

// Rows returns the number of rows currently shown.
func (m WatchModel) Rows() int {
	return len(m.table.Rows())
}

// View renders the dashboard.
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderTitleStyle.Render(strings.ToUpper(m.title)))
	b.WriteString("  ")
	switch {
	case m.loading:
		b.WriteString(m.spinner.View())
	case m.paused:
		b.WriteString(lipgloss.NewStyle().Foreground(WarningColor).Render("paused"))
	case !m.updated.IsZero():
		b.WriteString(StatusLineStyle.Render("updated " + m.updated.Format("15:04:05")))
	}
	b.WriteString("\n\n")

	if len(m.columns) == 0 {
		b.WriteString(StatusLineStyle.Render("waiting for data..."))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorMessageStyle.Render(fmt.Sprintf("  %s %v", FailureMarker, m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(StatusLineStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// RunWatch runs the dashboard on the alternate screen until the user quits.
func RunWatch(ctx context.Context, m WatchModel) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
