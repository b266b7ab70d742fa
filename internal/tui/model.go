// Package tui implements an interactive session browser built on bubbletea.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vetsimlabs/vetrec/internal/domain"
	"github.com/vetsimlabs/vetrec/internal/storage"
)

// Loader fetches a full session when the user drills into one.
type Loader func(sessionID string) (*storage.SessionData, error)

// ---------- messages ----------

type detailLoadedMsg struct {
	data *storage.SessionData
}

type detailFailedMsg struct {
	err error
}

// ---------- styles ----------

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("235")).
			Bold(true).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	resultStyles = map[domain.EvalResult]lipgloss.Style{
		domain.EvalSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		domain.EvalFailure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		domain.EvalPartial: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		domain.EvalUnknown: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}

	detailHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	tableBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(lipgloss.Color("240"))
)

// ---------- Model ----------

// Model browses recorded sessions: a table of sessions, enter drills into
// one, esc goes back, q quits.
type Model struct {
	table    table.Model
	sessions []domain.Session
	backend  string
	load     Loader

	detail   *storage.SessionData
	errLine  string
	width    int
	height   int
	quitting bool
}

// New builds the browser over an already-listed set of sessions.
func New(sessions []domain.Session, backend string, load Loader) Model {
	columns := []table.Column{
		{Title: "Session", Width: 34},
		{Title: "Scenario", Width: 18},
		{Title: "Status", Width: 12},
		{Title: "Result", Width: 8},
		{Title: "Started", Width: 20},
	}

	rows := make([]table.Row, 0, len(sessions))
	for _, m := range sessions {
		result := "-"
		if m.Evaluation != nil {
			result = string(m.Evaluation.Result)
		}
		rows = append(rows, table.Row{
			m.SessionID,
			m.ScenarioID,
			string(m.Status),
			result,
			time.UnixMilli(m.StartTime).UTC().Format("2006-01-02 15:04:05"),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(lipgloss.Color("252"))
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return Model{
		table:    t,
		sessions: sessions,
		backend:  backend,
		load:     load,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)

	case detailLoadedMsg:
		m.detail = msg.data
		m.errLine = ""

	case detailFailedMsg:
		m.errLine = msg.err.Error()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if m.detail != nil {
				m.detail = nil
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.detail != nil || m.load == nil {
				return m, nil
			}
			row := m.table.SelectedRow()
			if row == nil {
				return m, nil
			}
			id := row[0]
			return m, func() tea.Msg {
				data, err := m.load(id)
				if err != nil {
					return detailFailedMsg{err: err}
				}
				return detailLoadedMsg{data: data}
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detail != nil {
		return m.viewDetail()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("vetrec sessions (%s)", m.backend)))
	b.WriteString("\n")
	b.WriteString(tableBorderStyle.Render(m.table.View()))
	b.WriteString("\n")
	if m.errLine != "" {
		b.WriteString(errStyle.Render(m.errLine))
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render("enter view  ↑↓ move  q quit"))
	return b.String()
}

// viewDetail renders one session with its event stream. Long streams are
// truncated to fit the terminal.
func (m Model) viewDetail() string {
	data := m.detail
	meta := data.Meta

	var b strings.Builder
	b.WriteString(detailHeaderStyle.Render(meta.SessionID))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Scenario: %s", meta.ScenarioID))
	if meta.ScenarioName != "" {
		b.WriteString(fmt.Sprintf(" (%s)", meta.ScenarioName))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Status: %s", meta.Status))
	if meta.Evaluation != nil {
		style, ok := resultStyles[meta.Evaluation.Result]
		if !ok {
			style = statusStyle
		}
		b.WriteString("  Result: " + style.Render(string(meta.Evaluation.Result)))
		b.WriteString(fmt.Sprintf(" (%d met, %d failed)", meta.Evaluation.CriteriaMet, meta.Evaluation.CriteriaFailed))
	}
	b.WriteString("\n")
	if meta.Duration > 0 {
		b.WriteString(fmt.Sprintf("Duration: %s\n", time.Duration(meta.Duration)*time.Millisecond))
	}
	b.WriteString(fmt.Sprintf("Events: %d  Screenshots: %d\n\n", len(data.Events), len(data.Screenshots)))

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}
	for i, ev := range data.Events {
		if i >= maxRows {
			b.WriteString(statusStyle.Render(fmt.Sprintf("… +%d more events", len(data.Events)-maxRows)))
			b.WriteString("\n")
			break
		}
		line := fmt.Sprintf("%8dms  %-9s %s", ev.Timestamp, ev.Type, ev.Selector)
		if ev.Key != "" {
			line += " key=" + ev.Key
		}
		if ev.ScreenshotRef != "" {
			line += " shot=" + ev.ScreenshotRef
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusStyle.Render("esc back  q quit"))
	return b.String()
}
