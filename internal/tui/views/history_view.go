package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"chatq/internal/runner"
	"chatq/internal/storage"
	"chatq/internal/tui/styles"
)

const historyLimit = 50

type HistoryView struct {
	Store *storage.Store
	Table table.Model
	Items []storage.HistoryItem
	Err   error

	SelectedConfig *runner.Config // Output for parent to grab

	Width  int
	Height int
}

func NewHistoryView(store *storage.Store) HistoryView {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "Base URL", Width: 32},
		{Title: "Users", Width: 7},
		{Title: "Target QPS", Width: 11},
		{Title: "QPS", Width: 8},
		{Title: "Finished", Width: 10},
		{Title: "Mean TTFT", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	t.SetStyles(styles.Table())

	m := HistoryView{
		Store: store,
		Table: t,
	}
	m.Refresh()
	return m
}

// Refresh reloads the newest runs from the store.
func (m *HistoryView) Refresh() {
	if m.Store == nil {
		return
	}

	items, err := m.Store.List(historyLimit)
	m.Err = err
	if err != nil {
		return
	}
	m.Items = items

	rows := make([]table.Row, len(items))
	for i, item := range items {
		rows[i] = table.Row{
			item.Timestamp.Format("2006-01-02 15:04:05"),
			item.Config.BaseURL,
			fmt.Sprintf("%d", item.Config.NumUsers),
			fmt.Sprintf("%g", item.Config.QPS),
			fmt.Sprintf("%.2f", item.Summary.QPS),
			humanize.Comma(int64(item.Summary.Finished)),
			fmt.Sprintf("%.1f ms", float64(item.Summary.MeanTTFT.Microseconds())/1000),
		}
	}
	m.Table.SetRows(rows)
}

func (m HistoryView) Init() tea.Cmd {
	return nil
}

func (m HistoryView) Update(msg tea.Msg) (HistoryView, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(max(msg.Width-4, 20))
		m.Table.SetHeight(max(msg.Height-6, 3))

	case tea.KeyMsg:
		if msg.String() == "enter" {
			if item := m.GetSelectedItem(); item != nil {
				cfg := item.Config
				m.SelectedConfig = &cfg
				return m, nil
			}
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m HistoryView) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📜 Past Runs"))
	s.WriteString("\n\n")

	switch {
	case m.Err != nil:
		s.WriteString(styles.Error.Render(fmt.Sprintf("Could not load history: %v", m.Err)))
	case len(m.Table.Rows()) == 0:
		s.WriteString(styles.Subtle.Render("No history found.\nRun a test to generate data."))
	default:
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("[Enter] Load Config  [Ctrl+P] Export Selected"))
	return s.String()
}

func (m HistoryView) GetSelectedItem() *storage.HistoryItem {
	idx := m.Table.Cursor()
	if idx >= 0 && idx < len(m.Items) {
		return &m.Items[idx]
	}
	return nil
}
