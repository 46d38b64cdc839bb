package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"chatq/internal/report"
	"chatq/internal/runner"
	"chatq/internal/storage"
	"chatq/internal/tui/config"
	"chatq/internal/tui/result"
	"chatq/internal/tui/styles"
	"chatq/internal/tui/views"
)

type ClearStatusMsg struct{}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}

// View Enum
type ViewID int

const (
	ViewConfig ViewID = iota
	ViewDashboard
	ViewResult
	ViewHistory
)

// StatsMsg carries a snapshot of run ID.
type StatsMsg struct {
	ID   int
	Snap runner.StatsSnapshot
}

// RunFinishedMsg is sent once Run returns.
type RunFinishedMsg struct {
	ID     int
	Cfg    runner.Config
	Result runner.Result
	Err    error
}

// Factory builds a runner for one run. It must send snapshots on updates.
type Factory func(cfg runner.Config, updates runner.StatsUpdateChan) (*runner.Runner, error)

type Model struct {
	Factory Factory
	Store   *storage.Store
	Log     *zap.Logger

	// Core State
	RunID      int
	RunActive  bool
	RunCancel  context.CancelFunc
	LastResult *runner.Result
	updates    runner.StatsUpdateChan

	// Layout
	Width  int
	Height int

	CurrentView ViewID
	MenuItems   []string

	ConfigView  config.Model
	DashView    views.DashboardView
	ResultView  result.Model
	HistoryView views.HistoryView

	// Feedback
	StatusMsg string
}

func NewModel(cfg runner.Config, factory Factory, store *storage.Store, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	return Model{
		Factory:     factory,
		Store:       store,
		Log:         log,
		CurrentView: ViewConfig,
		MenuItems:   []string{"[1] New Run", "[2] Dashboard", "[3] Result", "[4] History"},
		ConfigView:  config.NewModel(cfg),
		DashView:    views.NewDashboardView(cfg, 80, 24),
		ResultView:  result.NewModel(nil, nil),
		HistoryView: views.NewHistoryView(store),
	}
}

func (m Model) Init() tea.Cmd {
	return m.ConfigView.Init()
}

// waitForUpdate yields nil once the run closes its channel.
func waitForUpdate(id int, sub runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-sub
		if !ok {
			return nil
		}
		return StatsMsg{ID: id, Snap: s}
	}
}

func runCmd(ctx context.Context, id int, r *runner.Runner, updates runner.StatsUpdateChan) tea.Cmd {
	return func() tea.Msg {
		res, err := r.Run(ctx)
		// Run has returned so nothing sends on updates any more.
		close(updates)
		return RunFinishedMsg{ID: id, Cfg: r.Cfg, Result: res, Err: err}
	}
}

func (m *Model) setStatus(format string, args ...any) tea.Cmd {
	m.StatusMsg = fmt.Sprintf(format, args...)
	return clearStatusCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ClearStatusMsg:
		m.StatusMsg = ""
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+q":
			if m.RunCancel != nil {
				m.RunCancel()
			}
			return m, tea.Quit

		case "ctrl+d":
			m.CurrentView = ViewDashboard
			return m, nil

		case "ctrl+h":
			m.HistoryView.Refresh()
			m.CurrentView = ViewHistory
			return m, nil

		case "ctrl+right":
			m.CurrentView++
			if m.CurrentView > ViewHistory {
				m.CurrentView = ViewConfig
			}
			return m, nil
		case "ctrl+left":
			m.CurrentView--
			if m.CurrentView < ViewConfig {
				m.CurrentView = ViewHistory
			}
			return m, nil

		case "ctrl+r":
			if m.CurrentView != ViewConfig {
				return m, nil
			}
			if m.RunActive {
				return m, m.setStatus("A run is already active, stop it first.")
			}
			return m, m.startRun()

		case "ctrl+s":
			if m.RunActive && m.RunCancel != nil {
				m.RunCancel()
				return m, m.setStatus("Stopping, waiting for in-flight requests...")
			}
			return m, nil

		case "ctrl+p":
			switch m.CurrentView {
			case ViewResult, ViewDashboard:
				return m, m.exportResult()
			case ViewHistory:
				return m, m.exportHistory()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		content := tea.WindowSizeMsg{Width: m.Width, Height: m.Height - 7}

		m.ConfigView.Width = content.Width
		m.ConfigView.Height = content.Height
		m.DashView, _ = m.DashView.Update(content)
		m.ResultView, _ = m.ResultView.Update(content)
		m.HistoryView, _ = m.HistoryView.Update(content)
		return m, nil

	case StatsMsg:
		if msg.ID != m.RunID {
			return m, nil
		}
		var c tea.Cmd
		m.DashView, c = m.DashView.Update(msg.Snap)
		return m, tea.Batch(c, waitForUpdate(m.RunID, m.Updates()))

	case RunFinishedMsg:
		if msg.ID != m.RunID {
			return m, nil
		}
		return m, m.finishRun(msg)
	}

	// Forward everything else (keys, blink, progress frames) to the active view
	var viewCmd tea.Cmd
	switch m.CurrentView {
	case ViewConfig:
		m.ConfigView, viewCmd = m.ConfigView.Update(msg)
	case ViewDashboard:
		m.DashView, viewCmd = m.DashView.Update(msg)
	case ViewResult:
		m.ResultView, viewCmd = m.ResultView.Update(msg)
	case ViewHistory:
		m.HistoryView, viewCmd = m.HistoryView.Update(msg)
		if m.HistoryView.SelectedConfig != nil {
			cfg := *m.HistoryView.SelectedConfig
			// APIKey is never persisted
			cfg.APIKey = m.ConfigView.Config.APIKey
			m.ConfigView = config.NewModel(cfg)
			m.HistoryView.SelectedConfig = nil
			m.CurrentView = ViewConfig
		}
	}
	cmds = append(cmds, viewCmd)

	return m, tea.Batch(cmds...)
}

// Updates is the channel of the current run, if any.
func (m Model) Updates() runner.StatsUpdateChan {
	return m.updates
}

func (m *Model) startRun() tea.Cmd {
	cfg, err := m.ConfigView.GetConfig()
	m.ConfigView.Err = err
	if err != nil {
		return nil
	}

	updates := make(runner.StatsUpdateChan, 10)
	r, err := m.Factory(cfg, updates)
	if err != nil {
		m.ConfigView.Err = err
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.RunID++
	m.RunCancel = cancel
	m.RunActive = true
	m.updates = updates

	m.DashView = views.NewDashboardView(cfg, m.Width, m.Height-7)
	m.CurrentView = ViewDashboard
	m.Log.Info("run started", zap.Int("run", m.RunID), zap.String("base_url", cfg.BaseURL))

	return tea.Batch(runCmd(ctx, m.RunID, r, updates), waitForUpdate(m.RunID, updates))
}

func (m *Model) finishRun(msg RunFinishedMsg) tea.Cmd {
	if m.RunCancel != nil {
		m.RunCancel()
	}
	m.RunActive = false
	m.RunCancel = nil
	m.updates = nil

	if msg.Err != nil {
		m.ResultView = result.NewModel(nil, msg.Err)
		m.CurrentView = ViewResult
		return m.setStatus("Run failed: %v", msg.Err)
	}

	res := msg.Result
	m.LastResult = &res
	m.ResultView = result.NewModel(&res, nil)
	m.ResultView.Width, m.ResultView.Height = m.Width, m.Height-7
	m.CurrentView = ViewResult

	var notes []string
	if msg.Cfg.Output != "" {
		if err := report.ExportCSV(res.Rows, msg.Cfg.Output); err != nil {
			m.Log.Error("writing rows", zap.String("file", msg.Cfg.Output), zap.Error(err))
			notes = append(notes, fmt.Sprintf("CSV export failed: %v", err))
		} else {
			notes = append(notes, "Rows written to "+msg.Cfg.Output)
		}
	}
	notes = append(notes, m.saveHistory(msg.Cfg, res))
	return m.setStatus("%s", strings.Join(notes, ". "))
}

func (m *Model) saveHistory(cfg runner.Config, res runner.Result) string {
	if m.Store == nil {
		return "History disabled."
	}
	if err := m.Store.Save(storage.NewHistoryItem(cfg, res)); err != nil {
		m.Log.Error("saving history", zap.Error(err))
		return fmt.Sprintf("Error saving history: %v", err)
	}
	m.HistoryView.Refresh()
	return "History saved."
}

func (m *Model) exportResult() tea.Cmd {
	if m.LastResult == nil {
		return m.setStatus("No results to export yet.")
	}
	base := "chatq_report_" + m.LastResult.End.Format("20060102-150405")
	if err := report.ExportCSV(m.LastResult.Rows, base+".csv"); err != nil {
		return m.setStatus("Export failed: %v", err)
	}
	if err := report.ExportSummary(m.LastResult.Summary, base+".json"); err != nil {
		return m.setStatus("Export failed: %v", err)
	}
	return m.setStatus("Exported to %s.{csv,json}", base)
}

func (m *Model) exportHistory() tea.Cmd {
	item := m.HistoryView.GetSelectedItem()
	if item == nil {
		return nil
	}
	name := fmt.Sprintf("chatq_history_%s.json", item.ID)
	if err := report.ExportSummary(item.Summary, name); err != nil {
		return m.setStatus("Export failed: %v", err)
	}
	return m.setStatus("Exported history to %s", name)
}

func (m Model) View() string {
	if m.Width == 0 {
		return "Loading..."
	}

	nav := strings.Builder{}
	for i, item := range m.MenuItems {
		if ViewID(i) == m.CurrentView {
			nav.WriteString(styles.TabActive.Render(item))
		} else {
			nav.WriteString(styles.TabBase.Render(item))
		}
	}
	navBar := styles.FooterBase.Width(m.Width).Render(nav.String())

	contentStr := ""
	switch m.CurrentView {
	case ViewConfig:
		contentStr = m.ConfigView.View()
	case ViewDashboard:
		contentStr = m.DashView.View()
	case ViewResult:
		contentStr = m.ResultView.View()
	case ViewHistory:
		contentStr = m.HistoryView.View()
	}

	content := styles.Panel.Width(m.Width - 2).Height(m.Height - 6).Render(contentStr)

	keys1 := []string{
		styles.RenderKey("Ctrl+<->", "View"),
		styles.RenderKey("Tab", "Field"),
		styles.RenderKey("Enter", "Select"),
	}
	keys2 := []string{
		styles.RenderKey("Ctrl+R", "Run"),
		styles.RenderKey("Ctrl+S", "Stop"),
		styles.RenderKey("Ctrl+P", "Export"),
		styles.RenderKey("Ctrl+Q", "Quit"),
	}
	keys3 := []string{
		styles.RenderKey("Ctrl+D", "Dash"),
		styles.RenderKey("Ctrl+H", "Hist"),
	}

	footer := lipgloss.JoinVertical(lipgloss.Left,
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys1, "   ")),
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys2, "   ")),
		styles.FooterBase.Width(m.Width).Render(strings.Join(keys3, "   ")),
	)

	if m.StatusMsg != "" {
		status := styles.Status.Render(m.StatusMsg)
		return lipgloss.JoinVertical(lipgloss.Left, navBar, content, status, footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, navBar, content, footer)
}
