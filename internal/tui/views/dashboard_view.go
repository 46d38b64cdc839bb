package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"chatq/internal/runner"
	"chatq/internal/tui/components"
	"chatq/internal/tui/styles"
)

const sparkWidth = 60

type DashboardView struct {
	Stats    runner.StatsSnapshot
	Viewport viewport.Model
	Progress progress.Model
	Config   runner.Config

	// Per-update deltas
	FinishedLine components.Sparkline
	TTFTLine     components.Sparkline
	lastFinished uint64
	lastElapsed  time.Duration

	Width  int
	Height int
}

func NewDashboardView(cfg runner.Config, width, height int) DashboardView {
	prog := progress.New(
		progress.WithGradient(styles.GradientFrom, styles.GradientTo),
		progress.WithWidth(max(width-10, 10)),
		progress.WithoutPercentage(),
	)

	return DashboardView{
		Viewport:     viewport.New(max(width-6, 10), max(height-8, 5)),
		Progress:     prog,
		Config:       cfg,
		FinishedLine: components.NewSparkline(sparkWidth, "Finished / s", styles.Success),
		TTFTLine:     components.NewSparkline(sparkWidth, "TTFT p50 (ms)", styles.Warn),
		Width:        width,
		Height:       height,
	}
}

func (m DashboardView) Init() tea.Cmd {
	return nil
}

func (m DashboardView) Update(msg tea.Msg) (DashboardView, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case runner.StatsSnapshot:
		m.observe(msg)

		pct := 0.0
		if msg.Draining {
			pct = 1.0
		} else if msg.Total > 0 {
			pct = min(msg.Elapsed.Seconds()/msg.Total.Seconds(), 1.0)
		}
		cmds = append(cmds, m.Progress.SetPercent(pct))

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-10, 10)
		m.Viewport.Width = max(msg.Width-6, 10)
		m.Viewport.Height = max(msg.Height-8, 5)

	case progress.FrameMsg:
		newModel, cmd := m.Progress.Update(msg)
		if newModel, ok := newModel.(progress.Model); ok {
			m.Progress = newModel
		}
		cmds = append(cmds, cmd)
	}

	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// observe records a snapshot and feeds the sparklines with the finish rate
// since the previous one.
func (m *DashboardView) observe(s runner.StatsSnapshot) {
	dt := (s.Elapsed - m.lastElapsed).Seconds()
	if dt > 0 && s.Live.Finished >= m.lastFinished {
		m.FinishedLine.Add(float64(s.Live.Finished-m.lastFinished) / dt)
		m.TTFTLine.Add(s.Live.P50TTFTMs)
	}
	m.lastFinished = s.Live.Finished
	m.lastElapsed = s.Elapsed
	m.Stats = s
}

func (m DashboardView) View() string {
	s := strings.Builder{}
	st := m.Stats

	// --- Header ---
	phase := "Running"
	if st.Draining {
		phase = "Draining"
	} else if st.Elapsed == 0 {
		phase = "Warming Up"
	}
	timer := st.Elapsed.Round(time.Second).String()
	if st.Total > 0 {
		remaining := max(st.Total-st.Elapsed, 0)
		timer = fmt.Sprintf("%s / %s", timer, remaining.Round(time.Second))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.Title.Render("⚡ Conversations in Progress"),
		styles.Subtle.MarginLeft(2).Render(timer),
		styles.Phase.Render(phase),
	)
	s.WriteString(header)
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n\n")

	// Row 1: Population
	row1 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Active Users", styles.Active.Render(fmt.Sprintf("%d / %d", st.Active, m.Config.NumUsers))),
		MakeCard("Admitted", styles.Value.Render(humanize.Comma(int64(st.Admitted)))),
		MakeCard("In Flight", styles.Active.Render(fmt.Sprintf("%d", st.Outstanding))),
		MakeCard("Target QPS", styles.Subtle.Render(fmt.Sprintf("%g", m.Config.QPS))),
	)
	s.WriteString(row1)
	s.WriteString("\n")

	// Row 2: Outcomes
	failStyle := styles.Text
	if st.Live.Failed > 0 {
		failStyle = styles.Error
	}
	bpStyle := styles.Text
	if st.Live.Backpressure > 0 {
		bpStyle = styles.Warn
	}
	row2 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Launched", styles.Value.Render(humanize.Comma(int64(st.Live.Launched)))),
		MakeCard("Finished", styles.Value.Render(humanize.Comma(int64(st.Live.Finished)))),
		MakeCard("Failed", failStyle.Render(humanize.Comma(int64(st.Live.Failed)))),
		MakeCard("Backpressure", bpStyle.Render(humanize.Comma(int64(st.Live.Backpressure)))),
	)
	s.WriteString(row2)
	s.WriteString("\n")

	// Row 3: TTFT
	row3 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("TTFT P50", styles.Text.Render(fmt.Sprintf("%.1f ms", st.Live.P50TTFTMs))),
		MakeCard("TTFT P90", styles.Text.Render(fmt.Sprintf("%.1f ms", st.Live.P90TTFTMs))),
		MakeCard("TTFT P99", styles.Warn.Render(fmt.Sprintf("%.1f ms", st.Live.P99TTFTMs))),
		MakeCard("Avg Gen Time", styles.Text.Render(fmt.Sprintf("%.0f ms", st.Live.AvgGenTimeMs))),
	)
	s.WriteString(row3)
	s.WriteString("\n")

	// Row 4: last periodic window
	w := st.Window
	row4 := lipgloss.JoinHorizontal(lipgloss.Top,
		MakeCard("Window QPS", styles.Value.Render(fmt.Sprintf("%.2f", w.QPS))),
		MakeCard("Prefill tok/s", styles.Text.Render(humanize.CommafWithDigits(w.PrefillTokensPerSec, 0))),
		MakeCard("Decode tok/s", styles.Text.Render(humanize.CommafWithDigits(w.DecodeTokensPerSec, 0))),
		MakeCard("Decode / req", styles.Text.Render(fmt.Sprintf("%.1f", w.DecodeSpeedPerRequest))),
	)
	s.WriteString(row4)
	s.WriteString("\n\n")

	s.WriteString(m.FinishedLine.View())
	s.WriteString("\n\n")
	s.WriteString(m.TTFTLine.View())

	content := styles.Panel.Width(max(m.Width-6, 10)).Render(s.String())
	m.Viewport.SetContent(content)

	return m.Viewport.View()
}

func MakeCard(title, value string) string {
	return styles.Card.Render(
		fmt.Sprintf("%s\n%s", styles.Subtle.Render(title), value),
	)
}
