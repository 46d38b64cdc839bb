package result

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"chatq/internal/runner"
	"chatq/internal/tui/styles"
)

type Model struct {
	Result *runner.Result
	Err    error

	Width  int
	Height int
}

func NewModel(res *runner.Result, err error) Model {
	return Model{Result: res, Err: err}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
	}
	return m, nil
}

func ms(f float64) string {
	return fmt.Sprintf("%.2f ms", f)
}

func (m Model) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📊 Test Complete"))
	s.WriteString("\n\n")

	if m.Err != nil {
		s.WriteString(styles.Error.Render(fmt.Sprintf("Run failed: %v", m.Err)))
		return s.String()
	}
	if m.Result == nil {
		s.WriteString(styles.Subtle.Render("No finished run yet."))
		return s.String()
	}
	res := m.Result
	sum := res.Summary

	// 1. Overview
	s.WriteString(styles.Active.Render("Overview"))
	s.WriteString("\n")
	overview := fmt.Sprintf(
		"Window:          %s\nUsers admitted:  %s\nRounds answered: %s\nRounds failed:   %s",
		sum.Duration.Round(time.Millisecond),
		humanize.Comma(int64(res.Admitted)),
		humanize.Comma(int64(len(res.Rows))),
		humanize.Comma(int64(res.Failures)),
	)
	if res.Abandoned > 0 {
		overview += fmt.Sprintf("\nStill in flight: %d", res.Abandoned)
	}
	s.WriteString(styles.Box.Render(overview))
	s.WriteString("\n\n")

	// 2. Throughput
	s.WriteString(styles.Active.Render("Throughput"))
	s.WriteString("\n")
	throughput := fmt.Sprintf(
		"QPS:            %.3f (target %g)\nFinished QPS:   %.3f\nPrefill tok/s:  %s\nDecode tok/s:   %s\nDecode / req:   %.2f tok/s",
		sum.QPS, sum.TargetQPS, sum.FinishedQPS,
		humanize.CommafWithDigits(sum.PrefillTokensPerSec, 1),
		humanize.CommafWithDigits(sum.DecodeTokensPerSec, 1),
		sum.DecodeSpeedPerRequest,
	)
	s.WriteString(styles.Box.Render(throughput))
	s.WriteString("\n\n")

	// 3. TTFT
	s.WriteString(styles.Active.Render("Time To First Token"))
	s.WriteString("\n")
	ttft := fmt.Sprintf(
		"Mean: %s (± %s)\nP50:  %s\nP90:  %s\nP99:  %s",
		ms(float64(sum.MeanTTFT.Microseconds())/1000),
		ms(float64(sum.TTFTStdErr.Microseconds())/1000),
		ms(float64(sum.P50TTFT.Microseconds())/1000),
		ms(float64(sum.P90TTFT.Microseconds())/1000),
		ms(float64(sum.P99TTFT.Microseconds())/1000),
	)
	s.WriteString(styles.Box.Render(ttft))

	return s.String()
}
