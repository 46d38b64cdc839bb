package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatq/internal/runner"
	"chatq/internal/tui/styles"
)

// Field indexes
const (
	FieldBaseURL = iota
	FieldModel
	FieldUsers
	FieldQPS
	FieldRounds
	FieldAnswerLen
	FieldDuration
	FieldPolicy
	numFields
)

type Field struct {
	Label string
	Input textinput.Model
}

type Model struct {
	Config runner.Config

	Fields []Field
	Focus  int
	Err    error

	Width  int
	Height int
}

func newInput(placeholder, value string, width int) textinput.Model {
	t := textinput.New()
	t.Placeholder = placeholder
	t.SetValue(value)
	t.Width = width
	return t
}

func NewModel(cfg runner.Config) Model {
	m := Model{
		Config: cfg,
		Fields: make([]Field, numFields),
	}

	m.Fields[FieldBaseURL] = Field{"Base URL", newInput("http://localhost:8000", cfg.BaseURL, 50)}
	m.Fields[FieldModel] = Field{"Model", newInput("mistralai/Mistral-7B-Instruct-v0.2", cfg.Model, 50)}
	m.Fields[FieldUsers] = Field{"Concurrent Users", newInput("10", strconv.Itoa(cfg.NumUsers), 10)}
	m.Fields[FieldQPS] = Field{"Target QPS", newInput("0.5", strconv.FormatFloat(cfg.QPS, 'g', -1, 64), 10)}
	m.Fields[FieldRounds] = Field{"Rounds per User", newInput("10", strconv.Itoa(cfg.NumRounds), 10)}
	m.Fields[FieldAnswerLen] = Field{"Answer Length (tokens)", newInput("100", strconv.Itoa(cfg.AnswerLen), 10)}
	m.Fields[FieldDuration] = Field{"Duration (s, 0 = until stopped)", newInput("0", strconv.Itoa(int(cfg.Duration.Seconds())), 10)}
	m.Fields[FieldPolicy] = Field{"Failure Policy (abandon/stall)", newInput("abandon", cfg.FailurePolicy, 10)}

	m.setFocus(0)
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) setFocus(i int) {
	m.Focus = i
	for j := range m.Fields {
		if j == m.Focus {
			m.Fields[j].Input.Focus()
			m.Fields[j].Input.PromptStyle = styles.Active
			m.Fields[j].Input.TextStyle = styles.Active
		} else {
			m.Fields[j].Input.Blur()
			m.Fields[j].Input.PromptStyle = lipgloss.NewStyle()
			m.Fields[j].Input.TextStyle = lipgloss.NewStyle()
		}
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "tab", "shift+tab", "enter", "up", "down":
			next := m.Focus + 1
			if s := msg.String(); s == "up" || s == "shift+tab" {
				next = m.Focus - 1
			}
			if next >= len(m.Fields) {
				next = 0
			} else if next < 0 {
				next = len(m.Fields) - 1
			}
			m.setFocus(next)
			return m, nil
		}
	}

	for i := range m.Fields {
		m.Fields[i].Input, cmd = m.Fields[i].Input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) value(i int) string {
	return strings.TrimSpace(m.Fields[i].Input.Value())
}

// GetConfig applies the form on top of the config it was opened with.
func (m Model) GetConfig() (runner.Config, error) {
	c := m.Config
	var errs []error

	atoi := func(i int, dst *int) {
		v, err := strconv.Atoi(m.value(i))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Fields[i].Label, err))
			return
		}
		*dst = v
	}

	c.BaseURL = m.value(FieldBaseURL)
	c.Model = m.value(FieldModel)
	atoi(FieldUsers, &c.NumUsers)
	atoi(FieldRounds, &c.NumRounds)
	atoi(FieldAnswerLen, &c.AnswerLen)

	if qps, err := strconv.ParseFloat(m.value(FieldQPS), 64); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", m.Fields[FieldQPS].Label, err))
	} else {
		c.QPS = qps
	}

	var secs int
	atoi(FieldDuration, &secs)
	c.Duration = time.Duration(secs) * time.Second
	c.FailurePolicy = m.value(FieldPolicy)

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}
	return c, c.Validate()
}

func (m Model) View() string {
	s := strings.Builder{}

	s.WriteString(styles.Title.Render("🛠️  Workload"))
	s.WriteString("\n\n")

	for i := range m.Fields {
		s.WriteString(styles.Subtle.Render(m.Fields[i].Label))
		s.WriteString("\n")
		s.WriteString(m.Fields[i].Input.View())
		s.WriteString("\n\n")
	}

	if m.Err != nil {
		s.WriteString(styles.Error.Render(m.Err.Error()))
		s.WriteString("\n")
	}
	s.WriteString("\n")
	s.WriteString(styles.Active.Render("[Ctrl+R] Start Test"))

	return styles.Box.Render(s.String())
}
