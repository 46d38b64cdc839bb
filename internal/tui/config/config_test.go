package config

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/runner"
)

func TestGetConfigRoundTrip(t *testing.T) {
	cfg := runner.DefaultConfig()
	cfg.Duration = 90 * time.Second
	cfg.AppsFile = "apps.json"

	got, err := NewModel(cfg).GetConfig()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestGetConfigEdits(t *testing.T) {
	m := NewModel(runner.DefaultConfig())
	m.Fields[FieldUsers].Input.SetValue("32")
	m.Fields[FieldQPS].Input.SetValue(" 2.5 ")
	m.Fields[FieldPolicy].Input.SetValue("stall")

	got, err := m.GetConfig()
	require.NoError(t, err)
	assert.Equal(t, 32, got.NumUsers)
	assert.Equal(t, 2.5, got.QPS)
	assert.Equal(t, "stall", got.FailurePolicy)
}

func TestGetConfigRejectsBadInput(t *testing.T) {
	m := NewModel(runner.DefaultConfig())
	m.Fields[FieldUsers].Input.SetValue("many")
	_, err := m.GetConfig()
	assert.ErrorContains(t, err, "Concurrent Users")

	m = NewModel(runner.DefaultConfig())
	m.Fields[FieldQPS].Input.SetValue("0")
	_, err = m.GetConfig()
	assert.ErrorContains(t, err, "qps must be positive")
}

func TestFocusWraps(t *testing.T) {
	m := NewModel(runner.DefaultConfig())
	assert.Equal(t, 0, m.Focus)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	assert.Equal(t, numFields-1, m.Focus)
	assert.True(t, m.Fields[numFields-1].Input.Focused())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 0, m.Focus)
	assert.False(t, m.Fields[numFields-1].Input.Focused())
}
