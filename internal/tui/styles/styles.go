// Package styles holds the lipgloss palette shared by every chatq screen.
package styles

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Colors are named after what they mean on screen, not their hue.
var (
	ColorAccent  = lipgloss.AdaptiveColor{Light: "#00707A", Dark: "#2EC4B6"}
	ColorOK      = lipgloss.AdaptiveColor{Light: "#2B7A0B", Dark: "#8AC926"}
	ColorFailed  = lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF595E"}
	ColorPushed  = lipgloss.AdaptiveColor{Light: "#A15C00", Dark: "#FFCA3A"}
	ColorFg      = lipgloss.AdaptiveColor{Light: "#1F1F1F", Dark: "#EDEDED"}
	ColorMuted   = lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#7A7A7A"}
	ColorFrame   = lipgloss.AdaptiveColor{Light: "#C8C8C8", Dark: "#3A3F44"}
	ColorOnBadge = lipgloss.Color("#101418")
	ColorBanner  = ColorAccent
)

// Progress bar gradient, from run start to the end of the measured window.
const (
	GradientFrom = "#2EC4B6"
	GradientTo   = "#8AC926"
)

var (
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorFrame).
		Padding(1, 2)

	Title = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Padding(0, 1)

	Text   = lipgloss.NewStyle().Foreground(ColorFg)
	Subtle = lipgloss.NewStyle().Foreground(ColorMuted)

	// Counters and outcomes
	Value   = lipgloss.NewStyle().Foreground(ColorOK).Bold(true)
	Active  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(ColorFailed).Bold(true)
	Warn    = lipgloss.NewStyle().Foreground(ColorPushed)
	Success = lipgloss.NewStyle().Foreground(ColorOK)

	// Phase is the [Running] / [Draining] badge in the dashboard header.
	Phase = lipgloss.NewStyle().
		Foreground(ColorOnBadge).
		Background(ColorAccent).
		Bold(true).
		Padding(0, 1).
		MarginLeft(2)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorFrame).
		Padding(0, 1).
		Margin(0, 1)

	Card   = Box.Width(18).Align(lipgloss.Center)
	Status = Box.BorderForeground(ColorAccent)

	TabBase   = lipgloss.NewStyle().Foreground(ColorMuted).Padding(0, 2)
	TabActive = TabBase.Foreground(ColorAccent).Bold(true).Underline(true)

	FooterBase = lipgloss.NewStyle().Height(1).Padding(0, 1)

	keyStyle  = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	descStyle = lipgloss.NewStyle().Foreground(ColorMuted)
)

// Table styles the run history list.
func Table() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorFrame).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorAccent)
	s.Selected = s.Selected.
		Foreground(ColorOnBadge).
		Background(ColorAccent).
		Bold(false)
	return s
}

// RenderKey draws one "key desc" hint for the footer.
func RenderKey(key, desc string) string {
	return keyStyle.Render(key) + " " + descStyle.Render(desc)
}
