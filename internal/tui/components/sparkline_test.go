package components

import (
	"testing"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestSparklineScrolls(t *testing.T) {
	s := NewSparkline(3, "qps", lipgloss.NewStyle())
	for _, v := range []float64{1, 2, 3, 4} {
		s.Add(v)
	}
	assert.Equal(t, []float64{2, 3, 4}, s.Data)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 4.0, s.Last())
}

func TestSparklineGraph(t *testing.T) {
	s := NewSparkline(4, "ttft", lipgloss.NewStyle())
	s.Add(0)
	s.Add(8)
	g := s.Graph()
	assert.Equal(t, 4, utf8.RuneCountInString(g))
	assert.Equal(t, "█", string([]rune(g)[1]))

	s.Add(-3)
	assert.Equal(t, 0.0, s.Last())
}

func TestSparklineEmpty(t *testing.T) {
	s := NewSparkline(0, "x", lipgloss.NewStyle())
	assert.Empty(t, s.View())
	assert.Equal(t, 0.0, s.Last())
}
