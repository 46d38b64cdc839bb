package views

import (
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/runner"
	"chatq/internal/stats"
	"chatq/internal/storage"
)

func TestDashboardFinishRate(t *testing.T) {
	d := NewDashboardView(runner.DefaultConfig(), 120, 40)

	d, _ = d.Update(runner.StatsSnapshot{Elapsed: time.Second, Live: stats.Snapshot{Finished: 2, P50TTFTMs: 40}})
	d, _ = d.Update(runner.StatsSnapshot{Elapsed: 3 * time.Second, Live: stats.Snapshot{Finished: 8, P50TTFTMs: 55}})

	assert.Equal(t, []float64{2, 3}, d.FinishedLine.Data)
	assert.Equal(t, 55.0, d.TTFTLine.Last())

	// A snapshot with no elapsed time adds no sample.
	d, _ = d.Update(runner.StatsSnapshot{Elapsed: 3 * time.Second, Live: stats.Snapshot{Finished: 8}})
	assert.Len(t, d.FinishedLine.Data, 2)
}

func TestDashboardView(t *testing.T) {
	cfg := runner.DefaultConfig()
	cfg.NumUsers = 12
	d := NewDashboardView(cfg, 140, 60)
	d, _ = d.Update(runner.StatsSnapshot{
		Elapsed:  2 * time.Second,
		Active:   5,
		Admitted: 1500,
		Draining: true,
		Live:     stats.Snapshot{Failed: 3},
	})
	out := d.View()
	assert.Contains(t, out, "Draining")
	assert.Contains(t, out, "5 / 12")
	assert.Contains(t, out, "1,500")
}

func TestHistoryViewSelect(t *testing.T) {
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	old := runner.DefaultConfig()
	old.BaseURL = "http://old:8000"
	require.NoError(t, store.Save(storage.NewHistoryItem(old, runner.Result{End: time.Now()})))
	newer := runner.DefaultConfig()
	newer.BaseURL = "http://new:8000"
	require.NoError(t, store.Save(storage.NewHistoryItem(newer, runner.Result{End: time.Now()})))

	h := NewHistoryView(store)
	require.Len(t, h.Items, 2)
	assert.Equal(t, "http://new:8000", h.GetSelectedItem().Config.BaseURL)

	h, _ = h.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, h.SelectedConfig)
	assert.Equal(t, "http://new:8000", h.SelectedConfig.BaseURL)
}

func TestHistoryViewWithoutStore(t *testing.T) {
	h := NewHistoryView(nil)
	assert.Nil(t, h.GetSelectedItem())
	assert.Contains(t, h.View(), "No history found")
}
