package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func row(uid int, launch, finish float64, ttft time.Duration) Row {
	return Row{
		PromptTokens:   100,
		GenTokens:      10,
		TTFT:           ttft,
		GenerationTime: time.Second,
		UserID:         uid,
		RoundID:        1,
		LaunchTime:     at(launch),
		FinishTime:     at(finish),
	}
}

func TestSummarizeWindow(t *testing.T) {
	rows := []Row{
		row(1, 0, 2, 100*time.Millisecond),
		row(2, 1, 3, 200*time.Millisecond),
		row(3, 8, 12, 300*time.Millisecond),  // finishes outside
		row(4, 11, 12, 400*time.Millisecond), // launched outside
	}
	s := Summarize(rows, Window{Start: at(0), End: at(10)}, 2, 3)

	assert.Equal(t, 10*time.Second, s.Duration)
	assert.Equal(t, 3, s.Launched)
	assert.Equal(t, 2, s.Finished)
	assert.Equal(t, 2, s.Pending)
	assert.InDelta(t, 0.5, s.QPS, 1e-9)
	assert.InDelta(t, 0.2, s.FinishedQPS, 1e-9)
	assert.InDelta(t, 20.0, s.PrefillTokensPerSec, 1e-9)
	assert.InDelta(t, 2.0, s.DecodeTokensPerSec, 1e-9)
	assert.InDelta(t, 10.0, s.DecodeSpeedPerRequest, 1e-9)
	assert.InDelta(t, float64(150*time.Millisecond), float64(s.MeanTTFT), 1e3)
	assert.Equal(t, 3.0, s.TargetQPS)
	assert.Greater(t, s.TTFTStdErr, time.Duration(0))
}

func TestSummarizeFullRange(t *testing.T) {
	rows := []Row{
		row(1, 2, 4, 100*time.Millisecond),
		row(2, 1, 6, 100*time.Millisecond),
	}
	s := Summarize(rows, Window{}, 0, 0)
	assert.Equal(t, at(1), s.Start)
	assert.Equal(t, at(6), s.End)
	assert.Equal(t, 2, s.Launched)
	assert.Equal(t, 2, s.Finished)
	assert.InDelta(t, 0.4, s.QPS, 1e-9)
}

func TestSummarizeSkipsZeroGenerationTime(t *testing.T) {
	r := row(1, 0, 1, 0)
	r.GenerationTime = 0
	rows := []Row{r, row(2, 0, 1, 0)}
	s := Summarize(rows, Window{Start: at(0), End: at(1)}, 0, 0)
	assert.InDelta(t, 10.0, s.DecodeSpeedPerRequest, 1e-9)
}

func TestSummarizeIsIdempotent(t *testing.T) {
	rows := []Row{
		row(1, 0, 2, 100*time.Millisecond),
		row(2, 1, 3, 250*time.Millisecond),
		row(3, 2, 9, 50*time.Millisecond),
	}
	before := append([]Row(nil), rows...)
	w := Window{Start: at(0), End: at(5)}

	a := Summarize(rows, w, 1, 2)
	b := Summarize(rows, w, 1, 2)
	assert.Equal(t, a, b)
	assert.Equal(t, before, rows)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, Window{Start: at(0), End: at(0)}, 0, 1)
	assert.Zero(t, s.QPS)
	assert.Zero(t, s.Finished)
	assert.Zero(t, s.MeanTTFT)
}

func TestLive(t *testing.T) {
	l := NewLive()
	l.AddLaunch()
	l.AddLaunch()
	l.AddRow(row(1, 0, 1, 120*time.Millisecond))
	l.AddFailure()
	l.AddBackpressure()

	snap := l.Snapshot()
	assert.EqualValues(t, 2, snap.Launched)
	assert.EqualValues(t, 1, snap.Finished)
	assert.EqualValues(t, 1, snap.Failed)
	assert.EqualValues(t, 1, snap.Backpressure)
	assert.EqualValues(t, 100, snap.PromptTokens)
	assert.EqualValues(t, 10, snap.GenTokens)
	assert.InDelta(t, 120.0, snap.P50TTFTMs, 1.0)
	assert.InDelta(t, 50.0, l.ErrorRate(), 1e-9)
}

func TestSafeHistogramClamps(t *testing.T) {
	h := NewSafeHistogram()
	h.Record(0)
	h.Record(time.Hour)
	require.EqualValues(t, 2, h.TotalCount())
	assert.InDelta(t, float64(10*time.Minute/time.Millisecond), h.MaxMs(), 1200)

	h.Reset()
	assert.Zero(t, h.TotalCount())
}
