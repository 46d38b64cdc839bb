package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/stats"
)

func sampleRows() []stats.Row {
	launch := time.Unix(1_700_000_000, 250_000_000)
	return []stats.Row{
		{
			PromptTokens: 120, GenTokens: 30,
			TTFT: 150 * time.Millisecond, GenerationTime: 900 * time.Millisecond,
			UserID: 1, RoundID: 2,
			LaunchTime: launch, FinishTime: launch.Add(1050 * time.Millisecond),
		},
		{
			PromptTokens: 80, GenTokens: 12,
			TTFT: 90 * time.Millisecond, GenerationTime: 300 * time.Millisecond,
			UserID: 4, RoundID: 1,
			LaunchTime: launch.Add(time.Second), FinishTime: launch.Add(1390 * time.Millisecond),
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "prompt_tokens,generation_tokens,ttft,generation_time,user_id,question_id,launch_time,finish_time", lines[0])
	assert.Equal(t, "120,30,0.150000,0.900000,1,2,1700000000.250000,1700000001.300000", lines[1])

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	want := sampleRows()
	for i := range want {
		assert.Equal(t, want[i].PromptTokens, rows[i].PromptTokens)
		assert.Equal(t, want[i].RoundID, rows[i].RoundID)
		assert.InDelta(t, want[i].TTFT, rows[i].TTFT, float64(time.Microsecond))
		assert.WithinDuration(t, want[i].LaunchTime, rows[i].LaunchTime, time.Microsecond)
		assert.WithinDuration(t, want[i].FinishTime, rows[i].FinishTime, time.Microsecond)
	}
}

func TestReadCSVByColumnName(t *testing.T) {
	in := "finish_time,launch_time,question_id,user_id,generation_time,ttft,generation_tokens,prompt_tokens,extra\n" +
		"11.5,10.0,3.0,7,1.0,0.5,20,100,x\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].RoundID)
	assert.Equal(t, 7, rows[0].UserID)
	assert.Equal(t, 500*time.Millisecond, rows[0].TTFT)
	assert.Equal(t, time.Unix(11, 500_000_000), rows[0].FinishTime)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("prompt_tokens,ttft\n1,2\n"))
	assert.ErrorContains(t, err, "missing column")

	bad := strings.Join(Header, ",") + "\n1,2,x,4,5,6,7,8\n"
	_, err = ReadCSV(strings.NewReader(bad))
	assert.ErrorContains(t, err, "line 2")
}

func TestExportImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	require.NoError(t, ExportCSV(sampleRows(), path))
	rows, err := ImportCSV(path)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	sum := stats.Summarize(rows, stats.Window{}, 0, 0)
	assert.Equal(t, 2, sum.Finished)
	require.NoError(t, ExportSummary(sum, filepath.Join(t.TempDir(), "summary.json")))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, stats.Summarize(sampleRows(), stats.Window{}, 1, 3))
	out := buf.String()
	assert.Contains(t, out, "Performance summary")
	assert.Contains(t, out, "Requests on-the-fly   : 1")
	assert.Contains(t, out, "Launched / finished   : 2 / 2")
}
