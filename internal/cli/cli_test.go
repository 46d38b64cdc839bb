package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/dummy"
	"chatq/internal/executor"
	"chatq/internal/runner"
)

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[----]", progressBar(0, 4))
	assert.Equal(t, "[██--]", progressBar(0.5, 4))
	assert.Equal(t, "[████]", progressBar(1.7, 4))
	assert.Equal(t, "[----]", progressBar(-1, 4))
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	printProgress(&buf, runner.StatsSnapshot{Elapsed: 5 * time.Second, Total: 10 * time.Second, Active: 3})
	assert.Contains(t, buf.String(), " 50% | 5s/10s | Users:   3")

	buf.Reset()
	printProgress(&buf, runner.StatsSnapshot{Draining: true, Outstanding: 4})
	assert.Contains(t, buf.String(), "Draining: 4 requests")
}

func TestStart(t *testing.T) {
	srv := httptest.NewServer(dummy.NewMux(dummy.ServerConfig{MaxReply: 4}))
	defer srv.Close()

	cfg := runner.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.NumUsers = 2
	cfg.QPS = 10
	cfg.NumRounds = 2
	cfg.AnswerLen = 4
	cfg.Duration = 700 * time.Millisecond
	cfg.Warmup = false

	client := executor.NewHTTPClient(executor.ClientConfig{BaseURL: cfg.BaseURL})
	r, err := runner.NewRunner(cfg, client, make(runner.StatsUpdateChan, 100))
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := Start(context.Background(), r, &buf)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Rows)

	out := buf.String()
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "🚀 STARTING CHATQ LOAD TEST"))
	assert.Contains(t, out, "LOAD TEST RESULTS")
	assert.Contains(t, out, "Performance summary")
}
