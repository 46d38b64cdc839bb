package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/dummy"
	"chatq/internal/executor"
)

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.NumUsers = 2
	cfg.QPS = 10
	cfg.NumRounds = 3
	cfg.AnswerLen = 4
	cfg.SystemPromptLen = 5
	cfg.UserInfoLen = 5
	cfg.Duration = 1500 * time.Millisecond
	cfg.LogInterval = 500 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	cfg.DrainTimeout = 5 * time.Second
	return cfg
}

func dummyServer(t *testing.T, cfg dummy.ServerConfig, p dummy.Profile) (*httptest.Server, *dummy.Handler) {
	t.Helper()
	h := dummy.NewHandler(cfg, p)
	mux := http.NewServeMux()
	mux.Handle("/v1/completions", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, h
}

func TestValidate(t *testing.T) {
	good := testConfig("http://localhost:8000")
	require.NoError(t, good.Validate())

	cases := map[string]func(*Config){
		"users":   func(c *Config) { c.NumUsers = 0 },
		"rounds":  func(c *Config) { c.NumRounds = -1 },
		"qps":     func(c *Config) { c.QPS = 0 },
		"answer":  func(c *Config) { c.AnswerLen = 0 },
		"url":     func(c *Config) { c.BaseURL = "" },
		"policy":  func(c *Config) { c.FailurePolicy = "retry" },
		"apps":    func(c *Config) { c.AppsFile = "apps.json"; c.UsersPerApp = 0 },
		"time":    func(c *Config) { c.Duration = -time.Second },
		"logging": func(c *Config) { c.LogInterval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := good
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWorkload(t *testing.T) {
	cfg := testConfig("http://x")
	cfg.InitUserID = 40
	w := cfg.Workload()
	assert.Equal(t, 2, w.NumUsers)
	assert.Equal(t, 40, w.InitUserID)
	assert.True(t, w.SendUserID)
	assert.Equal(t, 200*time.Millisecond, w.GapBetweenRequests())
}

func TestNewRunnerRejectsBadInputs(t *testing.T) {
	client := executor.NewHTTPClient(executor.ClientConfig{BaseURL: "http://x"})

	cfg := testConfig("http://x")
	cfg.AppsFile = filepath.Join(t.TempDir(), "missing.json")
	_, err := NewRunner(cfg, client, nil)
	assert.Error(t, err)

	cfg = testConfig("http://x")
	cfg.QPS = 0
	_, err = NewRunner(cfg, client, nil)
	assert.Error(t, err)
}

func TestRunAgainstDummyServer(t *testing.T) {
	srv, h := dummyServer(t, dummy.ServerConfig{MaxReply: 8}, dummy.Profile{
		Name:     "test",
		Prefill:  func() time.Duration { return 5 * time.Millisecond },
		PerToken: time.Millisecond,
	})

	appsFile := filepath.Join(t.TempDir(), "apps.json")
	require.NoError(t, os.WriteFile(appsFile, []byte(`[
		{"systemPrompt": "you are helpful", "tools": "", "ragDocs": ["doc one"]},
		{"systemPrompt": "you are terse", "ragDocs": []},
	]`), 0o644))

	cfg := testConfig(srv.URL)
	cfg.AppsFile = appsFile
	cfg.UsersPerApp = 1

	updates := make(StatsUpdateChan, 1000)
	client := executor.NewHTTPClient(executor.ClientConfig{BaseURL: cfg.BaseURL, Model: "m"})
	r, err := NewRunner(cfg, client, updates)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, h.Streamed.Load(), int64(10))
	require.NotEmpty(t, res.Rows)
	assert.Zero(t, res.Failures)
	assert.Zero(t, res.Abandoned)
	assert.Greater(t, res.Admitted, cfg.NumUsers)
	for _, row := range res.Rows {
		assert.False(t, row.FinishTime.Before(row.LaunchTime))
		assert.Equal(t, 4, row.GenTokens)
		assert.Greater(t, row.PromptTokens, 0)
		assert.GreaterOrEqual(t, row.RoundID, 1)
		assert.LessOrEqual(t, row.RoundID, cfg.NumRounds)
	}
	assert.Equal(t, len(res.Rows), res.Summary.Finished)
	assert.Greater(t, res.Summary.QPS, 0.0)
	assert.EqualValues(t, len(res.Rows), r.Live.Snapshot().Finished)
	assert.NotEmpty(t, updates)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := dummyServer(t, dummy.ServerConfig{MaxReply: 4}, dummy.Profile{Name: "test"})
	cfg := testConfig(srv.URL)
	cfg.Duration = 0
	cfg.Warmup = false

	client := executor.NewHTTPClient(executor.ClientConfig{BaseURL: cfg.BaseURL})
	r, err := NewRunner(cfg, client, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotEmpty(t, res.Rows)
}

func TestRunCountsFailures(t *testing.T) {
	srv, _ := dummyServer(t, dummy.ServerConfig{}, dummy.Profile{
		Name:       "test",
		FailStatus: func() int { return http.StatusInternalServerError },
	})
	cfg := testConfig(srv.URL)
	cfg.Duration = time.Second
	cfg.Warmup = false

	client := executor.NewHTTPClient(executor.ClientConfig{BaseURL: cfg.BaseURL})
	r, err := NewRunner(cfg, client, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Greater(t, res.Failures, 0)
	assert.EqualValues(t, res.Failures, r.Live.Snapshot().Failed)
}
