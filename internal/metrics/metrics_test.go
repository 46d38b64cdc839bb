package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/stats"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCounts(t *testing.T) {
	c := New()
	c.Admitted(1, 1)
	c.Admitted(2, 2)
	c.Launched(1, 1)
	c.Launched(2, 1)
	c.Finished(stats.Row{PromptTokens: 10, GenTokens: 4, TTFT: 20 * time.Millisecond, GenerationTime: time.Second})
	c.Failed(2, 1, errors.New("boom"))
	c.Backpressure(1)
	c.Reaped(1, 1)

	body := scrape(t, c)
	for _, line := range []string{
		"chatq_users_admitted_total 2",
		"chatq_active_users 1",
		"chatq_requests_launched_total 2",
		"chatq_requests_in_flight 0",
		"chatq_requests_finished_total 1",
		"chatq_requests_failed_total 1",
		"chatq_backpressure_warnings_total 1",
		"chatq_prompt_tokens_total 10",
		"chatq_generation_tokens_total 4",
		"chatq_ttft_seconds_count 1",
	} {
		assert.Contains(t, body, line)
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	a, b := New(), New()
	a.Launched(1, 1)
	assert.Contains(t, scrape(t, a), "chatq_requests_launched_total 1")
	assert.Contains(t, scrape(t, b), "chatq_requests_launched_total 0")
}
