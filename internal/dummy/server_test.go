package dummy

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatq/internal/logging"
)

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/completions", strings.NewReader(body))
	req.Header.Set("x-user-id", "9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReplyLength(t *testing.T) {
	tests := []struct {
		name      string
		maxReply  int
		maxTokens int
		want      int
	}{
		{"no cap honors max_tokens", 0, 100, 100},
		{"cap truncates", 8, 100, 8},
		{"under cap", 8, 3, 3},
		{"missing max_tokens", 0, 0, DefaultReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(ServerConfig{MaxReply: tt.maxReply}, Profiles["instant"])

			body := `{"model":"m","prompt":"a b","stream":true,"max_tokens":` + strconv.Itoa(tt.maxTokens) + `}`
			rec := post(t, h, body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, strings.Count(rec.Body.String(), `"text":"tok`))

			rec = post(t, h, strings.Replace(body, `"stream":true`, `"stream":false`, 1))
			require.Equal(t, http.StatusOK, rec.Code)
			var resp completionResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.NotNil(t, resp.Usage)
			assert.Equal(t, tt.want, resp.Usage.CompletionTokens)
		})
	}
}

func TestHandlerLogsRequests(t *testing.T) {
	var buf bytes.Buffer
	cfg := ServerConfig{Logger: logging.New("debug", &buf)}

	ok := NewHandler(cfg, Profiles["instant"])
	post(t, ok, `{"prompt":"x","stream":false,"max_tokens":2}`)
	out := buf.String()
	assert.Contains(t, out, "completion request")
	assert.Contains(t, out, `"profile": "instant"`)
	assert.Contains(t, out, `"user": "9"`)
	assert.Contains(t, out, `"max_tokens": 2`)

	buf.Reset()
	failing := NewHandler(cfg, Profile{Name: "down", FailStatus: func() int { return http.StatusTooManyRequests }})
	rec := post(t, failing, `{"prompt":"x","stream":true,"max_tokens":2}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), `"status": 429`)
}

func TestHandlerRejectsGet(t *testing.T) {
	h := NewHandler(ServerConfig{}, Profiles["instant"])
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/completions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
