// Package dummy runs a local OpenAI-compatible completions endpoint that
// streams synthetic tokens with configurable latency profiles.
package dummy

import (
	"bufio"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultReply is the reply length used when a request has no max_tokens.
const DefaultReply = 32

type ServerConfig struct {
	Port int

	// MaxReply caps the number of tokens streamed per reply. Zero or less
	// leaves the cap to the request's max_tokens.
	MaxReply int

	// OmitUsage leaves the usage block out of streamed responses so clients
	// have to fall back to a non-streaming call.
	OmitUsage bool

	Logger *zap.Logger
}

// Profile shapes the latency of one endpoint.
type Profile struct {
	Name       string
	Prefill    func() time.Duration
	PerToken   time.Duration
	FailStatus func() int
}

func between(lo, hi time.Duration) func() time.Duration {
	return func() time.Duration {
		return lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
	}
}

func noFail() int { return 0 }

// Profiles are served under /<name>/v1/completions. The plain
// /v1/completions path uses "instant".
var Profiles = map[string]Profile{
	"instant": {Name: "instant", Prefill: func() time.Duration { return 0 }, FailStatus: noFail},
	"fast":    {Name: "fast", Prefill: between(10*time.Millisecond, 50*time.Millisecond), PerToken: time.Millisecond, FailStatus: noFail},
	"medium":  {Name: "medium", Prefill: between(100*time.Millisecond, 300*time.Millisecond), PerToken: 10 * time.Millisecond, FailStatus: noFail},
	"slow":    {Name: "slow", Prefill: between(time.Second, 2*time.Second), PerToken: 30 * time.Millisecond, FailStatus: noFail},
	// Usually fast, randomly very slow. P99 will be terrible, P50 will be fine.
	"spike": {Name: "spike", Prefill: func() time.Duration {
		if rand.Float32() < 0.05 {
			return 2 * time.Second
		}
		return 20 * time.Millisecond
	}, PerToken: time.Millisecond, FailStatus: noFail},
	"error": {Name: "error", Prefill: between(10*time.Millisecond, 50*time.Millisecond), PerToken: time.Millisecond, FailStatus: func() int {
		rnd := rand.Float32()
		if rnd < 0.2 {
			return http.StatusInternalServerError
		} else if rnd < 0.4 {
			return http.StatusTooManyRequests
		}
		return 0
	}},
}

type completionRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type choice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type completionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

// Handler serves completions for one profile and counts the calls it sees.
type Handler struct {
	cfg     ServerConfig
	profile Profile
	log     *zap.Logger

	Streamed atomic.Int64
	Unary    atomic.Int64
	LastUser atomic.Value // string, last x-user-id header seen
}

// NewHandler builds a completions handler for profile.
func NewHandler(cfg ServerConfig, profile Profile) *Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if profile.Prefill == nil {
		profile.Prefill = func() time.Duration { return 0 }
	}
	if profile.FailStatus == nil {
		profile.FailStatus = noFail
	}
	return &Handler{cfg: cfg, profile: profile, log: log.With(zap.String("profile", profile.Name))}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	uid := r.Header.Get("x-user-id")
	if uid != "" {
		h.LastUser.Store(uid)
	}
	h.log.Debug("completion request",
		zap.String("user", uid),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Bool("stream", req.Stream))

	if status := h.profile.FailStatus(); status != 0 {
		h.log.Warn("injecting failure", zap.String("user", uid), zap.Int("status", status))
		w.WriteHeader(status)
		w.Write([]byte(http.StatusText(status)))
		return
	}

	n := req.MaxTokens
	if n <= 0 {
		n = DefaultReply
	}
	if h.cfg.MaxReply > 0 && n > h.cfg.MaxReply {
		n = h.cfg.MaxReply
	}
	u := &usage{
		PromptTokens:     len(strings.Fields(req.Prompt)),
		CompletionTokens: n,
		TotalTokens:      len(strings.Fields(req.Prompt)) + n,
	}

	if !req.Stream {
		h.Unary.Add(1)
		var body strings.Builder
		for i := 0; i < n; i++ {
			body.WriteString(token(i))
		}
		stop := "length"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(completionResponse{
			ID: "cmpl-dummy", Object: "text_completion", Model: req.Model,
			Choices: []choice{{Text: body.String(), FinishReason: &stop}},
			Usage:   u,
		})
		return
	}

	h.Streamed.Add(1)
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	send := func(v interface{}) {
		b, _ := json.Marshal(v)
		fmt.Fprintf(bw, "data: %s\n\n", b)
		bw.Flush()
		if flusher != nil {
			flusher.Flush()
		}
	}

	time.Sleep(h.profile.Prefill())
	for i := 0; i < n; i++ {
		if i > 0 && h.profile.PerToken > 0 {
			time.Sleep(h.profile.PerToken)
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
		send(completionResponse{
			ID: "cmpl-dummy", Object: "text_completion", Model: req.Model,
			Choices: []choice{{Text: token(i)}},
		})
	}
	if !h.cfg.OmitUsage {
		send(completionResponse{ID: "cmpl-dummy", Object: "text_completion", Model: req.Model, Choices: []choice{}, Usage: u})
	}
	fmt.Fprint(bw, "data: [DONE]\n\n")
	bw.Flush()
	if flusher != nil {
		flusher.Flush()
	}
}

func token(i int) string {
	return fmt.Sprintf("tok%d ", i)
}

// NewMux mounts the instant profile at /v1/completions and every profile at
// /<name>/v1/completions.
func NewMux(cfg ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/v1/completions", NewHandler(cfg, Profiles["instant"]))
	for name, p := range Profiles {
		mux.Handle("/"+name+"/v1/completions", NewHandler(cfg, p))
	}
	return mux
}

// Start serves NewMux on cfg.Port in the background.
func Start(cfg ServerConfig) *http.Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	fmt.Printf("👻 Dummy completion server running on http://localhost%s\n", addr)
	fmt.Println("   Endpoints: /v1/completions, /{fast,medium,slow,spike,error}/v1/completions")

	server := &http.Server{
		Addr:    addr,
		Handler: NewMux(cfg),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dummy server failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return server
}
