package executor

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestIDHeader tags every call so server logs can be matched to rows.
const RequestIDHeader = "X-Request-Id"

// Client performs one completion call.
type Client interface {
	Complete(ctx context.Context, call Call) (Response, error)
}

type ClientConfig struct {
	BaseURL string
	Model   string
	APIKey  string

	// HTTPClient overrides the default pooled client.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// HTTPClient talks to an OpenAI-compatible /v1/completions endpoint.
type HTTPClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	log      *zap.Logger
}

// NormalizeBaseURL makes sure the base URL ends in /v1.
func NormalizeBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	client := cfg.HTTPClient
	if client == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConns = 2000
		t.MaxConnsPerHost = 2000
		t.MaxIdleConnsPerHost = 2000
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		// No client-wide timeout: streams are bounded per call by the context.
		client = &http.Client{Transport: t}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "EMPTY"
	}
	return &HTTPClient{
		endpoint: NormalizeBaseURL(cfg.BaseURL) + "/completions",
		model:    cfg.Model,
		apiKey:   apiKey,
		client:   client,
		log:      log,
	}
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type completionRequest struct {
	Model         string         `json:"model"`
	Prompt        string         `json:"prompt"`
	Stream        bool           `json:"stream"`
	MaxTokens     int            `json:"max_tokens"`
	Temperature   float64        `json:"temperature"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type completionChunk struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
	Usage *usage    `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

func (c *HTTPClient) newRequest(ctx context.Context, call Call, stream bool) (*http.Request, error) {
	body := completionRequest{
		Model:       c.model,
		Prompt:      call.Prompt,
		Stream:      stream,
		MaxTokens:   call.MaxTokens,
		Temperature: 0.0,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Complete streams one completion. TTFT is measured to the first non-empty
// chunk. When the stream carries no usage block a second, non-streaming call
// with the same parameters recovers the token counts.
func (c *HTTPClient) Complete(ctx context.Context, call Call) (Response, error) {
	res := Response{LaunchTime: time.Now()}

	req, err := c.newRequest(ctx, call, true)
	if err != nil {
		return res, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return res, statusError(resp)
	}

	var (
		body       strings.Builder
		firstToken time.Time
		u          *usage
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk completionChunk
		if err := json.UnmarshalFromString(payload, &chunk); err != nil {
			return res, fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return res, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Text != "" {
			if firstToken.IsZero() {
				firstToken = time.Now()
			}
			body.WriteString(chunk.Choices[0].Text)
		}
		if chunk.Usage != nil {
			u = chunk.Usage
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("reading stream: %w", err)
	}

	res.FinishTime = time.Now()
	res.Body = body.String()
	if !firstToken.IsZero() {
		res.TTFT = firstToken.Sub(res.LaunchTime)
		res.GenerationTime = res.FinishTime.Sub(firstToken)
	}
	if u != nil {
		res.PromptTokens = u.PromptTokens
		res.GenTokens = u.CompletionTokens
	}

	if res.PromptTokens == 0 || res.GenTokens == 0 {
		c.log.Debug("no token counts from streaming, querying usage",
			zap.Int("prompt_tokens", res.PromptTokens),
			zap.Int("completion_tokens", res.GenTokens))
		if fu, err := c.fetchUsage(ctx, call); err != nil {
			c.log.Warn("failed to get token counts from final response", zap.Error(err))
		} else {
			res.PromptTokens = fu.PromptTokens
			res.GenTokens = fu.CompletionTokens
		}
	}
	return res, nil
}

func (c *HTTPClient) fetchUsage(ctx context.Context, call Call) (*usage, error) {
	req, err := c.newRequest(ctx, call, false)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out completionChunk
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Usage == nil {
		return nil, fmt.Errorf("response has no usage block")
	}
	return out.Usage, nil
}
