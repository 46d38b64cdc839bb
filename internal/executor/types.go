package executor

import (
	"time"

	"chatq/internal/conversation"
)

// Request is one round submitted by a session.
type Request struct {
	UserID    int
	Round     int
	Turns     []conversation.Turn
	MaxTokens int
	Headers   map[string]string
}

// Response is the outcome of one completed call.
type Response struct {
	Body           string
	TTFT           time.Duration
	GenerationTime time.Duration
	PromptTokens   int
	GenTokens      int
	LaunchTime     time.Time
	FinishTime     time.Time
}

// Completion is posted back to the controller when a call ends, successfully
// or not.
type Completion struct {
	UserID   int
	Round    int
	Response Response
	Err      error
}

// Call is the wire-level input of a completion call.
type Call struct {
	Prompt    string
	MaxTokens int
	Headers   map[string]string
}
