// Package session implements one simulated user: a paced state machine that
// fires one conversation round at a time through a Dispatcher and records a
// metrics row per answered round.
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"chatq/internal/apps"
	"chatq/internal/conversation"
	"chatq/internal/executor"
	"chatq/internal/stats"
	"chatq/internal/textgen"
	"chatq/internal/transcript"
)

// UserIDHeader carries the simulated user id on every request.
const UserIDHeader = "x-user-id"

// backpressureEvery throttles the in-flight warning per session.
const backpressureEvery = 10 * time.Second

var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrStaleCompletion = errors.New("completion does not match the in-flight round")
)

// FailurePolicy decides what a failed round does to the session.
type FailurePolicy string

const (
	// PolicyAbandon drops the unanswered user turn and lets the session move
	// on at its next due time. The round is lost.
	PolicyAbandon FailurePolicy = "abandon"
	// PolicyStall keeps the session marked in flight forever.
	PolicyStall FailurePolicy = "stall"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAbandon:
		return PolicyAbandon, nil
	case PolicyStall:
		return PolicyStall, nil
	}
	return "", fmt.Errorf("unknown failure policy %q (want abandon or stall)", s)
}

// Config is the per-user runtime configuration.
type Config struct {
	UserID    int
	Gap       time.Duration
	NumRounds int
	AnswerLen int

	// Placeholder system prompt sizes, used when no app is attached.
	SystemPromptLen int
	UserInfoLen     int

	SendUserID    bool
	FailurePolicy FailurePolicy
}

// Dispatcher accepts a request without blocking.
type Dispatcher interface {
	Submit(req executor.Request) error
}

// Action reports what a Step did.
type Action int

const (
	ActionIdle Action = iota
	ActionFired
	ActionBackpressure
	ActionFinished
)

func (a Action) String() string {
	switch a {
	case ActionFired:
		return "fired"
	case ActionBackpressure:
		return "backpressure"
	case ActionFinished:
		return "finished"
	}
	return "idle"
}

// Session is owned by the controller goroutine and is not safe for
// concurrent use.
type Session struct {
	cfg    Config
	app    *apps.Profile
	script *transcript.Conversation
	rng    *rand.Rand
	log    *zap.Logger
	warn   *rate.Limiter

	conv        *conversation.State
	round       int
	lastRequest time.Time
	started     bool
	inFlight    bool
	finished    bool
	failures    int
	rows        []stats.Row
}

// New builds a session. app and script may be nil.
func New(cfg Config, app *apps.Profile, script *transcript.Conversation, rng *rand.Rand, log *zap.Logger) *Session {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyAbandon
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(cfg.UserID)))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:    cfg,
		app:    app,
		script: script,
		rng:    rng,
		log:    log.With(zap.Int("user_id", cfg.UserID)),
		warn:   rate.NewLimiter(rate.Every(backpressureEvery), 1),
		conv:   conversation.New(),
	}
}

func (s *Session) UserID() int    { return s.cfg.UserID }
func (s *Session) Round() int     { return s.round }
func (s *Session) InFlight() bool { return s.inFlight }
func (s *Session) Finished() bool { return s.finished }
func (s *Session) Failures() int  { return s.failures }

// LastRequest is the time of the last fire, real or seeded.
func (s *Session) LastRequest() time.Time { return s.lastRequest }

// Turns returns the conversation so far.
func (s *Session) Turns() []conversation.Turn { return s.conv.Turns() }

// Rows returns a copy of the metrics log in round order.
func (s *Session) Rows() []stats.Row {
	out := make([]stats.Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// SeedRampState places a fresh session offset into its lifetime, as if it
// had joined earlier, without issuing any call.
func (s *Session) SeedRampState(offset time.Duration, t time.Time) error {
	if s.started || s.conv.Len() > 0 {
		return ErrAlreadyStarted
	}
	if offset < 0 {
		offset = 0
	}
	passed := 1
	if s.cfg.Gap > 0 {
		passed = int(offset/s.cfg.Gap) + 1
	}
	s.round = passed
	s.lastRequest = t.Add(-offset).Add(time.Duration(passed-1) * s.cfg.Gap)
	s.started = true
	s.log.Debug("seeded ramp state",
		zap.Int("round", s.round),
		zap.Time("last_request", s.lastRequest))
	return nil
}

// Step evaluates the session at time now.
func (s *Session) Step(now time.Time, d Dispatcher) (Action, error) {
	if s.finished {
		return ActionFinished, nil
	}
	if s.round >= s.cfg.NumRounds && !s.inFlight {
		s.finished = true
		return ActionFinished, nil
	}
	if !s.started {
		return s.fire(now, d)
	}
	if now.Sub(s.lastRequest) <= s.cfg.Gap {
		return ActionIdle, nil
	}
	if s.inFlight {
		if s.warn.AllowN(now, 1) {
			s.log.Warn("user has an unfinished request and is unable to fit the QPS requirement",
				zap.Int("round", s.round))
			return ActionBackpressure, nil
		}
		return ActionIdle, nil
	}
	return s.fire(now, d)
}

func (s *Session) systemPrompt() string {
	if s.app != nil {
		return s.app.SystemPrompt
	}
	return textgen.SystemPrompt(s.cfg.UserID, s.cfg.SystemPromptLen, s.cfg.UserInfoLen)
}

// nextUserTurn builds the text and token budget of round index q.
func (s *Session) nextUserTurn(q int) (string, int, error) {
	maxTokens := s.cfg.AnswerLen

	var question string
	if s.script != nil {
		prompt, reply, ok := s.script.Turn(q)
		if !ok {
			return "", 0, fmt.Errorf("transcript %s has no round %d", s.script.ID, q+1)
		}
		question = prompt
		if reply > 0 && reply < maxTokens {
			maxTokens = reply
		}
	} else {
		question = textgen.Question(s.rng, q+1)
	}

	var parts []string
	if s.conv.Len() == 0 {
		parts = append(parts, s.systemPrompt())
	}
	if rag := s.app.RagContext(); rag != "" {
		parts = append(parts, rag)
	}
	parts = append(parts, question)
	return strings.Join(parts, "\n"), maxTokens, nil
}

func (s *Session) fire(now time.Time, d Dispatcher) (Action, error) {
	q := s.round
	text, maxTokens, err := s.nextUserTurn(q)
	if err != nil {
		return ActionIdle, err
	}
	if err := s.conv.AppendUser(text); err != nil {
		return ActionIdle, err
	}

	req := executor.Request{
		UserID:    s.cfg.UserID,
		Round:     q + 1,
		Turns:     s.conv.Turns(),
		MaxTokens: maxTokens,
	}
	if s.cfg.SendUserID {
		req.Headers = map[string]string{UserIDHeader: strconv.Itoa(s.cfg.UserID)}
	}
	if err := d.Submit(req); err != nil {
		s.conv.DropPendingUser()
		return ActionIdle, fmt.Errorf("submitting round %d: %w", q+1, err)
	}

	s.round = q + 1
	s.inFlight = true
	s.started = true
	s.lastRequest = now
	s.log.Debug("issued request", zap.Int("round", s.round), zap.Int("max_tokens", maxTokens))
	return ActionFired, nil
}

// HandleCompletion applies the result of the in-flight round. A failed round
// returns the call error and no row.
func (s *Session) HandleCompletion(c executor.Completion) (stats.Row, error) {
	if !s.inFlight || c.Round != s.round {
		return stats.Row{}, fmt.Errorf("%w: user %d round %d", ErrStaleCompletion, s.cfg.UserID, c.Round)
	}

	if c.Err != nil {
		s.failures++
		if s.cfg.FailurePolicy == PolicyAbandon {
			s.conv.DropPendingUser()
			s.inFlight = false
		}
		s.log.Warn("round failed",
			zap.Int("round", c.Round),
			zap.String("policy", string(s.cfg.FailurePolicy)),
			zap.Error(c.Err))
		return stats.Row{}, c.Err
	}

	if err := s.conv.AppendAssistant(c.Response.Body); err != nil {
		return stats.Row{}, err
	}
	s.inFlight = false

	r := c.Response
	row := stats.Row{
		PromptTokens:   r.PromptTokens,
		GenTokens:      r.GenTokens,
		TTFT:           r.TTFT,
		GenerationTime: r.GenerationTime,
		UserID:         s.cfg.UserID,
		RoundID:        c.Round,
		LaunchTime:     r.LaunchTime,
		FinishTime:     r.FinishTime,
	}
	s.rows = append(s.rows, row)
	s.log.Debug("finished request",
		zap.Int("round", c.Round),
		zap.Int("prompt_tokens", r.PromptTokens),
		zap.Int("generation_tokens", r.GenTokens))
	return row, nil
}
