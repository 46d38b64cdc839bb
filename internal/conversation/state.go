// Package conversation holds one simulated user's dialogue history.
package conversation

import (
	"errors"
	"fmt"
)

// Role tags a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrUnexpectedRole is returned when an append would break alternation.
var ErrUnexpectedRole = errors.New("unexpected role")

// Turn is one message in the dialogue.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is an ordered, strictly alternating turn sequence that always starts
// with a user turn. It is owned by a single session and is not safe for
// concurrent use.
type State struct {
	turns []Turn
}

// New returns an empty conversation.
func New() *State {
	return &State{}
}

// AppendUser adds a user turn. The previous turn, if any, must be an
// assistant turn.
func (s *State) AppendUser(text string) error {
	if n := len(s.turns); n > 0 && s.turns[n-1].Role != RoleAssistant {
		return fmt.Errorf("%w: user turn after %s turn", ErrUnexpectedRole, s.turns[n-1].Role)
	}
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: text})
	return nil
}

// AppendAssistant adds an assistant turn. The previous turn must be a user turn.
func (s *State) AppendAssistant(text string) error {
	n := len(s.turns)
	if n == 0 {
		return fmt.Errorf("%w: assistant turn on empty conversation", ErrUnexpectedRole)
	}
	if s.turns[n-1].Role != RoleUser {
		return fmt.Errorf("%w: assistant turn after %s turn", ErrUnexpectedRole, s.turns[n-1].Role)
	}
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: text})
	return nil
}

// DropPendingUser removes a trailing unanswered user turn. It reports whether
// a turn was removed.
func (s *State) DropPendingUser() bool {
	n := len(s.turns)
	if n == 0 || s.turns[n-1].Role != RoleUser {
		return false
	}
	s.turns = s.turns[:n-1]
	return true
}

// Turns returns a copy of the history in order.
func (s *State) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns.
func (s *State) Len() int {
	return len(s.turns)
}
