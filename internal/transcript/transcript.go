// Package transcript loads recorded multi-turn conversations (ShareGPT
// format) used to replay real user turns instead of synthetic questions.
package transcript

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrNoEligible = errors.New("no conversation has enough rounds")

type Message struct {
	From      string `json:"from"`
	Value     string `json:"value"`
	NumTokens int    `json:"num_tokens"`
}

type Conversation struct {
	ID            string    `json:"id"`
	NumRound      int       `json:"num_round"`
	Conversations []Message `json:"conversations"`
}

// offset skips a leading assistant message. Transcripts with an odd message
// count start with the model speaking.
func (c *Conversation) offset() int {
	if c.NumRound%2 == 1 {
		return 1
	}
	return 0
}

// Turn returns the user prompt of round r (0-based) and the length of the
// recorded reply. ok is false when the transcript is too short.
func (c *Conversation) Turn(r int) (prompt string, replyTokens int, ok bool) {
	i := c.offset() + 2*r
	if r < 0 || i+1 >= len(c.Conversations) {
		return "", 0, false
	}
	return c.Conversations[i].Value, c.Conversations[i+1].NumTokens, true
}

// Set is the pool of transcripts long enough for the configured round count.
type Set struct {
	convs []*Conversation
}

// Load reads a ShareGPT JSON file and keeps conversations with more than
// 2*numRounds messages.
func Load(path string, numRounds int) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcripts: %w", err)
	}
	defer f.Close()

	var all []*Conversation
	if err := json.NewDecoder(f).Decode(&all); err != nil {
		return nil, fmt.Errorf("decoding transcripts %s: %w", path, err)
	}
	return NewSet(all, numRounds)
}

func NewSet(all []*Conversation, numRounds int) (*Set, error) {
	s := &Set{}
	for _, c := range all {
		if c == nil || c.NumRound <= 2*numRounds {
			continue
		}
		// num_round is advisory; the message list has to back it up.
		if _, _, ok := c.Turn(numRounds - 1); !ok {
			continue
		}
		s.convs = append(s.convs, c)
	}
	if len(s.convs) == 0 {
		return nil, fmt.Errorf("%w: need more than %d messages", ErrNoEligible, 2*numRounds)
	}
	return s, nil
}

func (s *Set) Len() int { return len(s.convs) }

// For picks the transcript replayed by userID.
func (s *Set) For(userID int) *Conversation {
	n := len(s.convs)
	return s.convs[((userID%n)+n)%n]
}
