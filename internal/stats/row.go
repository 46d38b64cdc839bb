package stats

import "time"

// Row is one completed round of one user.
type Row struct {
	PromptTokens   int
	GenTokens      int
	TTFT           time.Duration
	GenerationTime time.Duration
	UserID         int
	RoundID        int
	LaunchTime     time.Time
	FinishTime     time.Time
}

// DecodeSpeed is generated tokens per second of generation time. ok is false
// when the generation time is zero.
func (r Row) DecodeSpeed() (float64, bool) {
	if r.GenerationTime <= 0 {
		return 0, false
	}
	return float64(r.GenTokens) / r.GenerationTime.Seconds(), true
}
