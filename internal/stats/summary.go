package stats

import (
	"time"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the rows of one time window.
type Summary struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration

	Launched int
	Finished int
	Pending  int

	TargetQPS   float64
	QPS         float64
	FinishedQPS float64

	PrefillTokensPerSec float64
	DecodeTokensPerSec  float64
	// DecodeSpeedPerRequest is the mean of gen_tokens/generation_time over
	// rows with a non-zero generation time.
	DecodeSpeedPerRequest float64

	MeanTTFT   time.Duration
	P50TTFT    time.Duration
	P90TTFT    time.Duration
	P99TTFT    time.Duration
	TTFTStdErr time.Duration
}

// Window bounds a summary. A zero Start or End is replaced by the earliest
// launch or latest finish of the rows.
type Window struct {
	Start time.Time
	End   time.Time
}

func inWindow(t time.Time, w Window) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func seconds(d time.Duration) float64 { return d.Seconds() }

// Summarize computes window statistics. Launched counts rows launched inside
// the window; every other figure uses rows that finished inside it. pending is
// the number of calls still in flight and counts towards QPS. It never
// modifies rows.
func Summarize(rows []Row, w Window, pending int, targetQPS float64) Summary {
	bounded := !w.Start.IsZero() && !w.End.IsZero()
	if w.Start.IsZero() {
		for i, r := range rows {
			if i == 0 || r.LaunchTime.Before(w.Start) {
				w.Start = r.LaunchTime
			}
		}
	}
	if w.End.IsZero() {
		for _, r := range rows {
			if r.FinishTime.After(w.End) {
				w.End = r.FinishTime
			}
		}
	}

	s := Summary{
		Start:     w.Start,
		End:       w.End,
		Duration:  w.End.Sub(w.Start),
		Pending:   pending,
		TargetQPS: targetQPS,
	}

	var (
		promptTokens, genTokens int
		ttfts, speeds           mstats.Float64Data
	)
	for _, r := range rows {
		if !bounded || inWindow(r.LaunchTime, w) {
			s.Launched++
		}
		if bounded && !inWindow(r.FinishTime, w) {
			continue
		}
		s.Finished++
		promptTokens += r.PromptTokens
		genTokens += r.GenTokens
		ttfts = append(ttfts, seconds(r.TTFT))
		if v, ok := r.DecodeSpeed(); ok {
			speeds = append(speeds, v)
		}
	}

	if total := s.Duration.Seconds(); total > 0 {
		s.QPS = float64(s.Launched+s.Pending) / total
		s.FinishedQPS = float64(s.Finished) / total
		s.PrefillTokensPerSec = float64(promptTokens) / total
		s.DecodeTokensPerSec = float64(genTokens) / total
	}

	if len(speeds) > 0 {
		s.DecodeSpeedPerRequest, _ = mstats.Mean(speeds)
	}
	if len(ttfts) > 0 {
		mean, _ := mstats.Mean(ttfts)
		s.MeanTTFT = fromSeconds(mean)
		s.P50TTFT = percentile(ttfts, 50)
		s.P90TTFT = percentile(ttfts, 90)
		s.P99TTFT = percentile(ttfts, 99)
	}
	if len(ttfts) > 1 {
		_, std := stat.MeanStdDev(ttfts, nil)
		s.TTFTStdErr = fromSeconds(stat.StdErr(std, float64(len(ttfts))))
	}
	return s
}

func percentile(data mstats.Float64Data, p float64) time.Duration {
	v, err := mstats.Percentile(data, p)
	if err != nil {
		return 0
	}
	return fromSeconds(v)
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
