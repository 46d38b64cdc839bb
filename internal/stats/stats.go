package stats

import (
	"sync/atomic"
)

// Live holds real-time counters for a run. It is fed by the controller and
// read concurrently by the UI and the metrics exporter.
type Live struct {
	Launched     uint64
	Finished     uint64
	Failed       uint64
	Backpressure uint64
	PromptTokens uint64
	GenTokens    uint64

	// Latency histograms (microseconds)
	TTFT    *SafeHistogram
	GenTime *SafeHistogram
}

func NewLive() *Live {
	return &Live{
		TTFT:    NewSafeHistogram(),
		GenTime: NewSafeHistogram(),
	}
}

func (s *Live) AddLaunch() {
	atomic.AddUint64(&s.Launched, 1)
}

func (s *Live) AddFailure() {
	atomic.AddUint64(&s.Failed, 1)
}

func (s *Live) AddBackpressure() {
	atomic.AddUint64(&s.Backpressure, 1)
}

func (s *Live) AddRow(r Row) {
	atomic.AddUint64(&s.Finished, 1)
	atomic.AddUint64(&s.PromptTokens, uint64(r.PromptTokens))
	atomic.AddUint64(&s.GenTokens, uint64(r.GenTokens))
	s.TTFT.Record(r.TTFT)
	s.GenTime.Record(r.GenerationTime)
}

func (s *Live) ErrorRate() float64 {
	fin := atomic.LoadUint64(&s.Finished)
	fails := atomic.LoadUint64(&s.Failed)
	if fin+fails == 0 {
		return 0
	}
	return (float64(fails) / float64(fin+fails)) * 100
}

// Snapshot is a cheap copy of Live for the UI.
type Snapshot struct {
	Launched     uint64
	Finished     uint64
	Failed       uint64
	Backpressure uint64
	PromptTokens uint64
	GenTokens    uint64

	P50TTFTMs float64
	P90TTFTMs float64
	P99TTFTMs float64
	MaxTTFTMs float64

	AvgGenTimeMs float64
}

func (s *Live) Snapshot() Snapshot {
	return Snapshot{
		Launched:     atomic.LoadUint64(&s.Launched),
		Finished:     atomic.LoadUint64(&s.Finished),
		Failed:       atomic.LoadUint64(&s.Failed),
		Backpressure: atomic.LoadUint64(&s.Backpressure),
		PromptTokens: atomic.LoadUint64(&s.PromptTokens),
		GenTokens:    atomic.LoadUint64(&s.GenTokens),
		P50TTFTMs:    s.TTFT.QuantileMs(50),
		P90TTFTMs:    s.TTFT.QuantileMs(90),
		P99TTFTMs:    s.TTFT.QuantileMs(99),
		MaxTTFTMs:    s.TTFT.MaxMs(),
		AvgGenTimeMs: s.GenTime.MeanMs(),
	}
}
