package storage

import (
	"time"

	"github.com/google/uuid"

	"chatq/internal/runner"
	"chatq/internal/stats"
)

// HistoryItem is one finished run.
type HistoryItem struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Config    runner.Config `json:"config"`
	Summary   stats.Summary `json:"summary"`
	Rows      int           `json:"rows"`
	Admitted  int           `json:"admitted"`
	Failures  int           `json:"failures"`
	Output    string        `json:"output,omitempty"`
}

// NewHistoryItem records res. IDs are UUIDv7 so that they sort by time.
func NewHistoryItem(cfg runner.Config, res runner.Result) HistoryItem {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return HistoryItem{
		ID:        id.String(),
		Timestamp: res.End,
		Config:    cfg,
		Summary:   res.Summary,
		Rows:      len(res.Rows),
		Admitted:  res.Admitted,
		Failures:  res.Failures,
		Output:    cfg.Output,
	}
}
