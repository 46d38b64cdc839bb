package scheduler

import "chatq/internal/stats"

// Observer receives scheduler events on the controller goroutine.
// Implementations must not block.
type Observer interface {
	Admitted(userID, active int)
	Launched(userID, round int)
	Finished(row stats.Row)
	Failed(userID, round int, err error)
	Backpressure(userID int)
	Reaped(removed, active int)
}

type NopObserver struct{}

func (NopObserver) Admitted(int, int) {}
func (NopObserver) Launched(int, int) {}
func (NopObserver) Finished(stats.Row) {}
func (NopObserver) Failed(int, int, error) {}
func (NopObserver) Backpressure(int) {}
func (NopObserver) Reaped(int, int) {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) Admitted(userID, active int) {
	for _, x := range o {
		x.Admitted(userID, active)
	}
}

func (o Observers) Launched(userID, round int) {
	for _, x := range o {
		x.Launched(userID, round)
	}
}

func (o Observers) Finished(row stats.Row) {
	for _, x := range o {
		x.Finished(row)
	}
}

func (o Observers) Failed(userID, round int, err error) {
	for _, x := range o {
		x.Failed(userID, round, err)
	}
}

func (o Observers) Backpressure(userID int) {
	for _, x := range o {
		x.Backpressure(userID)
	}
}

func (o Observers) Reaped(removed, active int) {
	for _, x := range o {
		x.Reaped(removed, active)
	}
}
