package dsda

import "time"

// Phase names the part of the state machine that produced an event.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseNeighbor Phase = "neighbor"
	PhaseLine     Phase = "line"
)

// EvaluationEvent is emitted after every oracle-backed evaluation.
type EvaluationEvent struct {
	Phase   Phase
	Result  EvaluationResult
	Elapsed time.Duration
	// DirectionID is the neighborhood id the candidate came from (0 in init).
	DirectionID int
	// Accepted is true when the candidate replaced the incumbent.
	Accepted bool
}

// SkipEvent is emitted when a candidate is skipped because it was already
// evaluated in this run.
type SkipEvent struct {
	Phase         Phase
	Configuration Configuration
	Elapsed       time.Duration
}

// MoveEvent is emitted when a configuration is appended to the route.
type MoveEvent struct {
	Phase         Phase
	Configuration Configuration
	Objective     float64
	DirectionID   int
	Direction     Direction
	RouteIndex    int
	Elapsed       time.Duration
}

// Observer receives run events. Implementations must not block for long:
// they run on the search goroutine.
type Observer interface {
	Evaluated(EvaluationEvent)
	Skipped(SkipEvent)
	Moved(MoveEvent)
	Finished(*RunResult)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) Evaluated(EvaluationEvent) {}
func (NopObserver) Skipped(SkipEvent)         {}
func (NopObserver) Moved(MoveEvent)           {}
func (NopObserver) Finished(*RunResult)       {}

// Observers fans events out to several observers in order.
type Observers []Observer

func (o Observers) Evaluated(ev EvaluationEvent) {
	for _, obs := range o {
		obs.Evaluated(ev)
	}
}

func (o Observers) Skipped(ev SkipEvent) {
	for _, obs := range o {
		obs.Skipped(ev)
	}
}

func (o Observers) Moved(ev MoveEvent) {
	for _, obs := range o {
		obs.Moved(ev)
	}
}

func (o Observers) Finished(r *RunResult) {
	for _, obs := range o {
		obs.Finished(r)
	}
}
