package dsda

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"
)

// fakeClock is advanced explicitly by the fake oracle.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeProblem records the configuration it was fixed at and the warm start it
// was seeded with.
type fakeProblem struct {
	config Configuration
	warm   *Solution
}

func (p *fakeProblem) Initialize(s Solution) {
	p.warm = &s
}

// propagatingProblem rejects itself during bound propagation.
type propagatingProblem struct {
	fakeProblem
	err error
}

func (p *propagatingProblem) Propagate() error {
	return p.err
}

func fakeReformulator(dim int) Reformulator {
	return ReformulatorFunc(func(c Configuration) (Problem, error) {
		if len(c) != dim {
			return nil, &ReformulationError{Model: "fake", Expected: dim, Actual: len(c)}
		}
		return &fakeProblem{config: c}, nil
	})
}

type objectiveFunc func(Configuration) (float64, Termination)

// quadraticTo is feasible everywhere with its minimum at target.
func quadraticTo(target ...int) objectiveFunc {
	return func(c Configuration) (float64, Termination) {
		sum := 0.0
		for i, v := range c {
			d := float64(v - target[i])
			sum += d * d
		}
		return sum, TerminationOptimal
	}
}

func constantObjective(v float64) objectiveFunc {
	return func(Configuration) (float64, Termination) {
		return v, TerminationLocallyOptimal
	}
}

func alwaysInfeasible(Configuration) (float64, Termination) {
	return 0, TerminationInfeasible
}

// fakeOracle evaluates fn and advances the clock by step on every call.
type fakeOracle struct {
	fn       objectiveFunc
	clock    *fakeClock
	step     time.Duration
	calls    []Configuration
	limits   []SolveLimits
	warmed   []bool
	panicAt  int
	failWith error
	onSolve  func(n int)
}

func (o *fakeOracle) Solve(_ context.Context, problem Problem, limits SolveLimits) (SolveOutcome, error) {
	var p *fakeProblem
	switch v := problem.(type) {
	case *fakeProblem:
		p = v
	case *propagatingProblem:
		p = &v.fakeProblem
	default:
		return SolveOutcome{}, fmt.Errorf("unexpected problem type %T", problem)
	}
	o.calls = append(o.calls, p.config.Clone())
	o.limits = append(o.limits, limits)
	o.warmed = append(o.warmed, p.warm != nil)
	n := len(o.calls)
	if o.onSolve != nil {
		o.onSolve(n)
	}
	if o.clock != nil {
		o.clock.Advance(o.step)
	}
	if o.panicAt == n {
		panic("solver exploded")
	}
	if o.failWith != nil {
		return SolveOutcome{SolverTime: o.step}, o.failWith
	}
	obj, term := o.fn(p.config)
	return SolveOutcome{
		Objective:   obj,
		Termination: term,
		SolverTime:  o.step,
		Solution:    Solution{Values: map[string]float64{"x": obj}},
	}, nil
}

// mapStore is an in-memory WarmStartStore with sequential handles.
type mapStore struct {
	mu    sync.Mutex
	items map[Handle]Solution
	saves int
	fail  error
}

func newMapStore() *mapStore {
	return &mapStore{items: make(map[Handle]Solution)}
}

func (s *mapStore) Save(sol Solution) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.saves++
	h := Handle(fmt.Sprintf("ws-%d", s.saves))
	s.items[h] = sol
	return h, nil
}

func (s *mapStore) Load(h Handle) (Solution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sol, ok := s.items[h]
	if !ok {
		return Solution{}, fmt.Errorf("unknown handle %q", h)
	}
	return sol, nil
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	evaluated []EvaluationEvent
	skipped   []SkipEvent
	moved     []MoveEvent
	finished  *RunResult
}

func (o *recordingObserver) Evaluated(ev EvaluationEvent) { o.evaluated = append(o.evaluated, ev) }
func (o *recordingObserver) Skipped(ev SkipEvent)         { o.skipped = append(o.skipped, ev) }
func (o *recordingObserver) Moved(ev MoveEvent)           { o.moved = append(o.moved, ev) }
func (o *recordingObserver) Finished(r *RunResult)        { o.finished = r }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func configs(points ...[]int) []Configuration {
	out := make([]Configuration, len(points))
	for i, p := range points {
		out[i] = Configuration(p)
	}
	return out
}

func posInf() float64 {
	return math.Inf(1)
}
