package dsda

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	// RunOptimal means the search stopped at a local optimum of the neighborhood.
	RunOptimal RunStatus = "optimal"
	// RunTimeLimit means the time budget ran out; the best point so far is returned.
	RunTimeLimit RunStatus = "time_limit"
	// RunInfeasible means no evaluated configuration was feasible.
	RunInfeasible RunStatus = "infeasible"
	// RunCancelled means the context was cancelled; the best point so far is returned.
	RunCancelled RunStatus = "cancelled"
)

// RunResult is the outcome of a D-SDA run.
type RunResult struct {
	Final     Configuration
	Objective float64 // +Inf when no feasible configuration was found
	Route     Route
	WallTime  time.Duration
	// UserTime is the sum of oracle solve times.
	UserTime    time.Duration
	Status      RunStatus
	Evaluations int
	MemoHits    int
	// Iterations counts neighbor searches.
	Iterations int
	Topology   Topology
	WarmStart  Handle

	// Problem is the model re-fixed at Final and initialized from WarmStart.
	Problem Problem
	// Solution is the state loaded from WarmStart, nil without a warm start.
	Solution *Solution
}

// Feasible reports whether the run found at least one feasible configuration.
func (r *RunResult) Feasible() bool {
	return !math.IsInf(r.Objective, 1)
}

// Request describes one run.
type Request struct {
	Start  Configuration
	Bounds Bounds
	// WarmStart optionally initializes the first evaluation from a known
	// feasible state.
	WarmStart Handle
}

// Solver runs the Discrete-Steepest-Descent Algorithm.
type Solver struct {
	reformulator Reformulator
	oracle       Oracle
	store        WarmStartStore
	config       SearchConfig
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Solver.
type Option func(*Solver)

// WithSearchConfig replaces the default search configuration.
func WithSearchConfig(cfg SearchConfig) Option {
	return func(s *Solver) {
		s.config = cfg
	}
}

// WithObserver registers an observer for run events.
func WithObserver(o Observer) Option {
	return func(s *Solver) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Solver) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSolver creates a solver. store may be nil to disable warm starts.
func NewSolver(reformulator Reformulator, oracle Oracle, store WarmStartStore, opts ...Option) *Solver {
	s := &Solver{
		reformulator: reformulator,
		oracle:       oracle,
		store:        store,
		config:       DefaultSearchConfig(),
		observer:     NopObserver{},
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the search configuration in use.
func (s *Solver) Config() SearchConfig {
	return s.config
}

// Solve runs D-SDA from req.Start. Malformed input fails before any oracle
// call; everything after INIT degrades gracefully and returns the best point
// found together with the terminal status.
func (s *Solver) Solve(ctx context.Context, req Request) (*RunResult, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if err := req.Bounds.Validate(); err != nil {
		return nil, err
	}
	dim := req.Bounds.Dimension()
	if len(req.Start) != dim {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("starting configuration has %d components, model declares %d external variables", len(req.Start), dim),
		}
	}
	if !req.Bounds.Contains(req.Start) {
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("starting configuration %s lies outside the bounds", req.Start),
		}
	}
	neighborhood, err := GenerateNeighborhood(s.config.Topology, dim)
	if err != nil {
		return nil, err
	}

	r := &run{
		ctx:          ctx,
		cfg:          s.config,
		eval:         NewEvaluator(s.reformulator, s.oracle, s.store, s.config, s.logger),
		bounds:       req.Bounds,
		neighborhood: neighborhood,
		evaluated:    NewEvaluatedSet(),
		budget:       budget{start: s.now(), limit: s.config.TimeLimit, now: s.now},
		observer:     s.observer,
		logger:       s.logger,
	}

	s.logger.Info("Starting D-SDA", "k", s.config.Topology.String(), "start", req.Start.String(), "neighbors", neighborhood.Len())

	// INIT
	current := req.Start.Clone()
	initRes := r.evaluate(current, req.WarmStart)
	fmin := math.Inf(1)
	warm := req.WarmStart
	if initRes.Feasible() {
		fmin = initRes.Objective
		if initRes.WarmStart != "" {
			warm = initRes.WarmStart
		}
	}
	r.logEvaluation(initRes)
	r.observer.Evaluated(EvaluationEvent{Phase: PhaseInit, Result: initRes, Elapsed: r.budget.elapsed(), Accepted: initRes.Feasible()})
	r.appendRoute(PhaseInit, current, fmin, 0)

	for {
		if r.checkpoint() {
			break
		}
		neighbors := EnumerateNeighbors(current, neighborhood, req.Bounds)
		if r.checkpoint() {
			break
		}

		r.iterations++
		ns := r.neighborSearch(current, fmin, neighbors, warm)
		if r.cancelled || r.timedOut {
			if ns.improved {
				current, fmin, warm = ns.best, ns.objective, ns.warmStart
				r.appendRoute(PhaseNeighbor, current, fmin, ns.directionID)
			}
			break
		}
		if !ns.improved {
			break
		}
		current, fmin, warm = ns.best, ns.objective, ns.warmStart
		r.appendRoute(PhaseNeighbor, current, fmin, ns.directionID)

		dir, _ := neighborhood.Direction(ns.directionID)
		r.logger.Info("Line search in direction", "direction", dir.String())
		for {
			if r.checkpoint() {
				break
			}
			ls := r.lineStep(current, fmin, ns.directionID, warm)
			if !ls.moved {
				break
			}
			current, fmin, warm = ls.point, ls.objective, ls.warmStart
			r.appendRoute(PhaseLine, current, fmin, ns.directionID)
		}
		r.logger.Info("New best point", "config", current.String(), "objective", round(fmin, 5))
	}

	result := &RunResult{
		Final:       current.Clone(),
		Objective:   fmin,
		Route:       r.route.Clone(),
		WallTime:    r.budget.elapsed(),
		UserTime:    r.userTime,
		Evaluations: r.evaluations,
		MemoHits:    r.memoHits,
		Iterations:  r.iterations,
		Topology:    s.config.Topology,
		WarmStart:   warm,
	}
	switch {
	case r.cancelled:
		result.Status = RunCancelled
	case r.timedOut || result.WallTime > s.config.TimeLimit:
		result.Status = RunTimeLimit
	case !result.Feasible():
		result.Status = RunInfeasible
	default:
		result.Status = RunOptimal
	}

	s.materialize(result)

	s.logger.Info("D-SDA finished",
		"status", string(result.Status),
		"objective", round(result.Objective, 5),
		"external_variables", result.Final.String(),
		"execution_time_s", round(result.WallTime.Seconds(), 2),
		"user_time_s", round(result.UserTime.Seconds(), 5),
		"evaluations", result.Evaluations,
		"memo_hits", result.MemoHits,
	)
	r.observer.Finished(result)
	return result, nil
}

// materialize rebuilds the final model at the best configuration and seeds it
// from the best warm start. Failures are logged; the result stays valid.
func (s *Solver) materialize(result *RunResult) {
	problem, err := s.reformulator.Fix(result.Final.Clone())
	if err != nil {
		s.logger.Warn("Failed to rebuild final model", "config", result.Final.String(), "error", err)
		return
	}
	result.Problem = problem
	if result.WarmStart == "" || s.store == nil {
		return
	}
	sol, err := s.store.Load(result.WarmStart)
	if err != nil {
		s.logger.Warn("Failed to load final warm start", "handle", result.WarmStart, "error", err)
		return
	}
	problem.Initialize(sol)
	result.Solution = &sol
}
