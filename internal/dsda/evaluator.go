package dsda

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Status classifies a single subproblem evaluation.
type Status int

const (
	StatusOptimal Status = iota + 1
	StatusInfeasible
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// classify maps an oracle termination onto the three evaluation statuses.
func classify(t Termination) Status {
	switch t {
	case TerminationOptimal, TerminationLocallyOptimal, TerminationGloballyOptimal, TerminationFeasibleTimeLimit:
		return StatusOptimal
	case TerminationInfeasible:
		return StatusInfeasible
	default:
		return StatusError
	}
}

// EvaluationResult is the outcome of evaluating one configuration.
type EvaluationResult struct {
	Configuration Configuration `json:"configuration"`
	Objective     float64       `json:"objective"`
	Status        Status        `json:"status"`
	SolverTime    time.Duration `json:"solverTime"`
	// WarmStart is set only for optimal results whose solution was saved.
	WarmStart Handle `json:"warmStart,omitempty"`
	// Reason explains non-optimal results.
	Reason string `json:"reason,omitempty"`
	// Prechecked is true when bound propagation rejected the configuration.
	Prechecked bool `json:"prechecked,omitempty"`
}

// Feasible reports whether the result can take part in improvement tests.
func (r EvaluationResult) Feasible() bool {
	return r.Status == StatusOptimal
}

// Evaluator wraps one oracle call with reformulation, warm starting,
// feasibility pre-checking, timing and status classification.
type Evaluator struct {
	reformulator Reformulator
	oracle       Oracle
	store        WarmStartStore
	config       SearchConfig
	logger       *slog.Logger
}

// NewEvaluator creates an evaluator. store may be nil, in which case no
// warm starts are saved or loaded.
func NewEvaluator(reformulator Reformulator, oracle Oracle, store WarmStartStore, config SearchConfig, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		reformulator: reformulator,
		oracle:       oracle,
		store:        store,
		config:       config,
		logger:       logger,
	}
}

// Evaluate solves the subproblem at c. The oracle gets
// min(IterationTimeLimit, remaining) as its time limit. Failures never
// escape: they are reported as StatusError.
func (e *Evaluator) Evaluate(ctx context.Context, c Configuration, warm Handle, remaining time.Duration) EvaluationResult {
	result := EvaluationResult{
		Configuration: c.Clone(),
		Objective:     math.Inf(1),
	}

	problem, err := e.reformulator.Fix(c.Clone())
	if err != nil {
		result.Status = StatusError
		result.Reason = err.Error()
		e.logger.Warn("Reformulation failed", "config", c.String(), "error", err)
		return result
	}

	if warm != "" && e.store != nil {
		sol, err := e.store.Load(warm)
		if err != nil {
			e.logger.Warn("Failed to load warm start, solving cold", "config", c.String(), "handle", warm, "error", err)
		} else {
			problem.Initialize(sol)
		}
	}

	if p, ok := problem.(Propagator); ok {
		if err := p.Propagate(); err != nil {
			result.Status = StatusInfeasible
			result.Reason = err.Error()
			result.Prechecked = true
			e.logger.Debug("Bound propagation proved infeasibility", "config", c.String(), "reason", err)
			return result
		}
	}

	limit := e.config.IterationTimeLimit
	if remaining < limit {
		limit = remaining
	}
	if limit < 0 {
		limit = 0
	}

	outcome, err := e.solve(ctx, problem, SolveLimits{TimeLimit: limit, OptimalityGap: e.config.OptimalityGap})
	result.SolverTime = outcome.SolverTime
	if err != nil {
		result.Status = StatusError
		result.Reason = err.Error()
		e.logger.Warn("Oracle failed", "config", c.String(), "error", err)
		return result
	}

	result.Status = classify(outcome.Termination)
	if result.Status != StatusOptimal {
		result.Reason = outcome.Termination.String()
		return result
	}
	if math.IsNaN(outcome.Objective) {
		result.Status = StatusError
		result.Reason = "oracle returned NaN objective"
		return result
	}
	result.Objective = outcome.Objective

	if e.store != nil {
		sol := outcome.Solution
		sol.Configuration = c.Clone()
		sol.Objective = outcome.Objective
		handle, err := e.store.Save(sol)
		if err != nil {
			e.logger.Warn("Failed to save warm start", "config", c.String(), "error", err)
		} else {
			result.WarmStart = handle
		}
	}
	return result
}

// solve isolates the oracle call so a panicking oracle degrades to an error.
func (e *Evaluator) solve(ctx context.Context, problem Problem, limits SolveLimits) (outcome SolveOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle panic: %v", r)
		}
	}()
	return e.oracle.Solve(ctx, problem, limits)
}
