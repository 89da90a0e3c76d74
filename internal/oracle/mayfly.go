package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/model"
	"github.com/cwbudde/dsdasolver/internal/opt"
)

// OptimizerFactory creates the optimizer for one round.
type OptimizerFactory func(maxIters, popSize int, seed int64) opt.Optimizer

// MayflyOracle solves *model.Subproblem instances with an exterior quadratic
// penalty f(x) + ρ·Σ max(0, g(x))² minimized by Mayfly.
type MayflyOracle struct {
	opts         Options
	newOptimizer OptimizerFactory
	now          func() time.Time
	logger       *slog.Logger
}

// NewMayflyOracle creates the oracle. A nil logger uses slog.Default().
func NewMayflyOracle(opts Options, logger *slog.Logger) (*MayflyOracle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MayflyOracle{
		opts: opts,
		newOptimizer: func(maxIters, popSize int, seed int64) opt.Optimizer {
			return opt.NewMayfly(maxIters, popSize, seed)
		},
		now:    time.Now,
		logger: logger,
	}, nil
}

// Options returns the settings in use.
func (o *MayflyOracle) Options() Options {
	return o.opts
}

// point is a candidate with its cached scores.
type point struct {
	x         []float64
	objective float64
	violation float64
}

func (o *MayflyOracle) score(sp *model.Subproblem, x []float64) point {
	return point{x: x, objective: sp.Objective(x), violation: sp.Violation(x)}
}

func (o *MayflyOracle) feasible(p point) bool {
	return p.violation <= o.opts.FeasibilityTol && !math.IsNaN(p.objective)
}

// better orders candidates feasible-first, then by objective among feasible
// points and by violation among infeasible ones.
func (o *MayflyOracle) better(a, b point) bool {
	fa, fb := o.feasible(a), o.feasible(b)
	switch {
	case fa && !fb:
		return true
	case !fa && fb:
		return false
	case fa && fb:
		return a.objective < b.objective
	default:
		return a.violation < b.violation
	}
}

// Solve runs up to Options.Rounds optimizer rounds until the time limit
// passes or a round improves the incumbent by less than the optimality gap.
// The start point (cold or warm) is the first incumbent. An infeasible round
// result is pulled back toward the incumbent along the segment between them
// until it is feasible.
func (o *MayflyOracle) Solve(ctx context.Context, problem dsda.Problem, limits dsda.SolveLimits) (dsda.SolveOutcome, error) {
	sp, ok := problem.(*model.Subproblem)
	if !ok {
		return dsda.SolveOutcome{}, fmt.Errorf("mayfly oracle cannot solve %T", problem)
	}
	if sp.Objective == nil {
		return dsda.SolveOutcome{}, fmt.Errorf("subproblem %s at %s has no objective", sp.Model, sp.Configuration)
	}

	start := o.now()
	deadline := start.Add(limits.TimeLimit)
	lower, upper := sp.Lower(), sp.Upper()
	dim := sp.Dimension()

	best := o.score(sp, sp.StartPoint())
	cutShort := limits.TimeLimit <= 0
	rounds := 0

	for r := 0; r < o.opts.Rounds && dim > 0 && !cutShort; r++ {
		if ctx.Err() != nil || (r > 0 && o.now().After(deadline)) {
			cutShort = true
			break
		}
		penalty := o.opts.Penalty * math.Pow(10, float64(r))
		penalized := func(x []float64) float64 {
			f := sp.Objective(x)
			for _, c := range sp.Constraints {
				if g := c.Func(x); g > 0 {
					f += penalty * g * g
				}
			}
			if math.IsNaN(f) {
				return math.Inf(1)
			}
			return f
		}

		x, _ := o.newOptimizer(o.opts.MaxIterations, o.opts.Population, o.opts.Seed+int64(r)).Run(penalized, lower, upper, dim)
		rounds++
		candidate := o.score(sp, x)
		if !o.feasible(candidate) && o.feasible(best) {
			candidate = o.repair(sp, best, candidate)
		}
		if !o.better(candidate, best) {
			if r > 0 {
				break
			}
			continue
		}
		prev := best
		best = candidate
		if r > 0 && o.feasible(prev) && relativeGain(prev.objective, best.objective) < limits.OptimalityGap {
			break
		}
	}

	elapsed := o.now().Sub(start)
	outcome := dsda.SolveOutcome{
		Objective:  best.objective,
		SolverTime: elapsed,
		Solution:   dsda.Solution{Values: sp.Values(best.x)},
	}
	switch {
	case math.IsNaN(best.objective) || math.IsInf(best.objective, 0):
		outcome.Termination = dsda.TerminationError
	case !o.feasible(best):
		outcome.Termination = dsda.TerminationInfeasible
	case cutShort || o.now().After(deadline):
		outcome.Termination = dsda.TerminationFeasibleTimeLimit
	default:
		outcome.Termination = dsda.TerminationLocallyOptimal
	}

	o.logger.Debug("Subproblem solved",
		"model", sp.Model,
		"config", sp.Configuration.String(),
		"termination", outcome.Termination.String(),
		"objective", best.objective,
		"violation", best.violation,
		"rounds", rounds,
		"warm", sp.Warm(),
		"elapsed", elapsed,
	)
	return outcome, nil
}

// repair bisects the segment from the feasible anchor toward target and
// returns the feasible point closest to target. With convex constraints the
// whole prefix of the segment is feasible.
func (o *MayflyOracle) repair(sp *model.Subproblem, anchor, target point) point {
	lo, hi := 0.0, 1.0
	found := anchor
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		p := o.score(sp, lerp(anchor.x, target.x, mid))
		if o.feasible(p) {
			lo = mid
			found = p
		} else {
			hi = mid
		}
	}
	return found
}

func lerp(a, b []float64, t float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + t*(b[i]-a[i])
	}
	return out
}

func relativeGain(prev, next float64) float64 {
	return (prev - next) / (math.Abs(prev) + 1e-10)
}
