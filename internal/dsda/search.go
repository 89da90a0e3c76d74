package dsda

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// budget tracks the wall-clock time of one run.
type budget struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

func (b budget) elapsed() time.Duration {
	return b.now().Sub(b.start)
}

func (b budget) exceeded() bool {
	return b.elapsed() > b.limit
}

func (b budget) remaining() time.Duration {
	return b.limit - b.elapsed()
}

// run is the mutable state of one Solve call. The evaluated set and the
// route are created in INIT and dropped when the run returns.
type run struct {
	ctx          context.Context
	cfg          SearchConfig
	eval         *Evaluator
	bounds       Bounds
	neighborhood Neighborhood
	evaluated    *EvaluatedSet
	route        Route
	budget       budget
	observer     Observer
	logger       *slog.Logger

	userTime    time.Duration
	evaluations int
	memoHits    int
	iterations  int
	timedOut    bool
	cancelled   bool
}

// checkpoint polls the time budget and the context. It returns true when the
// run must terminate.
func (r *run) checkpoint() bool {
	if r.ctx.Err() != nil {
		r.cancelled = true
		return true
	}
	if r.budget.exceeded() {
		r.timedOut = true
		return true
	}
	return false
}

// evaluate runs one evaluation and records it in the run state.
func (r *run) evaluate(c Configuration, warm Handle) EvaluationResult {
	res := r.eval.Evaluate(r.ctx, c, warm, r.budget.remaining())
	r.evaluated.Add(c)
	r.evaluations++
	r.userTime += res.SolverTime
	return res
}

func (r *run) skip(phase Phase, c Configuration) {
	r.memoHits++
	r.observer.Skipped(SkipEvent{Phase: phase, Configuration: c.Clone(), Elapsed: r.budget.elapsed()})
}

func (r *run) appendRoute(phase Phase, c Configuration, objective float64, dirID int) {
	r.route = append(r.route, c.Clone())
	dir, _ := r.neighborhood.Direction(dirID)
	r.observer.Moved(MoveEvent{
		Phase:         phase,
		Configuration: c.Clone(),
		Objective:     objective,
		DirectionID:   dirID,
		Direction:     dir,
		RouteIndex:    len(r.route) - 1,
		Elapsed:       r.budget.elapsed(),
	})
}

func (r *run) logEvaluation(res EvaluationResult) {
	if res.Feasible() {
		r.logger.Info("Evaluated",
			"config", res.Configuration.String(),
			"objective", round(res.Objective, 5),
			"global_time", round(r.budget.elapsed().Seconds(), 2),
		)
		return
	}
	r.logger.Debug("Evaluated",
		"config", res.Configuration.String(),
		"status", res.Status.String(),
		"reason", res.Reason,
		"global_time", round(r.budget.elapsed().Seconds(), 2),
	)
}

// neighborSearchResult is the outcome of one neighbor search.
type neighborSearchResult struct {
	best        Configuration
	objective   float64
	directionID int
	improved    bool
	evaluated   []Configuration
	warmStart   Handle
}

// neighborSearch evaluates every candidate except id 0 in ascending id order
// and returns the best one. A feasible candidate replaces the incumbent when
// it passes the improvement test and is at least as far from the center as
// the previous replacement; ties in distance go to the later candidate.
func (r *run) neighborSearch(center Configuration, fmin float64, neighbors Neighbors, warm Handle) neighborSearchResult {
	out := neighborSearchResult{
		best:      center,
		objective: fmin,
		warmStart: warm,
	}
	bestDist := 0

	r.logger.Info("Neighbor search around", "config", center.String(), "candidates", len(neighbors)-1)

	for _, id := range neighbors.IDs() {
		if id == 0 {
			continue
		}
		candidate := neighbors[id]
		if r.evaluated.Contains(candidate) {
			r.skip(PhaseNeighbor, candidate)
			continue
		}

		res := r.evaluate(candidate, out.warmStart)
		out.evaluated = append(out.evaluated, candidate.Clone())

		accepted := false
		if res.Feasible() {
			dist := candidate.SquaredDistance(center)
			if r.cfg.accepts(res.Objective, out.objective) && dist >= bestDist {
				out.best = candidate.Clone()
				out.objective = res.Objective
				out.directionID = id
				out.improved = true
				if res.WarmStart != "" {
					out.warmStart = res.WarmStart
				}
				bestDist = dist
				accepted = true
			}
		}
		r.logEvaluation(res)
		r.observer.Evaluated(EvaluationEvent{
			Phase:       PhaseNeighbor,
			Result:      res,
			Elapsed:     r.budget.elapsed(),
			DirectionID: id,
			Accepted:    accepted,
		})

		if r.checkpoint() {
			break
		}
	}

	if out.improved {
		r.logger.Info("New best neighbor", "config", out.best.String(), "objective", round(out.objective, 5), "direction", out.directionID)
	}
	return out
}

// lineStepResult is the outcome of one line-search step.
type lineStepResult struct {
	point     Configuration
	objective float64
	moved     bool
	warmStart Handle
	result    *EvaluationResult
}

// lineStep applies the direction once. Out-of-bounds and already evaluated
// points stop the line search without an oracle call.
func (r *run) lineStep(point Configuration, objective float64, dirID int, warm Handle) lineStepResult {
	out := lineStepResult{point: point, objective: objective, warmStart: warm}

	dir, ok := r.neighborhood.Direction(dirID)
	if !ok {
		return out
	}
	candidate := point.Add(dir)
	if !r.bounds.Contains(candidate) {
		return out
	}
	if r.evaluated.Contains(candidate) {
		r.skip(PhaseLine, candidate)
		return out
	}

	res := r.evaluate(candidate, warm)
	out.result = &res
	if res.Feasible() && r.cfg.accepts(res.Objective, objective) {
		out.point = candidate
		out.objective = res.Objective
		out.moved = true
		if res.WarmStart != "" {
			out.warmStart = res.WarmStart
		}
	}
	r.logEvaluation(res)
	r.observer.Evaluated(EvaluationEvent{
		Phase:       PhaseLine,
		Result:      res,
		Elapsed:     r.budget.elapsed(),
		DirectionID: dirID,
		Accepted:    out.moved,
	})
	return out
}

func round(v float64, places int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
