package dsda

import (
	"context"
	"time"
)

// Handle is an opaque warm-start token issued by a WarmStartStore.
// The empty handle means "no warm start".
type Handle string

// Solution is the continuous state of a solved subproblem.
type Solution struct {
	Configuration Configuration      `json:"configuration"`
	Objective     float64            `json:"objective"`
	Values        map[string]float64 `json:"values"`
}

// Problem is a model whose discrete structure has been fixed to one
// configuration. Only the oracle knows its concrete type.
type Problem interface {
	// Initialize seeds the continuous variables from a previously solved state.
	Initialize(Solution)
}

// Propagator is implemented by problems that can prove infeasibility from
// bounds alone, before the oracle runs.
type Propagator interface {
	Propagate() error
}

// Reformulator fixes a configuration onto the base model.
type Reformulator interface {
	// Fix returns the fixed problem. A configuration whose length does not
	// match the model fails with *ReformulationError.
	Fix(Configuration) (Problem, error)
}

// ReformulatorFunc adapts a function to Reformulator.
type ReformulatorFunc func(Configuration) (Problem, error)

// Fix calls f(c).
func (f ReformulatorFunc) Fix(c Configuration) (Problem, error) {
	return f(c)
}

// Termination is the raw outcome reported by an oracle.
type Termination int

const (
	TerminationUnknown Termination = iota
	TerminationOptimal
	TerminationLocallyOptimal
	TerminationGloballyOptimal
	// TerminationFeasibleTimeLimit means the deadline hit but the point is feasible.
	TerminationFeasibleTimeLimit
	TerminationInfeasible
	TerminationError
)

func (t Termination) String() string {
	switch t {
	case TerminationOptimal:
		return "optimal"
	case TerminationLocallyOptimal:
		return "locallyOptimal"
	case TerminationGloballyOptimal:
		return "globallyOptimal"
	case TerminationFeasibleTimeLimit:
		return "maxTimeLimit"
	case TerminationInfeasible:
		return "infeasible"
	case TerminationError:
		return "error"
	default:
		return "unknown"
	}
}

// SolveLimits bounds one oracle call.
type SolveLimits struct {
	// TimeLimit is a soft deadline for the call.
	TimeLimit time.Duration
	// OptimalityGap is the relative gap the oracle may stop at.
	OptimalityGap float64
}

// SolveOutcome is what an oracle reports for one fixed problem.
type SolveOutcome struct {
	Objective   float64
	Termination Termination
	SolverTime  time.Duration
	// Solution is persisted as a warm start when the outcome is feasible.
	Solution Solution
}

// Oracle solves fixed continuous subproblems.
type Oracle interface {
	Solve(ctx context.Context, problem Problem, limits SolveLimits) (SolveOutcome, error)
}

// WarmStartStore persists solved states behind opaque handles. Saved states
// are never modified.
type WarmStartStore interface {
	Save(Solution) (Handle, error)
	Load(Handle) (Solution, error)
}
