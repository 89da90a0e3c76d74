package dsda

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(oracle Oracle, store WarmStartStore, dim int) *Evaluator {
	return NewEvaluator(fakeReformulator(dim), oracle, store, DefaultSearchConfig(), discardLogger())
}

func TestClassify(t *testing.T) {
	tests := map[Termination]Status{
		TerminationOptimal:           StatusOptimal,
		TerminationLocallyOptimal:    StatusOptimal,
		TerminationGloballyOptimal:   StatusOptimal,
		TerminationFeasibleTimeLimit: StatusOptimal,
		TerminationInfeasible:        StatusInfeasible,
		TerminationError:             StatusError,
		TerminationUnknown:           StatusError,
	}
	for term, want := range tests {
		assert.Equal(t, want, classify(term), term.String())
	}
}

func TestEvaluateOptimalSavesWarmStart(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0, 0), step: time.Millisecond}
	store := newMapStore()
	ev := newTestEvaluator(oracle, store, 2)

	res := ev.Evaluate(context.Background(), Configuration{1, 2}, "", time.Minute)
	require.Equal(t, StatusOptimal, res.Status)
	assert.True(t, res.Feasible())
	assert.Equal(t, 5.0, res.Objective)
	assert.Equal(t, time.Millisecond, res.SolverTime)
	require.NotEmpty(t, res.WarmStart)

	sol, err := store.Load(res.WarmStart)
	require.NoError(t, err)
	assert.Equal(t, Configuration{1, 2}, sol.Configuration)
	assert.Equal(t, 5.0, sol.Objective)
}

func TestEvaluateLoadsWarmStart(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0)}
	store := newMapStore()
	handle, err := store.Save(Solution{Configuration: Configuration{1}, Objective: 1})
	require.NoError(t, err)
	ev := newTestEvaluator(oracle, store, 1)

	ev.Evaluate(context.Background(), Configuration{2}, handle, time.Minute)
	ev.Evaluate(context.Background(), Configuration{3}, "missing", time.Minute)
	ev.Evaluate(context.Background(), Configuration{4}, "", time.Minute)

	assert.Equal(t, []bool{true, false, false}, oracle.warmed)
}

func TestEvaluateInfeasible(t *testing.T) {
	store := newMapStore()
	ev := newTestEvaluator(&fakeOracle{fn: alwaysInfeasible}, store, 1)

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusInfeasible, res.Status)
	assert.True(t, math.IsInf(res.Objective, 1))
	assert.Empty(t, res.WarmStart)
	assert.Equal(t, 0, store.saves)
}

func TestEvaluatePrecheckSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0)}
	reform := ReformulatorFunc(func(c Configuration) (Problem, error) {
		return &propagatingProblem{fakeProblem: fakeProblem{config: c}, err: errors.New("x <= -1 contradicts x >= 0")}, nil
	})
	ev := NewEvaluator(reform, oracle, nil, DefaultSearchConfig(), discardLogger())

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusInfeasible, res.Status)
	assert.True(t, res.Prechecked)
	assert.Contains(t, res.Reason, "contradicts")
	assert.Empty(t, oracle.calls)
}

func TestEvaluatePropagationPassesThrough(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0)}
	reform := ReformulatorFunc(func(c Configuration) (Problem, error) {
		return &propagatingProblem{fakeProblem: fakeProblem{config: c}}, nil
	})
	ev := NewEvaluator(reform, oracle, nil, DefaultSearchConfig(), discardLogger())

	res := ev.Evaluate(context.Background(), Configuration{2}, "", time.Minute)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Len(t, oracle.calls, 1)
}

func TestEvaluateRecoversOraclePanic(t *testing.T) {
	ev := newTestEvaluator(&fakeOracle{fn: quadraticTo(0), panicAt: 1}, nil, 1)

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Reason, "solver exploded")
	assert.False(t, res.Feasible())
}

func TestEvaluateOracleError(t *testing.T) {
	ev := newTestEvaluator(&fakeOracle{failWith: errors.New("license expired")}, nil, 1)

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "license expired", res.Reason)
}

func TestEvaluateReformulationError(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0)}
	ev := newTestEvaluator(oracle, nil, 2)

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, oracle.calls)
}

func TestEvaluateNaNObjective(t *testing.T) {
	nan := func(Configuration) (float64, Termination) { return math.NaN(), TerminationOptimal }
	ev := newTestEvaluator(&fakeOracle{fn: nan}, nil, 1)

	res := ev.Evaluate(context.Background(), Configuration{1}, "", time.Minute)
	assert.Equal(t, StatusError, res.Status)
}

func TestEvaluateTimeLimit(t *testing.T) {
	oracle := &fakeOracle{fn: quadraticTo(0)}
	ev := newTestEvaluator(oracle, nil, 1)

	ev.Evaluate(context.Background(), Configuration{1}, "", time.Hour)
	ev.Evaluate(context.Background(), Configuration{1}, "", 3*time.Second)
	ev.Evaluate(context.Background(), Configuration{1}, "", -time.Second)

	require.Len(t, oracle.limits, 3)
	assert.Equal(t, 10*time.Second, oracle.limits[0].TimeLimit)
	assert.Equal(t, 3*time.Second, oracle.limits[1].TimeLimit)
	assert.Equal(t, time.Duration(0), oracle.limits[2].TimeLimit)
	assert.Equal(t, 1e-3, oracle.limits[0].OptimalityGap)
}

func TestEvaluateSaveFailureKeepsResult(t *testing.T) {
	store := newMapStore()
	store.fail = errors.New("disk full")
	ev := newTestEvaluator(&fakeOracle{fn: quadraticTo(0)}, store, 1)

	res := ev.Evaluate(context.Background(), Configuration{2}, "", time.Minute)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, 4.0, res.Objective)
	assert.Empty(t, res.WarmStart)
}
