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

type solverFixture struct {
	oracle   *fakeOracle
	store    *mapStore
	clock    *fakeClock
	observer *recordingObserver
	solver   *Solver
}

func newSolverFixture(fn objectiveFunc, dim int, cfg SearchConfig) *solverFixture {
	f := &solverFixture{
		store:    newMapStore(),
		clock:    newFakeClock(),
		observer: &recordingObserver{},
	}
	f.oracle = &fakeOracle{fn: fn, clock: f.clock, step: time.Second}
	f.solver = NewSolver(fakeReformulator(dim), f.oracle, f.store,
		WithSearchConfig(cfg),
		WithObserver(f.observer),
		WithLogger(discardLogger()),
		WithClock(f.clock.Now),
	)
	return f
}

func k2Config() SearchConfig {
	cfg := DefaultSearchConfig()
	cfg.Topology = K2
	return cfg
}

func TestSolveLineSearchThenTurn(t *testing.T) {
	f := newSolverFixture(quadraticTo(5, 7), 2, k2Config())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, RunOptimal, res.Status)
	assert.Equal(t, Configuration{5, 7}, res.Final)
	assert.Equal(t, 0.0, res.Objective)
	assert.Equal(t, Route(configs(
		[]int{2, 2}, []int{2, 3}, []int{2, 4}, []int{2, 5}, []int{2, 6}, []int{2, 7},
		[]int{3, 7}, []int{4, 7}, []int{5, 7},
	)), res.Route)
	assert.Equal(t, 17, res.Evaluations)
	assert.Equal(t, 4, res.MemoHits)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 17*time.Second, res.UserTime)
	assert.Equal(t, 17*time.Second, res.WallTime)

	var objectives []float64
	for _, mv := range f.observer.moved {
		objectives = append(objectives, mv.Objective)
	}
	assert.Equal(t, []float64{34, 25, 18, 13, 10, 9, 4, 1, 0}, objectives)
	assert.Same(t, res, f.observer.finished)
}

func TestSolveRouteInvariants(t *testing.T) {
	f := newSolverFixture(quadraticTo(4, 4), 2, k2Config())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 6),
	})
	require.NoError(t, err)

	assert.Equal(t, Route(configs([]int{2, 2}, []int{2, 3}, []int{2, 4}, []int{3, 4}, []int{4, 4})), res.Route)
	assert.Equal(t, res.Route.Last(), res.Final)

	seen := make(map[string]bool)
	for _, c := range f.oracle.calls {
		assert.False(t, seen[c.Key()], "configuration %s solved twice", c)
		seen[c.Key()] = true
	}
	for _, c := range res.Route {
		assert.True(t, UniformBounds(2, 1, 6).Contains(c))
		assert.True(t, seen[c.Key()], "route entry %s never evaluated", c)
	}
	for i := 1; i < len(res.Route); i++ {
		diff := 0
		for j := range res.Route[i] {
			d := res.Route[i][j] - res.Route[i-1][j]
			assert.LessOrEqual(t, d*d, 1)
			diff += d * d
		}
		assert.Positive(t, diff)
	}
}

func TestSolveInfeasibleEverywhere(t *testing.T) {
	f := newSolverFixture(alwaysInfeasible, 2, DefaultSearchConfig())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 3),
	})
	require.NoError(t, err)

	assert.Equal(t, RunInfeasible, res.Status)
	assert.False(t, res.Feasible())
	assert.True(t, math.IsInf(res.Objective, 1))
	assert.Equal(t, Configuration{2, 2}, res.Final)
	assert.Equal(t, Route(configs([]int{2, 2})), res.Route)
	assert.Equal(t, 9, res.Evaluations)
	assert.Empty(t, res.WarmStart)
	assert.Nil(t, res.Solution)
	assert.NotNil(t, res.Problem)
}

func TestSolveInfeasibleStartRecovers(t *testing.T) {
	fn := func(c Configuration) (float64, Termination) {
		if c[0] == 1 {
			return 0, TerminationInfeasible
		}
		return float64(c[0]), TerminationOptimal
	}
	f := newSolverFixture(fn, 1, k2Config())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{1},
		Bounds: UniformBounds(1, 1, 4),
	})
	require.NoError(t, err)

	assert.Equal(t, RunOptimal, res.Status)
	assert.Equal(t, Configuration{2}, res.Final)
	assert.Equal(t, 2.0, res.Objective)
}

func TestSolvePrefersFarthestNeighbor(t *testing.T) {
	f := newSolverFixture(constantObjective(1), 2, DefaultSearchConfig())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{1, 1},
		Bounds: UniformBounds(2, 0, 2),
	})
	require.NoError(t, err)

	// all eight neighbors tie; the last diagonal wins on distance
	assert.Equal(t, Route(configs([]int{1, 1}, []int{2, 2})), res.Route)
	assert.Equal(t, RunOptimal, res.Status)
	assert.Equal(t, 9, res.Evaluations)
	assert.Equal(t, 3, res.MemoHits)
	require.NotEmpty(t, f.observer.moved)
	assert.Equal(t, Direction{1, 1}, f.observer.moved[1].Direction)
	assert.Equal(t, 8, f.observer.moved[1].DirectionID)
}

func TestSolveTimeLimit(t *testing.T) {
	cfg := k2Config()
	cfg.TimeLimit = 3 * time.Second
	f := newSolverFixture(quadraticTo(5, 7), 2, cfg)

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, RunTimeLimit, res.Status)
	assert.Equal(t, Route(configs([]int{2, 2}, []int{2, 3})), res.Route)
	assert.Equal(t, Configuration{2, 3}, res.Final)
	assert.Equal(t, 25.0, res.Objective)
	assert.Equal(t, 4, res.Evaluations)

	// the oracle never gets more than what is left of the run
	require.Len(t, f.oracle.limits, 4)
	assert.Equal(t, 3*time.Second, f.oracle.limits[0].TimeLimit)
	assert.Equal(t, time.Duration(0), f.oracle.limits[3].TimeLimit)
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newSolverFixture(quadraticTo(5, 7), 2, k2Config())
	f.oracle.onSolve = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	res, err := f.solver.Solve(ctx, Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, RunCancelled, res.Status)
	assert.Equal(t, 3, res.Evaluations)
	assert.Equal(t, Configuration{2, 3}, res.Final)
}

func TestSolveWarmStartChain(t *testing.T) {
	f := newSolverFixture(quadraticTo(3), 1, k2Config())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{1},
		Bounds: UniformBounds(1, 0, 5),
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.WarmStart)
	require.NotNil(t, res.Solution)
	assert.Equal(t, Configuration{3}, res.Solution.Configuration)
	assert.Equal(t, 0.0, res.Solution.Objective)

	p, ok := res.Problem.(*fakeProblem)
	require.True(t, ok)
	assert.Equal(t, Configuration{3}, p.config)
	require.NotNil(t, p.warm)
	assert.Equal(t, Configuration{3}, p.warm.Configuration)

	// the first call is cold, every later one is seeded
	assert.False(t, f.oracle.warmed[0])
	for i := 1; i < len(f.oracle.warmed); i++ {
		assert.True(t, f.oracle.warmed[i], "call %d", i)
	}
}

func TestSolveConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"length mismatch", Request{Start: Configuration{1}, Bounds: UniformBounds(2, 0, 3)}},
		{"start outside bounds", Request{Start: Configuration{5, 1}, Bounds: UniformBounds(2, 0, 3)}},
		{"inverted bounds", Request{Start: Configuration{1, 1}, Bounds: NewBounds([]int{0, 3}, []int{3, 0})}},
		{"empty bounds", Request{Start: Configuration{}, Bounds: Bounds{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSolverFixture(quadraticTo(0, 0), 2, DefaultSearchConfig())
			res, err := f.solver.Solve(context.Background(), tt.req)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrConfiguration), "got %v", err)
			assert.Empty(t, f.oracle.calls)
		})
	}
}

func TestSolveInvalidTopology(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.Topology = Topology(9)
	f := newSolverFixture(quadraticTo(0), 1, cfg)

	_, err := f.solver.Solve(context.Background(), Request{Start: Configuration{0}, Bounds: UniformBounds(1, 0, 1)})
	assert.True(t, errors.Is(err, ErrInvalidTopology))
	assert.Empty(t, f.oracle.calls)
}

func TestSolveSingletonBounds(t *testing.T) {
	f := newSolverFixture(quadraticTo(0, 0), 2, DefaultSearchConfig())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{1, 1},
		Bounds: UniformBounds(2, 1, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, RunOptimal, res.Status)
	assert.Equal(t, 1, res.Evaluations)
	assert.Equal(t, Route(configs([]int{1, 1})), res.Route)
}

func TestSolveObserverEvents(t *testing.T) {
	f := newSolverFixture(quadraticTo(4, 4), 2, k2Config())

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{2, 2},
		Bounds: UniformBounds(2, 1, 6),
	})
	require.NoError(t, err)

	assert.Len(t, f.observer.evaluated, res.Evaluations)
	assert.Len(t, f.observer.skipped, res.MemoHits)
	assert.Len(t, f.observer.moved, len(res.Route))
	assert.Equal(t, PhaseInit, f.observer.evaluated[0].Phase)
	for i, mv := range f.observer.moved {
		assert.Equal(t, i, mv.RouteIndex)
	}
	assert.Equal(t, PhaseNeighbor, f.observer.moved[1].Phase)
	assert.Equal(t, PhaseLine, f.observer.moved[2].Phase)
}

func kInfConfig() SearchConfig {
	cfg := DefaultSearchConfig()
	cfg.Topology = KInfinity
	return cfg
}

func assertStrictDescent(t *testing.T, moves []MoveEvent) {
	t.Helper()
	for i := 1; i < len(moves); i++ {
		assert.Less(t, moves[i].Objective, moves[i-1].Objective, "route entry %d does not improve", i)
	}
}

func TestSolveInteriorOptimum(t *testing.T) {
	tests := []struct {
		name        string
		cfg         SearchConfig
		route       Route
		evaluations int
	}{
		{
			name: "K2",
			cfg:  k2Config(),
			route: Route(configs(
				[]int{2, 2}, []int{2, 3}, []int{2, 4}, []int{2, 5}, []int{2, 6}, []int{2, 7},
				[]int{3, 7}, []int{4, 7}, []int{5, 7},
			)),
			evaluations: 14,
		},
		{
			name:        "KInfinity",
			cfg:         kInfConfig(),
			route:       Route(configs([]int{2, 2}, []int{3, 3}, []int{4, 4}, []int{5, 5}, []int{6, 6}, []int{5, 7})),
			evaluations: 19,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSolverFixture(quadraticTo(5, 7), 2, tt.cfg)

			res, err := f.solver.Solve(context.Background(), Request{
				Start:  Configuration{2, 2},
				Bounds: UniformBounds(2, 2, 10),
			})
			require.NoError(t, err)

			assert.Equal(t, RunOptimal, res.Status)
			assert.Equal(t, Configuration{5, 7}, res.Final)
			assert.Equal(t, 0.0, res.Objective)
			assert.Equal(t, tt.route, res.Route)
			assert.Equal(t, tt.evaluations, res.Evaluations)
			assertStrictDescent(t, f.observer.moved)
		})
	}
}

func TestSolveOptimumOutsideBounds(t *testing.T) {
	tests := []struct {
		name  string
		cfg   SearchConfig
		route Route
	}{
		{
			name:  "K2",
			cfg:   k2Config(),
			route: Route(configs([]int{2, 2}, []int{2, 3}, []int{2, 4}, []int{3, 4}, []int{4, 4})),
		},
		{
			name:  "KInfinity",
			cfg:   kInfConfig(),
			route: Route(configs([]int{2, 2}, []int{3, 3}, []int{4, 4})),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSolverFixture(quadraticTo(5, 7), 2, tt.cfg)
			bounds := UniformBounds(2, 2, 4)

			res, err := f.solver.Solve(context.Background(), Request{
				Start:  Configuration{2, 2},
				Bounds: bounds,
			})
			require.NoError(t, err)

			assert.Equal(t, RunOptimal, res.Status)
			assert.Equal(t, Configuration{4, 4}, res.Final)
			assert.Equal(t, 10.0, res.Objective)
			assert.Equal(t, tt.route, res.Route)
			for _, c := range f.oracle.calls {
				assert.True(t, bounds.Contains(c), "oracle called outside the bounds at %s", c)
			}
			assertStrictDescent(t, f.observer.moved)
		})
	}
}

func TestSolveCancelledDuringNeighborSearchAtOptimum(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newSolverFixture(quadraticTo(5, 7), 2, k2Config())
	f.oracle.onSolve = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	res, err := f.solver.Solve(ctx, Request{
		Start:  Configuration{5, 7},
		Bounds: UniformBounds(2, 1, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, RunCancelled, res.Status)
	assert.Equal(t, 2, res.Evaluations)
	assert.Equal(t, Configuration{5, 7}, res.Final)
	assert.Equal(t, Route(configs([]int{5, 7})), res.Route)
	assert.Equal(t, RunCancelled, f.observer.finished.Status)
}

func TestSolveTimeLimitDuringNeighborSearchAtOptimum(t *testing.T) {
	cfg := k2Config()
	cfg.TimeLimit = 2 * time.Second
	f := newSolverFixture(quadraticTo(5, 7), 2, cfg)

	res, err := f.solver.Solve(context.Background(), Request{
		Start:  Configuration{5, 7},
		Bounds: UniformBounds(2, 1, 10),
	})
	require.NoError(t, err)

	assert.Equal(t, RunTimeLimit, res.Status)
	assert.Equal(t, 3, res.Evaluations)
	assert.Equal(t, Configuration{5, 7}, res.Final)
}
