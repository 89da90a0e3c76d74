package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the Mayfly library as an Optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a Mayfly optimizer. popSize must be at least 20.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes Mayfly on the unit box and maps every candidate back onto
// [lower, upper]. The library only takes scalar bounds, so heterogeneous
// boxes are normalized per dimension.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	box := newUnitBox(lower, upper, dim)

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		return eval(box.denormalize(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// fall back to the box center
		center := box.denormalize(box.center())
		return center, eval(center)
	}

	best := box.denormalize(result.GlobalBest.Position)
	return best, result.GlobalBest.Cost
}

// unitBox maps [0,1]^dim onto [lower, upper].
type unitBox struct {
	lower []float64
	width []float64
}

func newUnitBox(lower, upper []float64, dim int) unitBox {
	b := unitBox{lower: make([]float64, dim), width: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		lo, hi := boundAt(lower, i), boundAt(upper, i)
		if hi < lo {
			lo, hi = hi, lo
		}
		b.lower[i] = lo
		b.width[i] = hi - lo
	}
	return b
}

// boundAt returns b[i], reusing the last entry for short slices.
func boundAt(b []float64, i int) float64 {
	if len(b) == 0 {
		return 0
	}
	if i >= len(b) {
		return b[len(b)-1]
	}
	return b[i]
}

func (b unitBox) denormalize(u []float64) []float64 {
	x := make([]float64, len(b.lower))
	for i := range x {
		v := 0.5
		if i < len(u) {
			v = clamp01(u[i])
		}
		x[i] = b.lower[i] + v*b.width[i]
	}
	return x
}

func (b unitBox) center() []float64 {
	u := make([]float64, len(b.lower))
	for i := range u {
		u[i] = 0.5
	}
	return u
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
