package opt

import (
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	best, cost := optimizer.Run(sphere, lower, upper, dim)

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterHeterogeneousBounds(t *testing.T) {
	optimizer := NewMayfly(100, 20, 7)

	lower := []float64{0, -50}
	upper := []float64{5, -30}
	shifted := func(x []float64) float64 {
		return (x[0]-3)*(x[0]-3) + (x[1]+40)*(x[1]+40)
	}

	best, cost := optimizer.Run(shifted, lower, upper, 2)

	for i := range best {
		if best[i] < lower[i] || best[i] > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, best[i], lower[i], upper[i])
		}
	}
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f (best %v)", cost, best)
	}
	if got := shifted(best); math.Abs(got-cost) > 1e-9 {
		t.Errorf("Reported cost %f does not match position cost %f", cost, got)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	dim := 2
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// popSize must be >=20 for mayfly v0.1.0
	optimizer1 := NewMayfly(50, 20, 123)
	_, cost1 := optimizer1.Run(sphere, lower, upper, dim)

	optimizer2 := NewMayfly(50, 20, 123)
	_, cost2 := optimizer2.Run(sphere, lower, upper, dim)

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestUnitBox(t *testing.T) {
	box := newUnitBox([]float64{0, 10}, []float64{4, 20}, 2)

	got := box.denormalize([]float64{0.25, 1})
	if got[0] != 1 || got[1] != 20 {
		t.Errorf("denormalize = %v, want [1 20]", got)
	}

	got = box.denormalize([]float64{-3, 7})
	if got[0] != 0 || got[1] != 20 {
		t.Errorf("denormalize did not clamp: %v", got)
	}

	got = box.denormalize(box.center())
	if got[0] != 2 || got[1] != 15 {
		t.Errorf("center = %v, want [2 15]", got)
	}
}

func TestUnitBoxShortBounds(t *testing.T) {
	box := newUnitBox([]float64{-1}, []float64{1}, 3)
	got := box.denormalize([]float64{1, 0, 0.5})
	want := []float64{1, -1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("denormalize[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}
