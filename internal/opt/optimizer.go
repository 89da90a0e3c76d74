package opt

// Optimizer minimizes a continuous function over a box.
type Optimizer interface {
	// Run minimizes eval over [lower, upper] in dim dimensions and returns
	// the best point and its cost. Bounds are per dimension.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
