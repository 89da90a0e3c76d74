package model

import (
	"fmt"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// Quadratic is a separable lattice paraboloid with one continuous slack per
// external variable:
//
//	f(x, y) = Σ (x_j - c_j)² + Σ (y_j - x_j/2)²
//
// The slack term vanishes at the continuous optimum, so the discrete optimum
// is x = c with objective 0. Configurations whose components sum above
// MaxSum (when positive) are infeasible.
type Quadratic struct {
	Centers []int
	Lower   int
	Upper   int
	MaxSum  int
	Start   dsda.Configuration
}

// NewQuadratic creates a paraboloid centered at centers over [lower, upper]^n.
func NewQuadratic(centers []int, lower, upper int) *Quadratic {
	return &Quadratic{
		Centers: append([]int(nil), centers...),
		Lower:   lower,
		Upper:   upper,
	}
}

// DefaultQuadratic is the two-variable instance centered at (5, 7) in
// [1, 10]², started from (2, 2).
func DefaultQuadratic() *Quadratic {
	q := NewQuadratic([]int{5, 7}, 1, 10)
	q.Start = dsda.Configuration{2, 2}
	return q
}

func (q *Quadratic) Name() string { return "quadratic" }

func (q *Quadratic) ExternalVariables() []ExternalVariable {
	out := make([]ExternalVariable, len(q.Centers))
	for j := range q.Centers {
		out[j] = ExternalVariable{Name: fmt.Sprintf("x%d", j+1), Lower: q.Lower, Upper: q.Upper}
	}
	return out
}

func (q *Quadratic) DefaultStart() dsda.Configuration {
	if len(q.Start) == len(q.Centers) {
		return q.Start.Clone()
	}
	c := make(dsda.Configuration, len(q.Centers))
	for j := range c {
		c[j] = q.Lower
	}
	return c
}

func (q *Quadratic) Build(c dsda.Configuration) (*Subproblem, error) {
	discrete := 0.0
	sum := 0
	for j, v := range c {
		if v < q.Lower || v > q.Upper {
			return nil, fmt.Errorf("x%d = %d outside [%d, %d]", j+1, v, q.Lower, q.Upper)
		}
		d := float64(v - q.Centers[j])
		discrete += d * d
		sum += v
	}

	targets := make([]float64, len(c))
	sp := &Subproblem{Model: q.Name(), Configuration: c.Clone()}
	for j, v := range c {
		targets[j] = float64(v) / 2
		sp.Variables = append(sp.Variables, Variable{
			Name:  fmt.Sprintf("y%d", j+1),
			Lower: float64(q.Lower) - 1,
			Upper: float64(q.Upper) + 1,
			Start: float64(q.Lower),
		})
	}
	sp.Objective = func(y []float64) float64 {
		slack := 0.0
		for j, t := range targets {
			d := y[j] - t
			slack += d * d
		}
		return discrete + slack
	}
	if q.MaxSum > 0 {
		maxSum := q.MaxSum
		sp.Tighten = func(*Subproblem) error {
			if sum > maxSum {
				return fmt.Errorf("component sum %d exceeds %d", sum, maxSum)
			}
			return nil
		}
	}
	return sp, nil
}
