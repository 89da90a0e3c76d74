package model

import (
	"fmt"
	"math"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// Variable is a bounded continuous variable of a subproblem.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
	Start float64
}

// Constraint is an inequality g(x) <= 0.
type Constraint struct {
	Name string
	Func func(x []float64) float64
}

// Subproblem is a continuous model with every discrete choice fixed.
// It is what the oracle solves.
type Subproblem struct {
	Model         string
	Configuration dsda.Configuration
	Variables     []Variable
	Objective     func(x []float64) float64
	Constraints   []Constraint

	// Tighten may narrow variable bounds from the fixed configuration and
	// returns an error when the bounds alone prove infeasibility.
	Tighten func(*Subproblem) error

	warm bool
}

// Dimension is the number of continuous variables.
func (s *Subproblem) Dimension() int {
	return len(s.Variables)
}

// Index returns the position of the named variable, or -1.
func (s *Subproblem) Index(name string) int {
	for i, v := range s.Variables {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Lower returns the lower bounds in variable order.
func (s *Subproblem) Lower() []float64 {
	out := make([]float64, len(s.Variables))
	for i, v := range s.Variables {
		out[i] = v.Lower
	}
	return out
}

// Upper returns the upper bounds in variable order.
func (s *Subproblem) Upper() []float64 {
	out := make([]float64, len(s.Variables))
	for i, v := range s.Variables {
		out[i] = v.Upper
	}
	return out
}

// StartPoint returns the start values clamped into the bounds.
func (s *Subproblem) StartPoint() []float64 {
	out := make([]float64, len(s.Variables))
	for i, v := range s.Variables {
		out[i] = math.Min(math.Max(v.Start, v.Lower), v.Upper)
	}
	return out
}

// Warm reports whether Initialize seeded the start values.
func (s *Subproblem) Warm() bool {
	return s.warm
}

// Initialize copies matching variable values from a previous solution into
// the start values. Unknown names are ignored.
func (s *Subproblem) Initialize(sol dsda.Solution) {
	for i := range s.Variables {
		if v, ok := sol.Values[s.Variables[i].Name]; ok && !math.IsNaN(v) {
			s.Variables[i].Start = v
			s.warm = true
		}
	}
}

// Propagate tightens bounds and reports infeasibility detected from them.
func (s *Subproblem) Propagate() error {
	for _, v := range s.Variables {
		if v.Lower > v.Upper {
			return fmt.Errorf("variable %s has empty domain [%g, %g]", v.Name, v.Lower, v.Upper)
		}
	}
	if s.Tighten == nil {
		return nil
	}
	if err := s.Tighten(s); err != nil {
		return err
	}
	for _, v := range s.Variables {
		if v.Lower > v.Upper {
			return fmt.Errorf("variable %s has empty domain [%g, %g] after tightening", v.Name, v.Lower, v.Upper)
		}
	}
	return nil
}

// Violation returns the largest constraint violation at x (0 when feasible).
func (s *Subproblem) Violation(x []float64) float64 {
	worst := 0.0
	for _, c := range s.Constraints {
		g := c.Func(x)
		if math.IsNaN(g) {
			return math.Inf(1)
		}
		if g > worst {
			worst = g
		}
	}
	return worst
}

// Values names the components of x.
func (s *Subproblem) Values(x []float64) map[string]float64 {
	out := make(map[string]float64, len(s.Variables))
	for i, v := range s.Variables {
		if i < len(x) {
			out[v.Name] = x[i]
		}
	}
	return out
}
