// Package oracle provides the bundled subproblem solver: a penalty method
// driven by the Mayfly metaheuristic.
package oracle

import (
	"fmt"
	"strconv"
	"strings"
)

// Options tunes the Mayfly oracle.
type Options struct {
	// MaxIterations per optimizer round.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Population size; Mayfly needs at least 20.
	Population int `json:"population" yaml:"population"`
	// Seed of the first round; round r uses Seed+r.
	Seed int64 `json:"seed" yaml:"seed"`
	// Rounds is the maximum number of optimizer restarts per solve.
	Rounds int `json:"rounds" yaml:"rounds"`
	// Penalty is the weight of squared constraint violations in round 0.
	// It grows tenfold per round.
	Penalty float64 `json:"penalty" yaml:"penalty"`
	// FeasibilityTol is the largest violation still considered feasible.
	FeasibilityTol float64 `json:"feasibility_tol" yaml:"feasibility_tol"`
}

// DefaultOptions returns the default oracle settings.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  100,
		Population:     20,
		Seed:           42,
		Rounds:         3,
		Penalty:        1e4,
		FeasibilityTol: 1e-6,
	}
}

var optionKeys = []string{"feasibility_tol", "max_iterations", "penalty", "population", "rounds", "seed"}

// Keys lists the recognized option names.
func Keys() []string {
	return append([]string(nil), optionKeys...)
}

// Set assigns one option by name.
func (o *Options) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "max_iterations":
		o.MaxIterations, err = strconv.Atoi(value)
	case "population":
		o.Population, err = strconv.Atoi(value)
	case "seed":
		o.Seed, err = strconv.ParseInt(value, 10, 64)
	case "rounds":
		o.Rounds, err = strconv.Atoi(value)
	case "penalty":
		o.Penalty, err = strconv.ParseFloat(value, 64)
	case "feasibility_tol":
		o.FeasibilityTol, err = strconv.ParseFloat(value, 64)
	default:
		return fmt.Errorf("unknown oracle option %q (known: %s)", key, strings.Join(optionKeys, ", "))
	}
	if err != nil {
		return fmt.Errorf("oracle option %s: %w", key, err)
	}
	return nil
}

// ParseAssignments applies "key=value" pairs on top of o.
func (o *Options) ParseAssignments(pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("oracle option %q: want key=value", pair)
		}
		if err := o.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", o.MaxIterations)
	}
	if o.Population < 20 {
		return fmt.Errorf("population must be at least 20, got %d", o.Population)
	}
	if o.Rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", o.Rounds)
	}
	if o.Penalty <= 0 {
		return fmt.Errorf("penalty must be positive, got %g", o.Penalty)
	}
	if o.FeasibilityTol < 0 {
		return fmt.Errorf("feasibility_tol cannot be negative, got %g", o.FeasibilityTol)
	}
	return nil
}
