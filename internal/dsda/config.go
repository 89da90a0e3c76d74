package dsda

import (
	"fmt"
	"time"
)

// SearchConfig holds the tolerances and limits of a D-SDA run.
type SearchConfig struct {
	// Topology is the neighborhood used for the whole run.
	Topology Topology

	// Tolerance is the relative plateau-acceptance band. A candidate whose
	// objective is within Tolerance (relative) of the incumbent is accepted.
	Tolerance float64

	// AbsTolerance accepts any candidate with obj - best < AbsTolerance.
	AbsTolerance float64

	// Epsilon guards the relative comparison against a zero incumbent.
	Epsilon float64

	// TimeLimit is the wall-clock budget of the run.
	TimeLimit time.Duration

	// IterationTimeLimit caps a single oracle call.
	IterationTimeLimit time.Duration

	// OptimalityGap is passed through to the oracle.
	OptimalityGap float64
}

// DefaultSearchConfig returns the defaults used by the reference runs.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Topology:           KInfinity,
		Tolerance:          1e-3,
		AbsTolerance:       1e-5,
		Epsilon:            1e-10,
		TimeLimit:          time.Hour,
		IterationTimeLimit: 10 * time.Second,
		OptimalityGap:      1e-3,
	}
}

// Validate checks the configuration for values the search cannot work with.
func (c SearchConfig) Validate() error {
	if c.Topology != K2 && c.Topology != KInfinity {
		return &InvalidTopologyError{Value: c.Topology.String()}
	}
	if c.Tolerance < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("tolerance cannot be negative (%g)", c.Tolerance)}
	}
	if c.AbsTolerance < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("absolute tolerance cannot be negative (%g)", c.AbsTolerance)}
	}
	if c.Epsilon <= 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("epsilon must be positive (%g)", c.Epsilon)}
	}
	if c.TimeLimit <= 0 {
		return &ConfigurationError{Reason: "time limit must be positive"}
	}
	if c.IterationTimeLimit <= 0 {
		return &ConfigurationError{Reason: "iteration time limit must be positive"}
	}
	if c.OptimalityGap < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("optimality gap cannot be negative (%g)", c.OptimalityGap)}
	}
	return nil
}

// accepts is the absolute-or-relative improvement test shared by neighbor
// search and line search. It deliberately admits slightly worse objectives
// inside the relative band.
func (c SearchConfig) accepts(candidate, best float64) bool {
	if candidate-best < c.AbsTolerance {
		return true
	}
	diff := best - candidate
	if diff < 0 {
		diff = -diff
	}
	mag := best
	if mag < 0 {
		mag = -mag
	}
	return diff/(mag+c.Epsilon) < c.Tolerance
}
