// Package model holds the discrete-continuous models the solver can search
// and the adapter that fixes their external variables.
package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// ExternalVariable is one integer decision the search moves over.
type ExternalVariable struct {
	Name  string `json:"name" yaml:"name"`
	Lower int    `json:"lower" yaml:"lower"`
	Upper int    `json:"upper" yaml:"upper"`
}

// Model builds a continuous subproblem for every assignment of its external
// variables.
type Model interface {
	Name() string
	ExternalVariables() []ExternalVariable
	// DefaultStart is a configuration inside the bounds to start from when
	// the caller does not give one.
	DefaultStart() dsda.Configuration
	Build(dsda.Configuration) (*Subproblem, error)
}

// Reformulate adapts m to the solver's Reformulator contract.
func Reformulate(m Model) dsda.Reformulator {
	n := len(m.ExternalVariables())
	return dsda.ReformulatorFunc(func(c dsda.Configuration) (dsda.Problem, error) {
		if len(c) != n {
			return nil, &dsda.ReformulationError{Model: m.Name(), Expected: n, Actual: len(c)}
		}
		sp, err := m.Build(c)
		if err != nil {
			return nil, fmt.Errorf("build %s at %s: %w", m.Name(), c, err)
		}
		return sp, nil
	})
}

// BoundsOf collects the external variable bounds of m. A variable whose
// lower bound exceeds its upper bound is a configuration error.
func BoundsOf(m Model) (dsda.Bounds, error) {
	lower := make(map[int]int)
	upper := make(map[int]int)
	for i, v := range m.ExternalVariables() {
		lower[i+1] = v.Lower
		upper[i+1] = v.Upper
	}
	b, err := dsda.BoundsFromMaps(lower, upper)
	if err != nil {
		return dsda.Bounds{}, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return b, nil
}

// UnknownModelError is returned by Lookup for unregistered names.
type UnknownModelError struct {
	Name string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q (available: %s)", e.Name, strings.Join(Names(), ", "))
}

var registry = map[string]func() Model{
	"smallbatch": func() Model { return NewSmallBatch() },
	"quadratic":  func() Model { return DefaultQuadratic() },
}

// Lookup returns a fresh instance of the named model.
func Lookup(name string) (Model, error) {
	build, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, &UnknownModelError{Name: name}
	}
	return build(), nil
}

// Names lists the registered models in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
