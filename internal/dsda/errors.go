package dsda

import "fmt"

// ErrConfiguration matches any ConfigurationError.
// Use errors.Is(err, ErrConfiguration) to check for this error.
var ErrConfiguration = &ConfigurationError{}

// ErrInvalidTopology matches any InvalidTopologyError.
var ErrInvalidTopology = &InvalidTopologyError{}

// ErrReformulation matches any ReformulationError.
var ErrReformulation = &ReformulationError{}

// ConfigurationError reports malformed run input. It is always raised before
// the first oracle call.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return "configuration error"
	}
	return "configuration error: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// InvalidTopologyError reports an unknown neighborhood kind.
type InvalidTopologyError struct {
	Value string
}

func (e *InvalidTopologyError) Error() string {
	if e.Value == "" {
		return "invalid neighborhood topology"
	}
	return fmt.Sprintf("invalid neighborhood topology %q (want \"2\" or \"Infinity\")", e.Value)
}

func (e *InvalidTopologyError) Is(target error) bool {
	_, ok := target.(*InvalidTopologyError)
	return ok
}

// ReformulationError reports that a configuration could not be fixed onto a
// model, e.g. because its length does not match the model's external
// variable count.
type ReformulationError struct {
	Model    string
	Expected int
	Actual   int
	Reason   string
}

func (e *ReformulationError) Error() string {
	if e.Reason != "" {
		return "reformulation error: " + e.Reason
	}
	if e.Model == "" && e.Expected == 0 && e.Actual == 0 {
		return "reformulation error"
	}
	return fmt.Sprintf("reformulation error: model %s expects %d external variables, got %d",
		e.Model, e.Expected, e.Actual)
}

func (e *ReformulationError) Is(target error) bool {
	_, ok := target.(*ReformulationError)
	return ok
}
