package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// RunRecord is the persisted outcome of a run.
//
// The record keeps the final configuration and the warm-start handle of the
// best solution, not the evaluated set. Resuming a run therefore starts a new
// search from Final with a fresh memo: configurations evaluated by the
// previous run may be solved again.
type RunRecord struct {
	ID   string         `json:"id"`
	Spec config.RunSpec `json:"spec"`

	Status string `json:"status"`
	Final  []int  `json:"final"`
	// Objective is nil when no feasible configuration was found.
	Objective *float64 `json:"objective,omitempty"`
	Route     [][]int  `json:"route"`

	WallTimeSec float64 `json:"wallTimeSec"`
	UserTimeSec float64 `json:"userTimeSec"`
	Evaluations int     `json:"evaluations"`
	MemoHits    int     `json:"memoHits"`
	Iterations  int     `json:"iterations"`

	// WarmStart is the handle of the solution at Final.
	WarmStart string    `json:"warmStart,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunInfo is the listing view of a run.
type RunInfo struct {
	ID          string    `json:"id"`
	Problem     string    `json:"problem"`
	Topology    string    `json:"topology"`
	Status      string    `json:"status"`
	Final       []int     `json:"final"`
	Objective   *float64  `json:"objective,omitempty"`
	Evaluations int       `json:"evaluations"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunRecord converts a solver result into a record.
func NewRunRecord(runID string, spec config.RunSpec, res *dsda.RunResult) *RunRecord {
	route := make([][]int, len(res.Route))
	for i, c := range res.Route {
		route[i] = append([]int(nil), c...)
	}
	return &RunRecord{
		ID:          runID,
		Spec:        spec,
		Status:      string(res.Status),
		Final:       append([]int(nil), res.Final...),
		Objective:   FiniteOrNil(res.Objective),
		Route:       route,
		WallTimeSec: res.WallTime.Seconds(),
		UserTimeSec: res.UserTime.Seconds(),
		Evaluations: res.Evaluations,
		MemoHits:    res.MemoHits,
		Iterations:  res.Iterations,
		WarmStart:   string(res.WarmStart),
		Timestamp:   time.Now(),
	}
}

// FiniteOrNil returns nil for infinite or NaN values, which JSON cannot carry.
func FiniteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// ToInfo converts a full record to RunInfo.
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		ID:          r.ID,
		Problem:     r.Spec.Problem,
		Topology:    r.Spec.Topology,
		Status:      r.Status,
		Final:       r.Final,
		Objective:   r.Objective,
		Evaluations: r.Evaluations,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks that the record is complete and self-consistent.
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Spec.Problem == "" {
		return &ValidationError{Field: "Spec.Problem", Reason: "cannot be empty"}
	}
	if len(r.Final) == 0 {
		return &ValidationError{Field: "Final", Reason: "cannot be empty"}
	}
	if len(r.Route) == 0 {
		return &ValidationError{Field: "Route", Reason: "cannot be empty"}
	}
	last := r.Route[len(r.Route)-1]
	if !dsda.Configuration(last).Equal(r.Final) {
		return &ValidationError{
			Field:  "Route",
			Reason: fmt.Sprintf("last entry %v differs from final configuration %v", last, r.Final),
		}
	}
	for i, c := range r.Route {
		if len(c) != len(r.Final) {
			return &ValidationError{Field: "Route", Reason: fmt.Sprintf("entry %d has %d components, want %d", i, len(c), len(r.Final))}
		}
	}
	switch dsda.RunStatus(r.Status) {
	case dsda.RunOptimal, dsda.RunTimeLimit, dsda.RunCancelled:
	case dsda.RunInfeasible:
		if r.Objective != nil {
			return &ValidationError{Field: "Objective", Reason: "must be empty for infeasible runs"}
		}
	default:
		return &ValidationError{Field: "Status", Reason: fmt.Sprintf("unknown status %q", r.Status)}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.WallTimeSec < 0 || r.UserTimeSec < 0 {
		return &ValidationError{Field: "WallTimeSec", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a run record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks that a run of problem with the given number of
// external variables can start from this record's final configuration.
func (r *RunRecord) IsCompatible(problem string, dimension int) error {
	if r.Spec.Problem != problem {
		return &CompatibilityError{
			Field:    "Problem",
			Expected: r.Spec.Problem,
			Actual:   problem,
		}
	}
	if len(r.Final) != dimension {
		return &CompatibilityError{
			Field:    "Dimension",
			Expected: fmt.Sprintf("%d", len(r.Final)),
			Actual:   fmt.Sprintf("%d", dimension),
		}
	}
	return nil
}

// CompatibilityError represents a resume compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
