package store

// RunStore persists finished D-SDA runs.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if the run doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type RunStore interface {
	// SaveRun atomically saves the record, overwriting an existing one.
	SaveRun(runID string, record *RunRecord) error

	// LoadRun returns the record of a run.
	LoadRun(runID string) (*RunRecord, error)

	// ListRuns returns metadata for all stored runs, newest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run record and its trace.
	DeleteRun(runID string) error
}

// ErrNotFound is returned when a requested run or warm start does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing run or warm start.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "run"
	}
	if e.ID != "" {
		return kind + " not found: " + e.ID
	}
	return kind + " not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
