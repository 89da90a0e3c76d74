package server

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the job can no longer change.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// RoutePoint is one entry of a job's route.
type RoutePoint struct {
	Configuration []int      `json:"configuration"`
	Objective     *float64   `json:"objective"`
	Phase         dsda.Phase `json:"phase"`
	DirectionID   int        `json:"directionId"`
}

// Job represents a D-SDA run submitted over the API
type Job struct {
	ID          string         `json:"id"`
	State       JobState       `json:"state"`
	Spec        config.RunSpec `json:"spec"`
	Status      dsda.RunStatus `json:"status,omitempty"`
	Current     []int          `json:"current,omitempty"`
	Objective   *float64       `json:"objective"`
	Route       []RoutePoint   `json:"route,omitempty"`
	Evaluations int            `json:"evaluations"`
	MemoHits    int            `json:"memoHits"`
	Iterations  int            `json:"iterations"`
	UserTimeSec float64        `json:"userTimeSec"`
	WarmStart   string         `json:"warmStart,omitempty"`
	StartTime   time.Time      `json:"startTime"`
	EndTime     *time.Time     `json:"endTime,omitempty"`
	Error       string         `json:"error,omitempty"`

	cancel context.CancelFunc
	done   chan struct{}
}

// snapshot copies the job so it can be read without holding the lock.
func (j *Job) snapshot() *Job {
	cp := *j
	cp.Current = slices.Clone(j.Current)
	cp.Route = slices.Clone(j.Route)
	cp.Spec.Start = slices.Clone(j.Spec.Start)
	return &cp
}

// Elapsed is the wall time so far, or the total once the job ended.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs. At most maxConcurrent jobs hold a
// run slot at the same time; the rest wait in StatePending.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	order       []string
	broadcaster *EventBroadcaster
	slots       *semaphore.Weighted
}

// NewJobManager creates a new JobManager
func NewJobManager(maxConcurrent int64) *JobManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &JobManager{
		jobs:        make(map[string]*Job),
		broadcaster: NewEventBroadcaster(),
		slots:       semaphore.NewWeighted(maxConcurrent),
	}
}

// CreateJob registers a pending job for the given spec
func (jm *JobManager) CreateJob(spec config.RunSpec) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Spec:      spec,
		StartTime: time.Now(),
		done:      make(chan struct{}),
	}

	jm.jobs[job.ID] = job
	jm.order = append(jm.order, job.ID)
	return job.snapshot()
}

// GetJob retrieves a copy of a job by ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.snapshot(), true
}

// ListJobs returns copies of all jobs in submission order
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.order))
	for _, id := range jm.order {
		jobs = append(jobs, jm.jobs[id].snapshot())
	}
	return jobs
}

// UpdateJob atomically updates a job using the provided function. Moving the
// job into a terminal state releases everyone waiting on Done.
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	wasTerminal := job.State.Terminal()
	updateFn(job)
	if !wasTerminal && job.State.Terminal() {
		close(job.done)
	}
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, id := range jm.order {
		if job := jm.jobs[id]; job.State == StateRunning {
			runningJobs = append(runningJobs, job.snapshot())
		}
	}
	return runningJobs
}

// Done returns a channel that is closed once the job reaches a terminal state.
func (jm *JobManager) Done(id string) (<-chan struct{}, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.done, true
}

// setCancel stores the function that stops the job's run.
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if job, exists := jm.jobs[id]; exists {
		job.cancel = cancel
	}
}

// CancelJob stops a pending or running job. The worker records the final
// state once the search returns.
func (jm *JobManager) CancelJob(id string) error {
	jm.mu.RLock()
	job, exists := jm.jobs[id]
	var cancel context.CancelFunc
	var state JobState
	if exists {
		cancel = job.cancel
		state = job.State
	}
	jm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if state.Terminal() {
		return fmt.Errorf("job %s already %s", id, state)
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// CancelAll stops every job that has not finished yet.
func (jm *JobManager) CancelAll() {
	jm.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		if job.cancel != nil && !job.State.Terminal() {
			cancels = append(cancels, job.cancel)
		}
	}
	jm.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
}
