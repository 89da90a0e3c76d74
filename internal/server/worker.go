package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/metrics"
	"github.com/cwbudde/dsdasolver/internal/model"
	"github.com/cwbudde/dsdasolver/internal/oracle"
	"github.com/cwbudde/dsdasolver/internal/store"
)

// runEnv is what a worker needs besides the job itself.
type runEnv struct {
	runs             store.RunStore
	warmStarts       dsda.WarmStartStore
	collector        *metrics.Collector
	traceDir         string
	progressInterval time.Duration
}

// runJob waits for a run slot, then executes the job's D-SDA search in the
// calling goroutine. Progress is broadcast while the search runs and the
// finished run is saved to env.runs.
func runJob(ctx context.Context, jm *JobManager, env *runEnv, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if env.collector != nil {
		env.collector.RunQueued()
	}
	if err := jm.slots.Acquire(ctx, 1); err != nil {
		if env.collector != nil {
			env.collector.RunStarted()
			env.collector.RunDone()
		}
		markJobCancelled(jm, jobID)
		return err
	}
	defer jm.slots.Release(1)
	if env.collector != nil {
		env.collector.RunStarted()
		defer env.collector.RunDone()
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.StartTime = time.Now()
	})
	if err != nil {
		return err
	}

	spec := job.Spec
	logger := slog.Default().With("job_id", jobID)
	logger.Info("Starting job", "problem", spec.Problem, "topology", spec.Topology)

	if err := spec.Validate(); err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	m, req, err := spec.Request()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	cfg, err := spec.SearchConfig()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	orc, err := oracle.NewMayflyOracle(spec.Oracle, logger)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	observers := dsda.Observers{newProgressObserver(jm, jobID, env.progressInterval)}
	if env.collector != nil {
		observers = append(observers, env.collector)
	}
	var trace *store.TraceWriter
	if env.traceDir != "" {
		trace, err = store.NewTraceWriter(env.traceDir, jobID, false)
		if err != nil {
			logger.Warn("Trace disabled", "error", err)
		} else {
			defer trace.Close()
			observers = append(observers, trace)
		}
	}

	solver := dsda.NewSolver(model.Reformulate(m), orc, env.warmStarts,
		dsda.WithSearchConfig(cfg),
		dsda.WithObserver(observers),
		dsda.WithLogger(logger),
	)

	res, err := solver.Solve(ctx, req)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	state := StateCompleted
	if res.Status == dsda.RunCancelled {
		state = StateCancelled
	}
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.Status = res.Status
		j.Current = res.Final.Clone()
		j.Objective = store.FiniteOrNil(res.Objective)
		j.Evaluations = res.Evaluations
		j.MemoHits = res.MemoHits
		j.Iterations = res.Iterations
		j.UserTimeSec = res.UserTime.Seconds()
		j.WarmStart = string(res.WarmStart)
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if env.runs != nil {
		if err := env.runs.SaveRun(jobID, store.NewRunRecord(jobID, spec, res)); err != nil {
			logger.Error("Failed to save run record", "error", err)
		}
	}

	logger.Info("Job finished",
		"status", res.Status,
		"final", res.Final,
		"objective", res.Objective,
		"evaluations", res.Evaluations,
		"wall_time", res.WallTime,
	)

	broadcastFinal(jm, jobID)
	if state == StateCancelled {
		return context.Canceled
	}
	return nil
}

// broadcastFinal publishes the job's terminal snapshot.
func broadcastFinal(jm *JobManager, jobID string) {
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(job))
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastFinal(jm, jobID)
}

// markJobCancelled marks a job that never got a run slot as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.Status = dsda.RunCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastFinal(jm, jobID)
}

// progressObserver mirrors search events into the job and broadcasts them,
// at most once per interval.
type progressObserver struct {
	jm      *JobManager
	jobID   string
	limiter *rate.Limiter
}

func newProgressObserver(jm *JobManager, jobID string, interval time.Duration) *progressObserver {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &progressObserver{
		jm:      jm,
		jobID:   jobID,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *progressObserver) Evaluated(ev dsda.EvaluationEvent) {
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.Evaluations++
		j.UserTimeSec += ev.Result.SolverTime.Seconds()
	})
}

func (p *progressObserver) Skipped(dsda.SkipEvent) {
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.MemoHits++
	})
}

func (p *progressObserver) Moved(ev dsda.MoveEvent) {
	objective := store.FiniteOrNil(ev.Objective)
	p.jm.UpdateJob(p.jobID, func(j *Job) {
		j.Current = ev.Configuration.Clone()
		j.Objective = objective
		j.Route = append(j.Route, RoutePoint{
			Configuration: ev.Configuration.Clone(),
			Objective:     objective,
			Phase:         ev.Phase,
			DirectionID:   ev.DirectionID,
		})
	})
	if !p.limiter.Allow() {
		return
	}
	if job, ok := p.jm.GetJob(p.jobID); ok {
		event := eventFromJob(job)
		event.Phase = ev.Phase
		p.jm.broadcaster.Broadcast(event)
	}
}

// Finished is a no-op: the worker publishes the final event after the job
// record is complete.
func (p *progressObserver) Finished(*dsda.RunResult) {}

// isCancellation reports whether err came from a cancelled job context.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
