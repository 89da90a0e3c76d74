package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/metrics"
	"github.com/cwbudde/dsdasolver/internal/store"
)

// Default server settings
const (
	DefaultMaxConcurrentJobs = 2
	DefaultProgressInterval  = 250 * time.Millisecond
)

var errShuttingDown = errors.New("server is shutting down")

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	env        *runEnv
	addr       string
	server     *http.Server

	// mu orders job submission against shutdown
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	maxConcurrentJobs int64
	progressInterval  time.Duration
	warmStarts        dsda.WarmStartStore
	collector         *metrics.Collector
	traceDir          string
}

// WithMaxConcurrentJobs bounds how many searches run at once.
func WithMaxConcurrentJobs(n int64) Option {
	return func(o *serverOptions) { o.maxConcurrentJobs = n }
}

// WithProgressInterval sets the minimum spacing of streamed progress events.
// Zero streams every move.
func WithProgressInterval(d time.Duration) Option {
	return func(o *serverOptions) { o.progressInterval = d }
}

// WithWarmStartStore shares a warm-start store across jobs.
func WithWarmStartStore(ws dsda.WarmStartStore) Option {
	return func(o *serverOptions) { o.warmStarts = ws }
}

// WithCollector exports job metrics through c instead of a private collector.
func WithCollector(c *metrics.Collector) Option {
	return func(o *serverOptions) { o.collector = c }
}

// WithTraceDir writes a JSONL trace per job under dir.
func WithTraceDir(dir string) Option {
	return func(o *serverOptions) { o.traceDir = dir }
}

// NewServer creates a new HTTP server. runStore may be nil, in which case
// finished runs are only kept in memory.
func NewServer(addr string, runStore store.RunStore, opts ...Option) *Server {
	o := serverOptions{
		maxConcurrentJobs: DefaultMaxConcurrentJobs,
		progressInterval:  DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.warmStarts == nil {
		o.warmStarts = store.NewMemoryWarmStartStore()
	}
	if o.collector == nil {
		o.collector = metrics.NewCollector()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(o.maxConcurrentJobs),
		env: &runEnv{
			runs:             runStore,
			warmStarts:       o.warmStarts,
			collector:        o.collector,
			traceDir:         o.traceDir,
			progressInterval: o.progressInterval,
		},
		addr:   addr,
		ctx:    ctx,
		cancel: cancel,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed and wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.Handle("/metrics", s.env.collector.Handler())

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels all jobs, waits for their workers and then gracefully
// shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Jobs still running at shutdown deadline")
	}

	return s.server.Shutdown(ctx)
}

// submit registers a job and starts its worker
func (s *Server) submit(spec config.RunSpec) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, errShuttingDown
	}

	job := s.jobManager.CreateJob(spec)
	ctx, cancel := context.WithCancel(s.ctx)
	s.jobManager.setCancel(job.ID, cancel)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		if err := runJob(ctx, s.jobManager, s.env, job.ID); err != nil {
			if isCancellation(err) {
				slog.Info("Job stopped", "job_id", job.ID)
				return
			}
			slog.Debug("Job returned error", "job_id", job.ID, "error", err)
		}
	}()
	return job, nil
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch {
	case sub == "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCancelJob(w, r, jobID)
	case r.Method != http.MethodGet:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	case sub == "" || sub == "status":
		s.handleGetJobStatus(w, r, jobID)
	case sub == "route":
		s.handleGetRoute(w, r, jobID)
	case sub == "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	spec, err := decodeRunSpec(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := spec.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.submit(spec)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobManager.ListJobs()
	for _, job := range jobs {
		job.Route = nil
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"status":      job.Status,
		"spec":        job.Spec,
		"current":     job.Current,
		"objective":   job.Objective,
		"evaluations": job.Evaluations,
		"memoHits":    job.MemoHits,
		"iterations":  job.Iterations,
		"routeLength": len(job.Route),
		"elapsed":     job.Elapsed().Seconds(),
		"userTime":    job.UserTimeSec,
		"warmStart":   job.WarmStart,
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	}
	writeJSON(w, http.StatusOK, response)
}

// handleGetRoute handles GET /api/v1/jobs/:id/route
func (s *Server) handleGetRoute(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	route := job.Route
	if route == nil {
		route = []RoutePoint{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    job.ID,
		"state": job.State,
		"route": route,
	})
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
