package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/dsdasolver/internal/server"
	"github.com/cwbudde/dsdasolver/internal/store"
)

var (
	serveAddr             string
	serveDataDir          string
	serveMaxJobs          int64
	serveProgressInterval time.Duration
	serveTrace            bool
	serveShutdownTimeout  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that accepts D-SDA runs as background jobs.

  POST /api/v1/jobs               submit a run spec
  GET  /api/v1/jobs               list jobs
  GET  /api/v1/jobs/{id}/status   job status
  GET  /api/v1/jobs/{id}/route    route so far
  GET  /api/v1/jobs/{id}/stream   progress as server-sent events
  POST /api/v1/jobs/{id}/cancel   stop a job
  GET  /metrics                   Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for run records, traces and warm starts")
	serveCmd.Flags().Int64Var(&serveMaxJobs, "max-jobs", server.DefaultMaxConcurrentJobs, "Maximum number of runs executing at once")
	serveCmd.Flags().DurationVar(&serveProgressInterval, "progress-interval", server.DefaultProgressInterval, "Minimum spacing of streamed progress events")
	serveCmd.Flags().BoolVar(&serveTrace, "trace", true, "Write a JSONL trace per job")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for running jobs to stop on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	runs, err := store.NewFSStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	warm, err := store.NewFSWarmStartStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("failed to create warm-start store: %w", err)
	}
	defer warm.Close()

	opts := []server.Option{
		server.WithMaxConcurrentJobs(serveMaxJobs),
		server.WithProgressInterval(serveProgressInterval),
		server.WithWarmStartStore(warm),
	}
	if serveTrace {
		opts = append(opts, server.WithTraceDir(runs.BaseDir()))
	}
	srv := server.NewServer(serveAddr, runs, opts...)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Signal received, stopping jobs")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
