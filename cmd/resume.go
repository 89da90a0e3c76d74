package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/model"
	"github.com/cwbudde/dsdasolver/internal/store"
)

var (
	resumeDataDir   string
	resumeTimeLimit string
	resumeNoTrace   bool
	resumeJSON      bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Start a new run from a recorded run's final configuration",
	Long: `Starts a new D-SDA run with the settings of a recorded run, beginning at its
final configuration and warm-started from its best solution. The evaluated set
is not restored, so configurations from the earlier run may be solved again.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Directory for run records, traces and warm starts")
	resumeCmd.Flags().StringVar(&resumeTimeLimit, "time-limit", "", "Override the recorded time limit")
	resumeCmd.Flags().BoolVar(&resumeNoTrace, "no-trace", false, "Do not write a trace")
	resumeCmd.Flags().BoolVar(&resumeJSON, "json", false, "Print the run record as JSON")
	rootCmd.AddCommand(resumeCmd)
}

// resumeRunFile derives the run file of a resumed run from a record.
func resumeRunFile(rec *store.RunRecord, dataDir, timeLimit string, trace bool) (*config.RunFile, error) {
	m, err := model.Lookup(rec.Spec.Problem)
	if err != nil {
		return nil, err
	}
	if err := rec.IsCompatible(m.Name(), len(m.ExternalVariables())); err != nil {
		return nil, fmt.Errorf("cannot resume run %s: %w", rec.ID, err)
	}

	rf := config.DefaultRunFile()
	rf.RunSpec = rec.Spec
	rf.Start = append([]int(nil), rec.Final...)
	rf.WarmStart = rec.WarmStart
	rf.DataDir = dataDir
	rf.Trace = trace
	if timeLimit != "" {
		rf.TimeLimit = timeLimit
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

func runResume(cmd *cobra.Command, args []string) error {
	runs, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	rec, err := runs.LoadRun(args[0])
	if err != nil {
		return err
	}

	rf, err := resumeRunFile(rec, resumeDataDir, resumeTimeLimit, !resumeNoTrace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	slog.Info("Resuming run", "from", rec.ID, "run_id", runID, "start", rf.Start, "warm_start", rf.WarmStart)

	next, err := executeRun(ctx, rf, runID)
	if err != nil {
		return err
	}
	return printRunRecord(cmd.OutOrStdout(), next, resumeJSON)
}
