package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/model"
	"github.com/cwbudde/dsdasolver/internal/oracle"
	"github.com/cwbudde/dsdasolver/internal/store"
)

// runFlags are the run settings that can be given on the command line. Set
// flags override the values of a --config file.
type runFlags struct {
	configPath         string
	problem            string
	start              []int
	topology           string
	tolerance          float64
	absTolerance       float64
	timeLimit          string
	iterationTimeLimit string
	optimalityGap      float64
	warmStart          string
	oracleOpts         []string
	dataDir            string
	noTrace            bool
	jsonOutput         bool
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a D-SDA search",
	Long: `Runs a discrete-steepest descent search on a registered model and writes
the run record (and, unless --no-trace is set, a JSONL trace) to the data directory.

Settings come from --config (YAML) and flags; flags that are set win.`,
	Example: `  dsda run --problem smallbatch --topology Infinity --time-limit 5m
  dsda run --config run.yaml --oracle rounds=5 --oracle population=40`,
	RunE: runSearch,
}

func init() {
	runOpts.bind(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}

func (f *runFlags) bind(fs *pflag.FlagSet) {
	d := config.DefaultRunFile()
	fs.StringVar(&f.configPath, "config", "", "YAML run file")
	fs.StringVar(&f.problem, "problem", "", fmt.Sprintf("Model to solve (%v)", model.Names()))
	fs.IntSliceVar(&f.start, "start", nil, "Initial configuration, e.g. 3,3,3 (default: model start)")
	fs.StringVar(&f.topology, "topology", d.Topology, "Neighborhood: 2 or Infinity")
	fs.Float64Var(&f.tolerance, "tolerance", d.Tolerance, "Relative acceptance tolerance")
	fs.Float64Var(&f.absTolerance, "abs-tolerance", d.AbsTolerance, "Absolute acceptance tolerance")
	fs.StringVar(&f.timeLimit, "time-limit", d.TimeLimit, "Wall-clock budget of the whole run")
	fs.StringVar(&f.iterationTimeLimit, "iteration-time-limit", d.IterationTimeLimit, "Budget of one subproblem solve")
	fs.Float64Var(&f.optimalityGap, "gap", d.OptimalityGap, "Relative optimality gap passed to the oracle")
	fs.StringVar(&f.warmStart, "warm-start", "", "Warm-start handle for the initial configuration")
	fs.StringArrayVar(&f.oracleOpts, "oracle", nil, fmt.Sprintf("Oracle option key=value, repeatable (%v)", oracle.Keys()))
	fs.StringVar(&f.dataDir, "data-dir", d.DataDir, "Directory for run records, traces and warm starts")
	fs.BoolVar(&f.noTrace, "no-trace", false, "Do not write a trace")
	fs.BoolVar(&f.jsonOutput, "json", false, "Print the run record as JSON")
}

// runFile builds the effective run file: the --config file (or defaults)
// with every set flag applied on top.
func (f *runFlags) runFile(fs *pflag.FlagSet) (*config.RunFile, error) {
	rf := config.DefaultRunFile()
	if f.configPath != "" {
		loaded, err := config.LoadRunFile(f.configPath)
		if err != nil {
			return nil, err
		}
		rf = *loaded
	}

	if fs.Changed("problem") {
		rf.Problem = f.problem
	}
	if fs.Changed("start") {
		rf.Start = append([]int(nil), f.start...)
	}
	if fs.Changed("topology") {
		rf.Topology = f.topology
	}
	if fs.Changed("tolerance") {
		rf.Tolerance = f.tolerance
	}
	if fs.Changed("abs-tolerance") {
		rf.AbsTolerance = f.absTolerance
	}
	if fs.Changed("time-limit") {
		rf.TimeLimit = f.timeLimit
	}
	if fs.Changed("iteration-time-limit") {
		rf.IterationTimeLimit = f.iterationTimeLimit
	}
	if fs.Changed("gap") {
		rf.OptimalityGap = f.optimalityGap
	}
	if fs.Changed("warm-start") {
		rf.WarmStart = f.warmStart
	}
	if fs.Changed("data-dir") {
		rf.DataDir = f.dataDir
	}
	if f.noTrace {
		rf.Trace = false
	}
	if err := rf.Oracle.ParseAssignments(f.oracleOpts); err != nil {
		return nil, err
	}

	if rf.Problem == "" {
		return nil, fmt.Errorf("no problem given: use --problem or set problem in --config")
	}
	if err := rf.Validate(); err != nil {
		return nil, err
	}
	return &rf, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	rf, err := runOpts.runFile(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := executeRun(ctx, rf, uuid.New().String())
	if err != nil {
		return err
	}
	return printRunRecord(cmd.OutOrStdout(), rec, runOpts.jsonOutput)
}

// executeRun runs one search described by rf and saves its record under
// rf.DataDir. Warm starts persist in the same directory so later runs and
// resumes can reuse them.
func executeRun(ctx context.Context, rf *config.RunFile, runID string) (*store.RunRecord, error) {
	log := slog.Default().With("run_id", runID)

	runs, err := store.NewFSStore(rf.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	warm, err := store.NewFSWarmStartStore(rf.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create warm-start store: %w", err)
	}
	defer warm.Close()

	m, req, err := rf.Request()
	if err != nil {
		return nil, err
	}
	cfg, err := rf.SearchConfig()
	if err != nil {
		return nil, err
	}
	orc, err := oracle.NewMayflyOracle(rf.Oracle, log)
	if err != nil {
		return nil, err
	}

	var observers dsda.Observers
	var trace *store.TraceWriter
	if rf.Trace {
		trace, err = store.NewTraceWriter(rf.DataDir, runID, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()
		observers = append(observers, trace)
	}

	log.Info("Starting run",
		"problem", m.Name(),
		"start", req.Start,
		"topology", cfg.Topology,
		"time_limit", cfg.TimeLimit,
	)

	solver := dsda.NewSolver(model.Reformulate(m), orc, warm,
		dsda.WithSearchConfig(cfg),
		dsda.WithObserver(observers),
		dsda.WithLogger(log),
	)
	res, err := solver.Solve(ctx, req)
	if err != nil {
		return nil, err
	}

	spec := rf.RunSpec
	spec.Start = req.Start.Clone()
	rec := store.NewRunRecord(runID, spec, res)
	if err := runs.SaveRun(runID, rec); err != nil {
		return nil, fmt.Errorf("failed to save run: %w", err)
	}
	if trace != nil && trace.Err() != nil {
		log.Warn("Trace is incomplete", "path", trace.Path(), "error", trace.Err())
	}
	return rec, nil
}

// printRunRecord writes a human-readable summary, or the record as JSON.
func printRunRecord(w io.Writer, rec *store.RunRecord, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(w, "Run:         %s\n", rec.ID)
	fmt.Fprintf(w, "Problem:     %s (topology %s)\n", rec.Spec.Problem, rec.Spec.Topology)
	fmt.Fprintf(w, "Status:      %s\n", rec.Status)
	fmt.Fprintf(w, "Final:       %v\n", rec.Final)
	if rec.Objective != nil {
		fmt.Fprintf(w, "Objective:   %.6g\n", *rec.Objective)
	} else {
		fmt.Fprintf(w, "Objective:   none (no feasible configuration)\n")
	}
	fmt.Fprintf(w, "Evaluations: %d (%d memo hits, %d iterations)\n", rec.Evaluations, rec.MemoHits, rec.Iterations)
	fmt.Fprintf(w, "Time:        %.3fs wall, %.3fs solver\n", rec.WallTimeSec, rec.UserTimeSec)
	fmt.Fprintf(w, "Route:       ")
	for i, c := range rec.Route {
		if i > 0 {
			fmt.Fprint(w, " -> ")
		}
		fmt.Fprint(w, dsda.Configuration(c))
	}
	fmt.Fprintln(w)
	if rec.WarmStart != "" {
		fmt.Fprintf(w, "Warm start:  %s\n", rec.WarmStart)
	}
	return nil
}
