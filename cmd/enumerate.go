package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/dsdasolver/internal/config"
	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/model"
	"github.com/cwbudde/dsdasolver/internal/oracle"
)

var (
	enumProblem    string
	enumFormat     string
	enumOutPath    string
	enumIterLimit  string
	enumOracleOpts []string
	enumMaxPoints  int
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "Solve every configuration of a model's external grid",
	Long: `Evaluates every configuration inside the bounds of the external variables
and reports each objective, as a baseline for D-SDA runs.`,
	RunE: runEnumerate,
}

func init() {
	enumerateCmd.Flags().StringVar(&enumProblem, "problem", "", fmt.Sprintf("Model to enumerate (%v)", model.Names()))
	enumerateCmd.Flags().StringVar(&enumFormat, "format", "table", "Output format: table or csv")
	enumerateCmd.Flags().StringVarP(&enumOutPath, "out", "o", "", "Write output to a file instead of stdout")
	enumerateCmd.Flags().StringVar(&enumIterLimit, "iteration-time-limit", config.DefaultRunSpec().IterationTimeLimit, "Budget of one subproblem solve")
	enumerateCmd.Flags().StringArrayVar(&enumOracleOpts, "oracle", nil, fmt.Sprintf("Oracle option key=value, repeatable (%v)", oracle.Keys()))
	enumerateCmd.Flags().IntVar(&enumMaxPoints, "max-points", 10000, "Refuse grids with more configurations than this")
	enumerateCmd.MarkFlagRequired("problem")
	rootCmd.AddCommand(enumerateCmd)
}

// enumeration is the outcome of a complete enumeration.
type enumeration struct {
	Results []dsda.EvaluationResult
	// Best is the index of the lowest feasible objective, -1 if none.
	Best     int
	Elapsed  time.Duration
	Canceled bool
}

// enumerate solves every configuration of m's grid in lexicographic order.
// Cancelling ctx stops after the current configuration.
func enumerate(ctx context.Context, m model.Model, spec config.RunSpec, maxPoints int) (*enumeration, error) {
	bounds, err := model.BoundsOf(m)
	if err != nil {
		return nil, err
	}
	if maxPoints > 0 && bounds.Size() > maxPoints {
		return nil, fmt.Errorf("%s has %d configurations, more than --max-points %d", m.Name(), bounds.Size(), maxPoints)
	}
	slog.Info("Enumerating", "problem", m.Name(), "configurations", bounds.Size())

	cfg, err := spec.SearchConfig()
	if err != nil {
		return nil, err
	}
	orc, err := oracle.NewMayflyOracle(spec.Oracle, slog.Default())
	if err != nil {
		return nil, err
	}
	ev := dsda.NewEvaluator(model.Reformulate(m), orc, nil, cfg, slog.Default())

	out := &enumeration{Best: -1}
	start := time.Now()
	bounds.Each(func(c dsda.Configuration) bool {
		if ctx.Err() != nil {
			out.Canceled = true
			return false
		}
		res := ev.Evaluate(ctx, c.Clone(), "", cfg.IterationTimeLimit)
		if res.Feasible() && (out.Best < 0 || res.Objective < out.Results[out.Best].Objective) {
			out.Best = len(out.Results)
		}
		out.Results = append(out.Results, res)
		slog.Debug("Enumerated", "configuration", res.Configuration, "status", res.Status, "objective", res.Objective)
		return true
	})
	out.Elapsed = time.Since(start)
	return out, nil
}

// writeEnumeration renders the results as an aligned table or CSV.
func writeEnumeration(w io.Writer, format string, m model.Model, e *enumeration) error {
	vars := m.ExternalVariables()
	header := make([]string, 0, len(vars)+3)
	for _, v := range vars {
		header = append(header, v.Name)
	}
	header = append(header, "status", "objective", "solver_sec")

	rows := make([][]string, 0, len(e.Results))
	for _, res := range e.Results {
		row := make([]string, 0, len(header))
		for _, v := range res.Configuration {
			row = append(row, strconv.Itoa(v))
		}
		objective := ""
		if !math.IsInf(res.Objective, 0) && !math.IsNaN(res.Objective) {
			objective = strconv.FormatFloat(res.Objective, 'g', 10, 64)
		}
		row = append(row, res.Status.String(), objective, strconv.FormatFloat(res.SolverTime.Seconds(), 'f', 4, 64))
		rows = append(rows, row)
	}

	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		if err := cw.WriteAll(rows); err != nil {
			return err
		}
		return cw.Error()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeTabRow(tw, header)
		for _, row := range rows {
			writeTabRow(tw, row)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if e.Best >= 0 {
			best := e.Results[e.Best]
			fmt.Fprintf(w, "\nBest: %v objective %.6g\n", best.Configuration, best.Objective)
		} else {
			fmt.Fprintln(w, "\nNo feasible configuration.")
		}
		fmt.Fprintf(w, "Evaluated %d configuration(s) in %s\n", len(e.Results), e.Elapsed.Round(time.Millisecond))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table or csv)", format)
	}
}

func writeTabRow(w io.Writer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprintln(w)
}

func runEnumerate(cmd *cobra.Command, args []string) error {
	if enumFormat != "table" && enumFormat != "csv" {
		return fmt.Errorf("unknown format %q (want table or csv)", enumFormat)
	}
	m, err := model.Lookup(enumProblem)
	if err != nil {
		return err
	}

	spec := config.DefaultRunSpec()
	spec.Problem = m.Name()
	spec.IterationTimeLimit = enumIterLimit
	if err := spec.Oracle.ParseAssignments(enumOracleOpts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := enumerate(ctx, m, spec, enumMaxPoints)
	if err != nil {
		return err
	}
	if e.Canceled {
		slog.Warn("Enumeration interrupted", "evaluated", len(e.Results))
	}

	w := cmd.OutOrStdout()
	if enumOutPath != "" {
		f, err := os.Create(enumOutPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeEnumeration(w, enumFormat, m, e); err != nil {
		return err
	}
	if enumOutPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d configuration(s) to %s\n", len(e.Results), enumOutPath)
	}
	return nil
}
