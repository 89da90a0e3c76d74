package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/store"
)

var (
	runsDataDir     string
	keepLast        int
	olderThanDays   int
	forceClean      bool
	clearWarmStarts bool
	showTrace       bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded runs",
	Long: `Manage the run records written by run, resume and the job server: list
them, inspect one, or delete old ones.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all recorded runs",
	Long:  `Display all runs, newest first, with problem, status, final configuration, objective and size on disk.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its route",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Directory holding run records")

	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Also print the trace summary")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVar(&clearWarmStarts, "warm-starts", false, "Also delete all stored warm starts")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}

	writeRunTable(w, infos, func(id string) string {
		size, err := getDirSize(filepath.Join(runsDataDir, "runs", id))
		if err != nil {
			return "unknown"
		}
		return formatBytes(size)
	})

	fmt.Fprintf(w, "\nTotal runs: %d\n", len(infos))
	return nil
}

// writeRunTable prints one row per run. size may be nil.
func writeRunTable(out io.Writer, infos []store.RunInfo, size func(id string) string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tPROBLEM\tSTATUS\tFINAL\tOBJECTIVE\tEVALS\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-------\t------\t-----\t---------\t-----\t----")

	for _, info := range infos {
		objective := "-"
		if info.Objective != nil {
			objective = fmt.Sprintf("%.6g", *info.Objective)
		}
		sizeStr := "-"
		if size != nil {
			sizeStr = size(info.ID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Problem,
			info.Status,
			dsda.Configuration(info.Final),
			objective,
			info.Evaluations,
			sizeStr,
		)
	}

	w.Flush()
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	rec, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := printRunRecord(w, rec, false); err != nil {
		return err
	}
	if !showTrace {
		return nil
	}

	reader, err := store.NewTraceReader(runsDataDir, rec.ID)
	if err != nil {
		return err
	}
	defer reader.Close()
	entries, err := reader.ReadAll()
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	writeTraceSummary(w, entries)
	return nil
}

// writeTraceSummary counts trace entries by kind and evaluations by status.
func writeTraceSummary(w io.Writer, entries []store.TraceEntry) {
	kinds := make(map[string]int)
	statuses := make(map[string]int)
	for _, e := range entries {
		kinds[e.Kind]++
		if e.Kind == store.KindEvaluated {
			statuses[e.Status]++
		}
	}

	fmt.Fprintf(w, "Trace: %d entries\n", len(entries))
	for _, kind := range []string{store.KindEvaluated, store.KindSkipped, store.KindMoved, store.KindFinished} {
		fmt.Fprintf(w, "  %-10s %d\n", kind, kinds[kind])
	}
	names := make([]string, 0, len(statuses))
	for s := range statuses {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		fmt.Fprintf(w, "  evaluated %s: %d\n", s, statuses[s])
	}
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 && !clearWarmStarts {
		return fmt.Errorf("must specify --keep-last, --older-than or --warm-starts")
	}

	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())

	w := cmd.OutOrStdout()
	if len(toDelete) == 0 && !clearWarmStarts {
		fmt.Fprintln(w, "No runs match deletion criteria.")
		return nil
	}

	if len(toDelete) > 0 {
		fmt.Fprintf(w, "Found %d run(s) to delete:\n", len(toDelete))
		for _, info := range toDelete {
			fmt.Fprintf(w, "  - %s (%s, %s)\n",
				shortID(info.ID),
				info.Status,
				info.Timestamp.Format("2006-01-02 15:04:05"),
			)
		}
	}
	if clearWarmStarts {
		fmt.Fprintln(w, "All stored warm starts will be deleted.")
	}

	if !forceClean && !confirm(cmd.InOrStdin(), w, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(w, "Aborted.")
		return nil
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}
	fmt.Fprintf(w, "\nDeleted %d run(s), %d failed.\n", deleted, failed)

	if clearWarmStarts {
		warm, err := store.NewFSWarmStartStore(runsDataDir)
		if err != nil {
			return fmt.Errorf("failed to open warm-start store: %w", err)
		}
		defer warm.Close()
		n, _ := warm.Count()
		if err := warm.Clear(); err != nil {
			return fmt.Errorf("failed to clear warm starts: %w", err)
		}
		fmt.Fprintf(w, "Deleted %d warm start(s).\n", n)
	}
	return nil
}

// confirm asks a yes/no question on in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

// selectRunsForDeletion determines which runs should be deleted: every run
// older than olderThanDays, plus the oldest runs beyond the newest keepLast.
// The result is ordered oldest first.
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int, now time.Time) []store.RunInfo {
	sorted := make([]store.RunInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RunInfo
	for i, info := range sorted {
		byCount := i < excess
		byAge := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if byCount || byAge {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// shortID truncates long ids for display
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
