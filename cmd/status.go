package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/dsdasolver/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), client, serverURL)
	}
	return getJobStatus(cmd.OutOrStdout(), client, serverURL, args[0])
}

func fetchJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errNotFound = errors.New("not found")

func listJobs(w io.Writer, client *http.Client, baseURL string) error {
	var jobs []server.Job
	if err := fetchJSON(client, baseURL+"/api/v1/jobs", &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Problem: %s (topology %s)\n", job.Spec.Problem, job.Spec.Topology)
		if len(job.Current) > 0 {
			fmt.Fprintf(w, "  Current: %v\n", job.Current)
		}
		if job.Objective != nil {
			fmt.Fprintf(w, "  Objective: %.6g\n", *job.Objective)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// jobStatus mirrors the status response of the server.
type jobStatus struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Status      string     `json:"status"`
	Spec        specView   `json:"spec"`
	Current     []int      `json:"current"`
	Objective   *float64   `json:"objective"`
	Evaluations int        `json:"evaluations"`
	MemoHits    int        `json:"memoHits"`
	Iterations  int        `json:"iterations"`
	RouteLength int        `json:"routeLength"`
	Elapsed     float64    `json:"elapsed"`
	UserTime    float64    `json:"userTime"`
	EndTime     *time.Time `json:"endTime"`
	Error       string     `json:"error"`
}

type specView struct {
	Problem   string `json:"problem"`
	Start     []int  `json:"start"`
	Topology  string `json:"topology"`
	TimeLimit string `json:"timeLimit"`
}

func getJobStatus(w io.Writer, client *http.Client, baseURL, jobID string) error {
	var status jobStatus
	err := fetchJSON(client, fmt.Sprintf("%s/api/v1/jobs/%s/status", baseURL, jobID), &status)
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	if status.Status != "" {
		fmt.Fprintf(w, "Run status: %s\n", status.Status)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Problem: %s\n", status.Spec.Problem)
	if len(status.Spec.Start) > 0 {
		fmt.Fprintf(w, "  Start: %v\n", status.Spec.Start)
	}
	fmt.Fprintf(w, "  Topology: %s\n", status.Spec.Topology)
	fmt.Fprintf(w, "  Time limit: %s\n", status.Spec.TimeLimit)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	if len(status.Current) > 0 {
		fmt.Fprintf(w, "  Current: %v\n", status.Current)
	}
	if status.Objective != nil {
		fmt.Fprintf(w, "  Objective: %.6g\n", *status.Objective)
	}
	fmt.Fprintf(w, "  Evaluations: %d (%d memo hits)\n", status.Evaluations, status.MemoHits)
	fmt.Fprintf(w, "  Route length: %d\n", status.RouteLength)
	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s (solver %s)\n", elapsed.Round(time.Millisecond),
		time.Duration(status.UserTime*float64(time.Second)).Round(time.Millisecond))

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
