package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// Trace entry kinds.
const (
	KindEvaluated = "evaluated"
	KindSkipped   = "skipped"
	KindMoved     = "moved"
	KindFinished  = "finished"
)

// TraceEntry is one line of trace.jsonl.
type TraceEntry struct {
	Kind          string   `json:"kind"`
	Phase         string   `json:"phase,omitempty"`
	Configuration []int    `json:"configuration"`
	Objective     *float64 `json:"objective,omitempty"`
	// Status is the evaluation status, or the run status for "finished".
	Status      string  `json:"status,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	DirectionID int     `json:"directionId,omitempty"`
	Accepted    bool    `json:"accepted,omitempty"`
	RouteIndex  int     `json:"routeIndex,omitempty"`
	SolverSec   float64 `json:"solverSec,omitempty"`
	ElapsedSec  float64 `json:"elapsedSec"`

	Timestamp time.Time `json:"timestamp"`
}

func tracePath(baseDir, runID string) string {
	return filepath.Join(baseDir, "runs", runID, "trace.jsonl")
}

// TraceWriter writes trace entries to a JSONL file. It implements
// dsda.Observer, so it can be attached to a solver directly.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
	logger *slog.Logger
	err    error
}

// NewTraceWriter creates the trace of a run at <baseDir>/runs/<runID>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, runID string, append bool) (*TraceWriter, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	path := tracePath(baseDir, runID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	var file *os.File
	var err error
	if append {
		file, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	} else {
		file, err = os.Create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
		logger: slog.Default().With("runID", runID),
	}, nil
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

// record writes from an observer callback. Only the first failure is logged
// and kept for Err.
func (tw *TraceWriter) record(entry TraceEntry) {
	entry.Timestamp = time.Now()
	if err := tw.Write(entry); err != nil {
		tw.mu.Lock()
		if tw.err == nil {
			tw.err = err
			tw.logger.Warn("Trace write failed", "path", tw.path, "error", err)
		}
		tw.mu.Unlock()
	}
}

// Err returns the first error hit while recording observer events.
func (tw *TraceWriter) Err() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.err
}

func (tw *TraceWriter) Evaluated(ev dsda.EvaluationEvent) {
	tw.record(TraceEntry{
		Kind:          KindEvaluated,
		Phase:         string(ev.Phase),
		Configuration: ev.Result.Configuration,
		Objective:     FiniteOrNil(ev.Result.Objective),
		Status:        ev.Result.Status.String(),
		Reason:        ev.Result.Reason,
		DirectionID:   ev.DirectionID,
		Accepted:      ev.Accepted,
		SolverSec:     ev.Result.SolverTime.Seconds(),
		ElapsedSec:    ev.Elapsed.Seconds(),
	})
}

func (tw *TraceWriter) Skipped(ev dsda.SkipEvent) {
	tw.record(TraceEntry{
		Kind:          KindSkipped,
		Phase:         string(ev.Phase),
		Configuration: ev.Configuration,
		ElapsedSec:    ev.Elapsed.Seconds(),
	})
}

func (tw *TraceWriter) Moved(ev dsda.MoveEvent) {
	tw.record(TraceEntry{
		Kind:          KindMoved,
		Phase:         string(ev.Phase),
		Configuration: ev.Configuration,
		Objective:     FiniteOrNil(ev.Objective),
		DirectionID:   ev.DirectionID,
		RouteIndex:    ev.RouteIndex,
		ElapsedSec:    ev.Elapsed.Seconds(),
	})
}

// Finished records the final configuration and flushes the trace.
func (tw *TraceWriter) Finished(res *dsda.RunResult) {
	tw.record(TraceEntry{
		Kind:          KindFinished,
		Configuration: res.Final,
		Objective:     FiniteOrNil(res.Objective),
		Status:        string(res.Status),
		SolverSec:     res.UserTime.Seconds(),
		ElapsedSec:    res.WallTime.Seconds(),
	})
	if err := tw.Flush(); err != nil {
		tw.logger.Warn("Trace flush failed", "path", tw.path, "error", err)
	}
}

// Flush writes any buffered data to the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of a run.
func NewTraceReader(baseDir, runID string) (*TraceReader, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	file, err := os.Open(tracePath(baseDir, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Kind: "trace", ID: runID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read reads the next entry. Returns io.EOF when no more entries are available.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// DeleteTrace removes the trace of a run. Returns nil if it doesn't exist.
func DeleteTrace(baseDir, runID string) error {
	if err := checkID(runID); err != nil {
		return err
	}
	err := os.Remove(tracePath(baseDir, runID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
