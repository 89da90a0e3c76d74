// Package config describes D-SDA runs: the RunSpec shared by the CLI, the
// HTTP API and run records, and the YAML run file that wraps it.
package config

import (
	"time"

	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/oracle"
)

// RunSpec is everything needed to reproduce a run.
type RunSpec struct {
	// Problem is a registered model name (see model.Names).
	Problem string `yaml:"problem" json:"problem"`
	// Start is the initial configuration; empty uses the model default.
	Start []int `yaml:"start,omitempty" json:"start,omitempty"`
	// Topology is "2" or "Infinity".
	Topology           string  `yaml:"topology" json:"topology"`
	Tolerance          float64 `yaml:"tolerance" json:"tolerance"`
	AbsTolerance       float64 `yaml:"abs_tolerance" json:"absTolerance"`
	TimeLimit          string  `yaml:"time_limit" json:"timeLimit"`
	IterationTimeLimit string  `yaml:"iteration_time_limit" json:"iterationTimeLimit"`
	OptimalityGap      float64 `yaml:"optimality_gap" json:"optimalityGap"`
	// WarmStart is a handle from a previous run's warm-start store.
	WarmStart string         `yaml:"warm_start,omitempty" json:"warmStart,omitempty"`
	Oracle    oracle.Options `yaml:"oracle" json:"oracle"`
}

// RunFile is the YAML document accepted by `dsda run --config`.
type RunFile struct {
	RunSpec `yaml:",inline"`

	// DataDir holds run records, traces and warm starts.
	DataDir string `yaml:"data_dir"`
	// Trace enables the JSONL trace of the run.
	Trace bool `yaml:"trace"`
}

// DefaultRunSpec returns a spec filled with the default search settings.
func DefaultRunSpec() RunSpec {
	d := dsda.DefaultSearchConfig()
	return RunSpec{
		Topology:           d.Topology.String(),
		Tolerance:          d.Tolerance,
		AbsTolerance:       d.AbsTolerance,
		TimeLimit:          d.TimeLimit.String(),
		IterationTimeLimit: d.IterationTimeLimit.String(),
		OptimalityGap:      d.OptimalityGap,
		Oracle:             oracle.DefaultOptions(),
	}
}

// DefaultRunFile returns a run file with default settings.
func DefaultRunFile() RunFile {
	return RunFile{
		RunSpec: DefaultRunSpec(),
		DataDir: "./data",
		Trace:   true,
	}
}

// SearchConfig converts the spec into solver settings.
func (s RunSpec) SearchConfig() (dsda.SearchConfig, error) {
	cfg := dsda.DefaultSearchConfig()
	topo, err := dsda.ParseTopology(s.Topology)
	if err != nil {
		return cfg, err
	}
	cfg.Topology = topo
	cfg.Tolerance = s.Tolerance
	cfg.AbsTolerance = s.AbsTolerance
	cfg.OptimalityGap = s.OptimalityGap
	if cfg.TimeLimit, err = parseDuration("time_limit", s.TimeLimit); err != nil {
		return cfg, err
	}
	if cfg.IterationTimeLimit, err = parseDuration("iteration_time_limit", s.IterationTimeLimit); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &dsda.ConfigurationError{Reason: field + ": " + err.Error()}
	}
	return d, nil
}
