package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/dsdasolver/internal/dsda"
	"github.com/cwbudde/dsdasolver/internal/model"
)

// ParseRunFile parses a RunFile from YAML bytes on top of the defaults and
// validates it. Unknown keys are rejected.
func ParseRunFile(data []byte) (*RunFile, error) {
	rf := DefaultRunFile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse run yaml: %w", err)
	}
	if err := rf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run file: %w", err)
	}
	return &rf, nil
}

// ParseRunFileString parses a RunFile from a YAML string.
func ParseRunFileString(yamlText string) (*RunFile, error) {
	return ParseRunFile([]byte(yamlText))
}

// Validate checks the run file.
func (rf *RunFile) Validate() error {
	if rf.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	return rf.RunSpec.Validate()
}

// Validate checks that the spec names a known model, a start inside its
// bounds and usable search and oracle settings.
func (s RunSpec) Validate() error {
	if s.Problem == "" {
		return fmt.Errorf("problem cannot be empty")
	}
	m, err := model.Lookup(s.Problem)
	if err != nil {
		return err
	}
	if _, err := s.SearchConfig(); err != nil {
		return err
	}
	if err := s.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	bounds, err := model.BoundsOf(m)
	if err != nil {
		return err
	}
	if len(s.Start) > 0 {
		if len(s.Start) != bounds.Dimension() {
			return &dsda.ConfigurationError{
				Reason: fmt.Sprintf("start has %d components, %s has %d external variables", len(s.Start), m.Name(), bounds.Dimension()),
			}
		}
		if !bounds.Contains(dsda.Configuration(s.Start)) {
			return &dsda.ConfigurationError{Reason: fmt.Sprintf("start %v outside the bounds of %s", s.Start, m.Name())}
		}
	}
	return nil
}

// Request resolves the model and builds the solver request.
func (s RunSpec) Request() (model.Model, dsda.Request, error) {
	m, err := model.Lookup(s.Problem)
	if err != nil {
		return nil, dsda.Request{}, err
	}
	bounds, err := model.BoundsOf(m)
	if err != nil {
		return nil, dsda.Request{}, err
	}
	start := dsda.Configuration(s.Start).Clone()
	if len(start) == 0 {
		start = m.DefaultStart()
	}
	return m, dsda.Request{
		Start:     start,
		Bounds:    bounds,
		WarmStart: dsda.Handle(s.WarmStart),
	}, nil
}
