package config

import (
	"fmt"
	"os"
)

// LoadRunFile loads and parses a run file.
func LoadRunFile(path string) (*RunFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run file %s: %w", path, err)
	}
	rf, err := ParseRunFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, err)
	}
	return rf, nil
}
