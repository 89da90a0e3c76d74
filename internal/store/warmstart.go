package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// FSWarmStartStore keeps solved subproblem states as zstd-compressed JSON
// blobs in <baseDir>/warmstart/<handle>.json.zst. Handles are random UUIDs,
// so saved states are never overwritten.
type FSWarmStartStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewFSWarmStartStore creates the store below baseDir.
func NewFSWarmStartStore(baseDir string) (*FSWarmStartStore, error) {
	dir := filepath.Join(baseDir, "warmstart")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create warm start directory: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &FSWarmStartStore{dir: dir, enc: enc, dec: dec}, nil
}

func (s *FSWarmStartStore) path(h dsda.Handle) string {
	return filepath.Join(s.dir, string(h)+".json.zst")
}

// Save persists sol and returns its handle.
func (s *FSWarmStartStore) Save(sol dsda.Solution) (dsda.Handle, error) {
	data, err := json.Marshal(sol)
	if err != nil {
		return "", fmt.Errorf("failed to serialize warm start: %w", err)
	}
	h := dsda.Handle(uuid.NewString())
	if err := writeFileAtomic(s.path(h), s.enc.EncodeAll(data, nil)); err != nil {
		return "", fmt.Errorf("failed to save warm start: %w", err)
	}
	return h, nil
}

// Load returns the state saved under h.
func (s *FSWarmStartStore) Load(h dsda.Handle) (dsda.Solution, error) {
	if _, err := uuid.Parse(string(h)); err != nil {
		return dsda.Solution{}, fmt.Errorf("invalid warm start handle %q: %w", h, err)
	}
	compressed, err := os.ReadFile(s.path(h))
	if os.IsNotExist(err) {
		return dsda.Solution{}, &NotFoundError{Kind: "warm start", ID: string(h)}
	} else if err != nil {
		return dsda.Solution{}, fmt.Errorf("failed to read warm start: %w", err)
	}
	data, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return dsda.Solution{}, fmt.Errorf("failed to decompress warm start: %w", err)
	}
	var sol dsda.Solution
	if err := json.Unmarshal(data, &sol); err != nil {
		return dsda.Solution{}, fmt.Errorf("failed to deserialize warm start: %w", err)
	}
	return sol, nil
}

// Count returns the number of stored states.
func (s *FSWarmStartStore) Count() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json.zst"))
	if err != nil {
		return 0, fmt.Errorf("failed to list warm starts: %w", err)
	}
	return len(matches), nil
}

// Clear removes every stored state. Handles issued before are invalid
// afterwards.
func (s *FSWarmStartStore) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to clear warm starts: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to recreate warm start directory: %w", err)
	}
	return nil
}

// Close releases the zstd codec resources.
func (s *FSWarmStartStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

// MemoryWarmStartStore keeps states in memory for the lifetime of a process.
type MemoryWarmStartStore struct {
	mu    sync.RWMutex
	items map[dsda.Handle]dsda.Solution
}

// NewMemoryWarmStartStore returns an empty in-memory store.
func NewMemoryWarmStartStore() *MemoryWarmStartStore {
	return &MemoryWarmStartStore{items: make(map[dsda.Handle]dsda.Solution)}
}

// Save stores a copy of sol.
func (s *MemoryWarmStartStore) Save(sol dsda.Solution) (dsda.Handle, error) {
	h := dsda.Handle(uuid.NewString())
	s.mu.Lock()
	s.items[h] = copySolution(sol)
	s.mu.Unlock()
	return h, nil
}

// Load returns a copy of the state saved under h.
func (s *MemoryWarmStartStore) Load(h dsda.Handle) (dsda.Solution, error) {
	s.mu.RLock()
	sol, ok := s.items[h]
	s.mu.RUnlock()
	if !ok {
		return dsda.Solution{}, &NotFoundError{Kind: "warm start", ID: string(h)}
	}
	return copySolution(sol), nil
}

// Len returns the number of stored states.
func (s *MemoryWarmStartStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func copySolution(sol dsda.Solution) dsda.Solution {
	out := dsda.Solution{
		Configuration: sol.Configuration.Clone(),
		Objective:     sol.Objective,
	}
	if sol.Values != nil {
		out.Values = make(map[string]float64, len(sol.Values))
		for k, v := range sol.Values {
			out.Values[k] = v
		}
	}
	return out
}
