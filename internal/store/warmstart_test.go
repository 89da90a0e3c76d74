package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

func testSolution() dsda.Solution {
	return dsda.Solution{
		Configuration: dsda.Configuration{3, 2, 3},
		Objective:     167427.66,
		Values:        map[string]float64{"v[mixer]": 7.4, "b[a]": 5.9},
	}
}

func TestFSWarmStartStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewFSWarmStartStore(dir)
	if err != nil {
		t.Fatalf("NewFSWarmStartStore failed: %v", err)
	}
	defer ws.Close()

	h, err := ws.Save(testSolution())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(dir, "warmstart", string(h)+".json.zst")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Warm start file missing: %v", err)
	}
	// zstd frame magic
	if len(data) < 4 || data[0] != 0x28 || data[1] != 0xb5 || data[2] != 0x2f || data[3] != 0xfd {
		t.Errorf("Warm start file is not zstd-compressed")
	}

	sol, err := ws.Load(h)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !sol.Configuration.Equal(dsda.Configuration{3, 2, 3}) {
		t.Errorf("Configuration = %v", sol.Configuration)
	}
	if sol.Objective != 167427.66 || sol.Values["b[a]"] != 5.9 {
		t.Errorf("Unexpected solution: %+v", sol)
	}

	n, err := ws.Count()
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}
}

func TestFSWarmStartStore_UniqueHandles(t *testing.T) {
	ws, err := NewFSWarmStartStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	h1, _ := ws.Save(testSolution())
	h2, _ := ws.Save(testSolution())
	if h1 == h2 {
		t.Errorf("Expected distinct handles, got %s twice", h1)
	}
}

func TestFSWarmStartStore_LoadErrors(t *testing.T) {
	ws, err := NewFSWarmStartStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	if _, err := ws.Load("../../etc/passwd"); err == nil {
		t.Error("Expected error for non-UUID handle")
	}
	_, err = ws.Load("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFSWarmStartStore_Clear(t *testing.T) {
	ws, err := NewFSWarmStartStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	h, _ := ws.Save(testSolution())
	if err := ws.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := ws.Load(h); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after clear, got %v", err)
	}
	if _, err := ws.Save(testSolution()); err != nil {
		t.Errorf("Save after clear failed: %v", err)
	}
}

func TestMemoryWarmStartStore(t *testing.T) {
	ws := NewMemoryWarmStartStore()

	sol := testSolution()
	h, err := ws.Save(sol)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// later mutations of the caller's copy must not leak in
	sol.Values["b[a]"] = -1
	sol.Configuration[0] = 0

	loaded, err := ws.Load(h)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Values["b[a]"] != 5.9 || loaded.Configuration[0] != 3 {
		t.Errorf("Stored state was mutated: %+v", loaded)
	}

	if _, err := ws.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryWarmStartStore_Concurrent(t *testing.T) {
	ws := NewMemoryWarmStartStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := ws.Save(testSolution())
			if err != nil {
				t.Errorf("Save failed: %v", err)
				return
			}
			if _, err := ws.Load(h); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if ws.Len() != 20 {
		t.Errorf("Len = %d, want 20", ws.Len())
	}
}
