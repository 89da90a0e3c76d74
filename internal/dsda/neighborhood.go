package dsda

import (
	"fmt"
	"sort"
	"strings"
)

// Topology selects the neighborhood used by a run.
type Topology int

const (
	// K2 moves one external variable by ±1 at a time.
	K2 Topology = iota + 1
	// KInfinity moves any subset of external variables by ±1 simultaneously.
	KInfinity
)

// ParseTopology accepts "2"/"k2" and "inf"/"infinity"/"kinf" (any case).
func ParseTopology(s string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2", "k2", "k=2":
		return K2, nil
	case "inf", "infinity", "kinf", "k=inf", "k=infinity":
		return KInfinity, nil
	default:
		return 0, &InvalidTopologyError{Value: s}
	}
}

func (t Topology) String() string {
	switch t {
	case K2:
		return "2"
	case KInfinity:
		return "Infinity"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Topology) MarshalText() ([]byte, error) {
	if t != K2 && t != KInfinity {
		return nil, &InvalidTopologyError{Value: t.String()}
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Topology) UnmarshalText(text []byte) error {
	parsed, err := ParseTopology(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Neighborhood maps direction ids 1..Len() to unit-step directions.
type Neighborhood struct {
	topology   Topology
	directions []Direction
}

// GenerateNeighborhood builds the neighborhood of the given topology and
// dimension. Ids are assigned in generation order starting at 1.
func GenerateNeighborhood(topology Topology, dimension int) (Neighborhood, error) {
	if dimension < 1 {
		return Neighborhood{}, &ConfigurationError{Reason: fmt.Sprintf("dimension must be positive, got %d", dimension)}
	}
	switch topology {
	case K2:
		return Neighborhood{topology: K2, directions: unitDirections(dimension)}, nil
	case KInfinity:
		return Neighborhood{topology: KInfinity, directions: productDirections(dimension)}, nil
	default:
		return Neighborhood{}, &InvalidTopologyError{Value: topology.String()}
	}
}

// unitDirections returns +e_0..+e_{n-1} followed by -e_0..-e_{n-1}.
func unitDirections(n int) []Direction {
	dirs := make([]Direction, 0, 2*n)
	for _, sign := range []int{1, -1} {
		for axis := 0; axis < n; axis++ {
			d := make(Direction, n)
			d[axis] = sign
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// productDirections enumerates {-1,0,1}^n lexicographically, first axis
// slowest, skipping the zero vector.
func productDirections(n int) []Direction {
	total := 1
	for i := 0; i < n; i++ {
		total *= 3
	}
	dirs := make([]Direction, 0, total-1)
	for idx := 0; idx < total; idx++ {
		d := make(Direction, n)
		rem := idx
		for axis := n - 1; axis >= 0; axis-- {
			d[axis] = rem%3 - 1
			rem /= 3
		}
		if d.IsZero() {
			continue
		}
		dirs = append(dirs, d)
	}
	return dirs
}

// Topology returns the kind the neighborhood was generated for.
func (n Neighborhood) Topology() Topology {
	return n.topology
}

// Len returns the number of directions.
func (n Neighborhood) Len() int {
	return len(n.directions)
}

// Direction returns the direction with the given id (1-based).
func (n Neighborhood) Direction(id int) (Direction, bool) {
	if id < 1 || id > len(n.directions) {
		return nil, false
	}
	return n.directions[id-1], true
}

// Neighbors are in-bounds candidates keyed by direction id.
// Key 0 is always the center point.
type Neighbors map[int]Configuration

// IDs returns the candidate ids in ascending order.
func (n Neighbors) IDs() []int {
	ids := make([]int, 0, len(n))
	for id := range n {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// EnumerateNeighbors expands point into its in-bounds neighbors. The point
// itself is stored under key 0 regardless of the bounds.
func EnumerateNeighbors(point Configuration, neighborhood Neighborhood, bounds Bounds) Neighbors {
	out := Neighbors{0: point.Clone()}
	for i, d := range neighborhood.directions {
		candidate := point.Add(d)
		if bounds.Contains(candidate) {
			out[i+1] = candidate
		}
	}
	return out
}
