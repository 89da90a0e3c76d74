package dsda

import (
	"fmt"
	"strconv"
	"strings"
)

// Configuration is one assignment of all external variables.
// Treat it as immutable: every method returns a new slice.
type Configuration []int

// Direction is a nonzero integer step added to a Configuration.
type Direction []int

// Clone returns a copy of the configuration.
func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	copy(out, c)
	return out
}

// Equal reports whether both configurations have the same components.
func (c Configuration) Equal(other Configuration) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Add returns c + d component-wise. Lengths must match.
func (c Configuration) Add(d Direction) Configuration {
	out := make(Configuration, len(c))
	for i := range c {
		out[i] = c[i] + d[i]
	}
	return out
}

// SquaredDistance returns the squared Euclidean distance between c and other.
func (c Configuration) SquaredDistance(other Configuration) int {
	dist := 0
	for i := range c {
		d := c[i] - other[i]
		dist += d * d
	}
	return dist
}

// Key returns a canonical string for use as a map key.
func (c Configuration) Key() string {
	var sb strings.Builder
	for i, v := range c {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(v))
	}
	return sb.String()
}

func (c Configuration) String() string {
	return "[" + c.Key() + "]"
}

// ParseConfiguration parses "3,2,1" (optionally wrapped in brackets).
func ParseConfiguration(s string) (Configuration, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, &ConfigurationError{Reason: "empty configuration"}
	}
	parts := strings.Split(s, ",")
	out := make(Configuration, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid component %q", p)}
		}
		out = append(out, v)
	}
	return out, nil
}

// IsZero reports whether every component of the direction is zero.
func (d Direction) IsZero() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

func (d Direction) String() string {
	return Configuration(d).String()
}

// Bounds holds per-position integer bounds of the external variables.
type Bounds struct {
	Lower []int `json:"lower" yaml:"lower"`
	Upper []int `json:"upper" yaml:"upper"`
}

// NewBounds builds bounds from lower and upper slices (copied).
func NewBounds(lower, upper []int) Bounds {
	return Bounds{
		Lower: append([]int(nil), lower...),
		Upper: append([]int(nil), upper...),
	}
}

// UniformBounds gives every one of n positions the same range.
func UniformBounds(n, lower, upper int) Bounds {
	b := Bounds{Lower: make([]int, n), Upper: make([]int, n)}
	for i := 0; i < n; i++ {
		b.Lower[i] = lower
		b.Upper[i] = upper
	}
	return b
}

// BoundsFromMaps converts 1-based index maps (position -> bound) into Bounds.
// Every position 1..n must be present in both maps.
func BoundsFromMaps(lower, upper map[int]int) (Bounds, error) {
	if len(lower) != len(upper) {
		return Bounds{}, &ConfigurationError{
			Reason: fmt.Sprintf("bound maps differ in size (%d lower, %d upper)", len(lower), len(upper)),
		}
	}
	n := len(lower)
	b := Bounds{Lower: make([]int, n), Upper: make([]int, n)}
	for j := 1; j <= n; j++ {
		lo, ok := lower[j]
		if !ok {
			return Bounds{}, &ConfigurationError{Reason: fmt.Sprintf("missing lower bound for position %d", j)}
		}
		hi, ok := upper[j]
		if !ok {
			return Bounds{}, &ConfigurationError{Reason: fmt.Sprintf("missing upper bound for position %d", j)}
		}
		b.Lower[j-1] = lo
		b.Upper[j-1] = hi
	}
	return b, b.Validate()
}

// Dimension is the number of external variables the bounds describe.
func (b Bounds) Dimension() int {
	return len(b.Lower)
}

// Validate checks that lower and upper agree in length and lower <= upper.
func (b Bounds) Validate() error {
	if len(b.Lower) != len(b.Upper) {
		return &ConfigurationError{
			Reason: fmt.Sprintf("bounds length mismatch (%d lower, %d upper)", len(b.Lower), len(b.Upper)),
		}
	}
	if len(b.Lower) == 0 {
		return &ConfigurationError{Reason: "bounds are empty"}
	}
	for i := range b.Lower {
		if b.Lower[i] > b.Upper[i] {
			return &ConfigurationError{
				Reason: fmt.Sprintf("lower bound %d exceeds upper bound %d at position %d", b.Lower[i], b.Upper[i], i+1),
			}
		}
	}
	return nil
}

// Contains reports whether every component of c lies within its bound.
func (b Bounds) Contains(c Configuration) bool {
	if len(c) != len(b.Lower) {
		return false
	}
	for j, v := range c {
		if v < b.Lower[j] || v > b.Upper[j] {
			return false
		}
	}
	return true
}

// Size returns the number of lattice points inside the bounds.
func (b Bounds) Size() int {
	size := 1
	for i := range b.Lower {
		size *= b.Upper[i] - b.Lower[i] + 1
	}
	return size
}

// Each calls fn for every lattice point inside the bounds, last position
// fastest. Iteration stops when fn returns false.
func (b Bounds) Each(fn func(Configuration) bool) {
	n := b.Dimension()
	if n == 0 {
		return
	}
	cur := make(Configuration, n)
	copy(cur, b.Lower)
	for {
		if !fn(cur.Clone()) {
			return
		}
		i := n - 1
		for i >= 0 {
			cur[i]++
			if cur[i] <= b.Upper[i] {
				break
			}
			cur[i] = b.Lower[i]
			i--
		}
		if i < 0 {
			return
		}
	}
}
