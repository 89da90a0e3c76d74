package dsda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateNeighborhoodK2(t *testing.T) {
	nb, err := GenerateNeighborhood(K2, 3)
	require.NoError(t, err)
	require.Equal(t, 6, nb.Len())

	want := []Direction{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{-1, 0, 0}, {0, -1, 0}, {0, 0, -1},
	}
	for i, w := range want {
		d, ok := nb.Direction(i + 1)
		require.True(t, ok)
		assert.Equal(t, w, d, "direction %d", i+1)
	}
	_, ok := nb.Direction(0)
	assert.False(t, ok)
	_, ok = nb.Direction(7)
	assert.False(t, ok)
}

func TestGenerateNeighborhoodKInfinity(t *testing.T) {
	nb, err := GenerateNeighborhood(KInfinity, 2)
	require.NoError(t, err)
	require.Equal(t, 8, nb.Len())

	want := []Direction{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
	for i, w := range want {
		d, _ := nb.Direction(i + 1)
		assert.Equal(t, w, d, "direction %d", i+1)
	}
}

func TestNeighborhoodSizes(t *testing.T) {
	for n := 1; n <= 5; n++ {
		k2, err := GenerateNeighborhood(K2, n)
		require.NoError(t, err)
		assert.Equal(t, 2*n, k2.Len())

		kinf, err := GenerateNeighborhood(KInfinity, n)
		require.NoError(t, err)
		pow := 1
		for i := 0; i < n; i++ {
			pow *= 3
		}
		assert.Equal(t, pow-1, kinf.Len())

		seen := make(map[string]bool)
		for id := 1; id <= kinf.Len(); id++ {
			d, _ := kinf.Direction(id)
			assert.False(t, d.IsZero())
			key := Configuration(d).Key()
			assert.False(t, seen[key], "duplicate direction %s", key)
			seen[key] = true
		}
	}
}

func TestGenerateNeighborhoodErrors(t *testing.T) {
	_, err := GenerateNeighborhood(K2, 0)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = GenerateNeighborhood(Topology(7), 2)
	assert.True(t, errors.Is(err, ErrInvalidTopology))
}

func TestParseTopology(t *testing.T) {
	tests := []struct {
		in   string
		want Topology
	}{
		{"2", K2},
		{"K2", K2},
		{"inf", KInfinity},
		{"Infinity", KInfinity},
		{" kinf ", KInfinity},
	}
	for _, tt := range tests {
		got, err := ParseTopology(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseTopology("3")
	var topoErr *InvalidTopologyError
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, "3", topoErr.Value)
}

func TestTopologyText(t *testing.T) {
	b, err := KInfinity.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Infinity", string(b))

	var topo Topology
	require.NoError(t, topo.UnmarshalText([]byte("2")))
	assert.Equal(t, K2, topo)

	_, err = Topology(0).MarshalText()
	assert.Error(t, err)
}

func TestEnumerateNeighborsInterior(t *testing.T) {
	nb, _ := GenerateNeighborhood(K2, 2)
	bounds := UniformBounds(2, 1, 5)

	got := EnumerateNeighbors(Configuration{3, 3}, nb, bounds)
	assert.Equal(t, Neighbors{
		0: {3, 3},
		1: {4, 3},
		2: {3, 4},
		3: {2, 3},
		4: {3, 2},
	}, got)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got.IDs())
}

func TestEnumerateNeighborsCorner(t *testing.T) {
	nb, _ := GenerateNeighborhood(KInfinity, 2)
	bounds := UniformBounds(2, 1, 5)

	got := EnumerateNeighbors(Configuration{1, 1}, nb, bounds)
	// only (0,1), (1,0), (1,1) stay inside
	assert.Equal(t, Neighbors{
		0: {1, 1},
		5: {1, 2},
		7: {2, 1},
		8: {2, 2},
	}, got)
}

func TestEnumerateNeighborsKeepsCenterOutsideBounds(t *testing.T) {
	nb, _ := GenerateNeighborhood(K2, 1)
	bounds := UniformBounds(1, 0, 0)

	got := EnumerateNeighbors(Configuration{0}, nb, bounds)
	assert.Equal(t, Neighbors{0: {0}}, got)

	got = EnumerateNeighbors(Configuration{5}, nb, bounds)
	assert.Equal(t, Configuration{5}, got[0])
	assert.Len(t, got, 1)
}

func TestEnumerateNeighborsDoesNotAliasPoint(t *testing.T) {
	nb, _ := GenerateNeighborhood(K2, 2)
	point := Configuration{2, 2}
	got := EnumerateNeighbors(point, nb, UniformBounds(2, 0, 4))
	got[0][0] = 99
	assert.Equal(t, Configuration{2, 2}, point)
}
