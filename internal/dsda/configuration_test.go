package dsda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationArithmetic(t *testing.T) {
	c := Configuration{2, 3}
	assert.Equal(t, Configuration{3, 2}, c.Add(Direction{1, -1}))
	assert.Equal(t, Configuration{2, 3}, c, "Add must not mutate the receiver")
	assert.Equal(t, 2, c.SquaredDistance(Configuration{3, 2}))
	assert.Equal(t, "2,3", c.Key())
	assert.Equal(t, "[2,3]", c.String())
	assert.True(t, c.Equal(Configuration{2, 3}))
	assert.False(t, c.Equal(Configuration{2, 3, 0}))
}

func TestParseConfiguration(t *testing.T) {
	c, err := ParseConfiguration("[3, 2,1]")
	require.NoError(t, err)
	assert.Equal(t, Configuration{3, 2, 1}, c)

	_, err = ParseConfiguration("")
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = ParseConfiguration("1,x")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBoundsValidate(t *testing.T) {
	assert.NoError(t, UniformBounds(3, 1, 3).Validate())
	assert.Error(t, NewBounds([]int{1, 2}, []int{3}).Validate())
	assert.Error(t, NewBounds([]int{4}, []int{3}).Validate())
	assert.Error(t, Bounds{}.Validate())
}

func TestBoundsFromMaps(t *testing.T) {
	b, err := BoundsFromMaps(map[int]int{1: 1, 2: 0}, map[int]int{1: 3, 2: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, b.Lower)
	assert.Equal(t, []int{3, 4}, b.Upper)

	_, err = BoundsFromMaps(map[int]int{1: 1, 3: 1}, map[int]int{1: 3, 2: 3})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBoundsContainsAndEach(t *testing.T) {
	b := NewBounds([]int{1, 0}, []int{2, 1})
	assert.True(t, b.Contains(Configuration{2, 0}))
	assert.False(t, b.Contains(Configuration{3, 0}))
	assert.False(t, b.Contains(Configuration{1}))
	assert.Equal(t, 4, b.Size())

	var got []Configuration
	b.Each(func(c Configuration) bool {
		got = append(got, c)
		return true
	})
	assert.Equal(t, configs([]int{1, 0}, []int{1, 1}, []int{2, 0}, []int{2, 1}), got)

	count := 0
	b.Each(func(Configuration) bool {
		count++
		return count < 2
	})
	assert.Equal(t, 2, count)
}

func TestEvaluatedSet(t *testing.T) {
	s := NewEvaluatedSet()
	assert.False(t, s.Contains(Configuration{1, 2}))
	s.Add(Configuration{1, 2})
	s.Add(Configuration{1, 2})
	assert.True(t, s.Contains(Configuration{1, 2}))
	assert.False(t, s.Contains(Configuration{2, 1}))
	assert.Equal(t, 1, s.Len())
}

func TestSearchConfigAccepts(t *testing.T) {
	cfg := DefaultSearchConfig()

	tests := []struct {
		name            string
		candidate, best float64
		want            bool
	}{
		{"strict improvement", 9, 10, true},
		{"equal", 10, 10, true},
		{"within absolute tolerance", 10 + 5e-6, 10, true},
		{"within relative band", 1000.5, 1000, true},
		{"outside both", 11, 10, false},
		{"anything beats infinity", 1e12, posInf(), true},
		{"zero incumbent", 1e-4, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.accepts(tt.candidate, tt.best))
		})
	}
}

func TestSearchConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSearchConfig().Validate())

	cfg := DefaultSearchConfig()
	cfg.Topology = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidTopology))

	cfg = DefaultSearchConfig()
	cfg.TimeLimit = 0
	assert.True(t, errors.Is(cfg.Validate(), ErrConfiguration))

	cfg = DefaultSearchConfig()
	cfg.Epsilon = 0
	assert.Error(t, cfg.Validate())
}
