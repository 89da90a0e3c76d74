package dsda

// EvaluatedSet records configurations already sent to the oracle during a
// run. It only grows.
type EvaluatedSet struct {
	seen map[string]struct{}
}

// NewEvaluatedSet returns an empty set.
func NewEvaluatedSet() *EvaluatedSet {
	return &EvaluatedSet{seen: make(map[string]struct{})}
}

// Add inserts c. Adding an existing configuration is a no-op.
func (s *EvaluatedSet) Add(c Configuration) {
	s.seen[c.Key()] = struct{}{}
}

// Contains reports whether c was evaluated before.
func (s *EvaluatedSet) Contains(c Configuration) bool {
	_, ok := s.seen[c.Key()]
	return ok
}

// Len returns the number of distinct configurations.
func (s *EvaluatedSet) Len() int {
	return len(s.seen)
}

// Route is the ordered list of accepted configurations of a run.
type Route []Configuration

// Last returns the most recently accepted configuration.
func (r Route) Last() Configuration {
	if len(r) == 0 {
		return nil
	}
	return r[len(r)-1]
}

// Clone deep-copies the route.
func (r Route) Clone() Route {
	out := make(Route, len(r))
	for i, c := range r {
		out[i] = c.Clone()
	}
	return out
}
