package model

import (
	"fmt"
	"math"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// SmallBatch is a multiproduct batch plant design problem: two products pass
// through three stages, and the number of identical parallel units per stage
// (1..MaxUnits) is the external variable. Volumes, batch sizes and cycle
// times are log-transformed so all constraints stay convex.
type SmallBatch struct {
	Products []string
	Stages   []string
	MaxUnits int

	Horizon float64            // available production time (h)
	VLow    float64            // smallest unit volume (l)
	VUpp    float64            // largest unit volume (l)
	Demand  map[string]float64 // product -> demand
	Alpha   map[string]float64 // stage -> cost coefficient
	Beta    map[string]float64 // stage -> cost exponent
	Size    map[[2]string]float64
	Time    map[[2]string]float64
}

// NewSmallBatch returns the plant with its reference data.
func NewSmallBatch() *SmallBatch {
	return &SmallBatch{
		Products: []string{"a", "b"},
		Stages:   []string{"mixer", "reactor", "centrifuge"},
		MaxUnits: 3,
		Horizon:  6000,
		VLow:     250,
		VUpp:     2500,
		Demand:   map[string]float64{"a": 200000, "b": 150000},
		Alpha:    map[string]float64{"mixer": 250, "reactor": 500, "centrifuge": 340},
		Beta:     map[string]float64{"mixer": 0.6, "reactor": 0.6, "centrifuge": 0.6},
		Size: map[[2]string]float64{
			{"a", "mixer"}: 2, {"a", "reactor"}: 3, {"a", "centrifuge"}: 4,
			{"b", "mixer"}: 4, {"b", "reactor"}: 6, {"b", "centrifuge"}: 3,
		},
		Time: map[[2]string]float64{
			{"a", "mixer"}: 8, {"a", "reactor"}: 20, {"a", "centrifuge"}: 4,
			{"b", "mixer"}: 10, {"b", "reactor"}: 12, {"b", "centrifuge"}: 3,
		},
	}
}

func (m *SmallBatch) Name() string { return "smallbatch" }

// ExternalVariables has one entry per stage: its number of parallel units.
func (m *SmallBatch) ExternalVariables() []ExternalVariable {
	out := make([]ExternalVariable, len(m.Stages))
	for j, stage := range m.Stages {
		out[j] = ExternalVariable{Name: "units[" + stage + "]", Lower: 1, Upper: m.MaxUnits}
	}
	return out
}

// DefaultStart uses the largest plant, which is always feasible.
func (m *SmallBatch) DefaultStart() dsda.Configuration {
	c := make(dsda.Configuration, len(m.Stages))
	for j := range c {
		c[j] = m.MaxUnits
	}
	return c
}

// Build fixes n_j = log(units_j). Continuous variables are ordered
// v[stage]..., b[product]..., tl[product]....
func (m *SmallBatch) Build(c dsda.Configuration) (*Subproblem, error) {
	nj := len(m.Stages)
	ni := len(m.Products)
	n := make([]float64, nj)
	for j, units := range c {
		if units < 1 || units > m.MaxUnits {
			return nil, fmt.Errorf("stage %s: %d parallel units outside [1, %d]", m.Stages[j], units, m.MaxUnits)
		}
		n[j] = math.Log(float64(units))
	}

	vIdx := func(j int) int { return j }
	bIdx := func(i int) int { return nj + i }
	tlIdx := func(i int) int { return nj + ni + i }

	logVLow, logVUpp := math.Log(m.VLow), math.Log(m.VUpp)
	var maxTime float64
	for _, t := range m.Time {
		maxTime = math.Max(maxTime, t)
	}

	sp := &Subproblem{Model: m.Name(), Configuration: c.Clone()}
	for _, stage := range m.Stages {
		sp.Variables = append(sp.Variables, Variable{Name: "v[" + stage + "]", Lower: logVLow, Upper: logVUpp, Start: logVUpp})
	}
	for _, p := range m.Products {
		sp.Variables = append(sp.Variables, Variable{Name: "b[" + p + "]", Lower: 0, Upper: logVUpp, Start: 0})
	}
	for _, p := range m.Products {
		sp.Variables = append(sp.Variables, Variable{Name: "tl[" + p + "]", Lower: 0, Upper: math.Log(maxTime), Start: math.Log(maxTime)})
	}

	for i, p := range m.Products {
		for j, stage := range m.Stages {
			i, j := i, j
			logS := math.Log(m.Size[[2]string{p, stage}])
			sp.Constraints = append(sp.Constraints, Constraint{
				Name: fmt.Sprintf("vol[%s,%s]", p, stage),
				Func: func(x []float64) float64 { return logS + x[bIdx(i)] - x[vIdx(j)] },
			})
		}
	}
	for i, p := range m.Products {
		for j, stage := range m.Stages {
			i, j := i, j
			logT := math.Log(m.Time[[2]string{p, stage}])
			sp.Constraints = append(sp.Constraints, Constraint{
				Name: fmt.Sprintf("cycle[%s,%s]", p, stage),
				Func: func(x []float64) float64 { return logT - n[j] - x[tlIdx(i)] },
			})
		}
	}
	sp.Constraints = append(sp.Constraints, Constraint{
		Name: "time",
		Func: func(x []float64) float64 {
			total := 0.0
			for i, p := range m.Products {
				total += m.Demand[p] * math.Exp(x[tlIdx(i)]-x[bIdx(i)])
			}
			return total - m.Horizon
		},
	})

	sp.Objective = func(x []float64) float64 {
		cost := 0.0
		for j, stage := range m.Stages {
			cost += m.Alpha[stage] * math.Exp(n[j]+m.Beta[stage]*x[vIdx(j)])
		}
		return cost
	}

	sp.Tighten = func(s *Subproblem) error {
		used := 0.0
		for i, p := range m.Products {
			// the cycle constraints bound tl from below
			tlMin := 0.0
			// the volume constraints bound b from above
			bMax := math.Inf(1)
			for j, stage := range m.Stages {
				tlMin = math.Max(tlMin, math.Log(m.Time[[2]string{p, stage}])-n[j])
				bMax = math.Min(bMax, s.Variables[vIdx(j)].Upper-math.Log(m.Size[[2]string{p, stage}]))
			}
			tl := &s.Variables[tlIdx(i)]
			tl.Lower = math.Max(tl.Lower, tlMin)
			b := &s.Variables[bIdx(i)]
			b.Upper = math.Min(b.Upper, bMax)
			if !s.warm {
				tl.Start = tl.Lower
				b.Start = b.Upper
			}
			used += m.Demand[p] * math.Exp(tl.Lower-b.Upper)
		}
		if used > m.Horizon {
			return fmt.Errorf("production needs at least %.1f h, horizon is %.1f h", used, m.Horizon)
		}
		return nil
	}
	return sp, nil
}
