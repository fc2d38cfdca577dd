// Package search fits parameters by scoring every candidate of a declared
// search space against a pure loss and keeping the lowest.
package search

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"tamcal/domain/core"

	"gonum.org/v1/gonum/floats"
)

// Mode selects how a space is enumerated
type Mode string

const (
	ModeGrid   Mode = "grid"
	ModeRandom Mode = "random"
)

// maxCandidates bounds the grid size so index arithmetic cannot overflow
const maxCandidates = 1 << 40

// Dimension is one searched parameter with an inclusive range. Points is the
// number of evenly spaced grid values and is ignored in random mode.
type Dimension struct {
	Name   string  `json:"name"`
	Lo     float64 `json:"lo"`
	Hi     float64 `json:"hi"`
	Points int     `json:"points,omitempty"`
}

// Space declares what a fit searches over. Fixed parameters are passed to the
// loss unchanged for every candidate.
type Space struct {
	Dims    []Dimension        `json:"dims"`
	Fixed   map[string]float64 `json:"fixed,omitempty"`
	Mode    Mode               `json:"mode"`
	Samples int                `json:"samples,omitempty"`
	Seed    int64              `json:"seed,omitempty"`
}

// Validate reports the first invalid definition as a core.ErrConfig error
func (s Space) Validate() error {
	if s.Mode != ModeGrid && s.Mode != ModeRandom {
		return core.NewConfigError("mode", fmt.Sprintf("unknown search mode %q", s.Mode))
	}
	if len(s.Dims) == 0 {
		return core.NewConfigError("dims", "no searched parameters")
	}

	names := make(map[string]bool, len(s.Dims))
	for _, d := range s.Dims {
		if d.Name == "" {
			return core.NewConfigError("dims", "dimension without a name")
		}
		if names[d.Name] {
			return core.NewConfigError(d.Name, "declared twice")
		}
		names[d.Name] = true
		if _, clash := s.Fixed[d.Name]; clash {
			return core.NewConfigError(d.Name, "both searched and fixed")
		}
		if math.IsNaN(d.Lo) || math.IsNaN(d.Hi) || math.IsInf(d.Lo, 0) || math.IsInf(d.Hi, 0) {
			return core.NewConfigError(d.Name, "non-finite bound")
		}
		if d.Lo > d.Hi {
			return core.NewConfigError(d.Name, fmt.Sprintf("lower bound %g > upper bound %g", d.Lo, d.Hi))
		}
		if s.Mode == ModeGrid {
			if d.Points <= 0 {
				return core.NewConfigError(d.Name, fmt.Sprintf("non-positive point count %d", d.Points))
			}
			if d.Lo == d.Hi && d.Points > 1 {
				return core.NewConfigError(d.Name, "empty range for more than one point")
			}
		} else if d.Lo == d.Hi {
			return core.NewConfigError(d.Name, "empty range")
		}
	}

	if s.Mode == ModeRandom && s.Samples <= 0 {
		return core.NewConfigError("samples", fmt.Sprintf("non-positive sampling budget %d", s.Samples))
	}
	if s.Mode == ModeGrid {
		size := 1
		for _, d := range s.Dims {
			if size > maxCandidates/d.Points {
				return core.NewConfigError("dims", "grid too large")
			}
			size *= d.Points
		}
	}
	return nil
}

// Size is the number of candidates the space enumerates
func (s Space) Size() int {
	if s.Mode == ModeRandom {
		return s.Samples
	}
	size := 1
	for _, d := range s.Dims {
		size *= d.Points
	}
	return size
}

// Names returns the searched parameter names in declaration order
func (s Space) Names() []string {
	out := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		out[i] = d.Name
	}
	return out
}

// Hash fingerprints everything that determines the enumeration
func (s Space) Hash() core.Hash {
	fields := map[string]interface{}{
		"mode":    s.Mode,
		"samples": s.Samples,
		"seed":    s.Seed,
	}
	for i, d := range s.Dims {
		fields[fmt.Sprintf("dim%02d", i)] = fmt.Sprintf("%s[%g,%g]x%d", d.Name, d.Lo, d.Hi, d.Points)
	}
	keys := make([]string, 0, len(s.Fixed))
	for k := range s.Fixed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields["fixed."+k] = s.Fixed[k]
	}
	return core.ComputeSpaceHash(fields)
}

// Candidate is one parameter vector, aligned with the space's dimensions.
// Index is its position in the deterministic enumeration order.
type Candidate struct {
	Index  int
	Values []float64
	layout *layout
}

// Value returns a searched or fixed parameter, NaN when the name is unknown
func (c Candidate) Value(name string) float64 {
	if i, ok := c.layout.index[name]; ok {
		return c.Values[i]
	}
	if v, ok := c.layout.fixed[name]; ok {
		return v
	}
	return math.NaN()
}

// Map returns searched and fixed parameters as flat named fields
func (c Candidate) Map() map[string]float64 {
	out := make(map[string]float64, len(c.Values)+len(c.layout.fixed))
	for k, v := range c.layout.fixed {
		out[k] = v
	}
	for i, name := range c.layout.names {
		out[name] = c.Values[i]
	}
	return out
}

// layout is the read-only view of a space shared by every candidate
type layout struct {
	names []string
	index map[string]int
	fixed map[string]float64
}

func newLayout(s Space) *layout {
	l := &layout{names: s.Names(), index: make(map[string]int, len(s.Dims)), fixed: make(map[string]float64, len(s.Fixed))}
	for i, name := range l.names {
		l.index[name] = i
	}
	for k, v := range s.Fixed {
		l.fixed[k] = v
	}
	return l
}

// Enumerator yields the candidates of a validated space by index, so callers
// can evaluate any slice of the order independently.
type Enumerator struct {
	space  Space
	layout *layout
	axes   [][]float64 // grid values per dimension
	draws  [][]float64 // pre-drawn random samples
	size   int
}

// NewEnumerator validates s and prepares its candidates. Random samples are
// drawn up front, in sample-then-dimension order, from a generator seeded
// with s.Seed, so the same seed always yields the same sequence.
func NewEnumerator(s Space) (*Enumerator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	e := &Enumerator{space: s, layout: newLayout(s), size: s.Size()}

	switch s.Mode {
	case ModeGrid:
		e.axes = make([][]float64, len(s.Dims))
		for i, d := range s.Dims {
			e.axes[i] = GridPoints(d)
		}
	case ModeRandom:
		rng := rand.New(rand.NewSource(s.Seed))
		e.draws = make([][]float64, s.Samples)
		for k := range e.draws {
			v := make([]float64, len(s.Dims))
			for i, d := range s.Dims {
				v[i] = d.Lo + (d.Hi-d.Lo)*rng.Float64()
			}
			e.draws[k] = v
		}
	}
	return e, nil
}

// Len is the number of candidates
func (e *Enumerator) Len() int {
	return e.size
}

// At returns candidate i. Grid candidates follow the Cartesian product with
// the last dimension varying fastest.
func (e *Enumerator) At(i int) Candidate {
	if e.space.Mode == ModeRandom {
		return Candidate{Index: i, Values: append([]float64(nil), e.draws[i]...), layout: e.layout}
	}
	values := make([]float64, len(e.axes))
	rem := i
	for d := len(e.axes) - 1; d >= 0; d-- {
		n := len(e.axes[d])
		values[d] = e.axes[d][rem%n]
		rem /= n
	}
	return Candidate{Index: i, Values: values, layout: e.layout}
}

// FromValues builds an out-of-order candidate (Index -1) on this space
func (e *Enumerator) FromValues(values []float64) Candidate {
	return Candidate{Index: -1, Values: append([]float64(nil), values...), layout: e.layout}
}

// GridPoints returns the evenly spaced values of one grid dimension
func GridPoints(d Dimension) []float64 {
	if d.Points == 1 {
		return []float64{d.Lo}
	}
	return floats.Span(make([]float64, d.Points), d.Lo, d.Hi)
}
