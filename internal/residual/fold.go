package residual

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"tamcal/domain/core"
)

const (
	// WeightEpsilon keeps 1/SEM^2 finite when the propagated SEM is zero
	WeightEpsilon = 1e-9
	// WeightFloor is the smallest weight any point can carry
	WeightFloor = 1.0
)

// Measurement is one tabulated mean +- standard error. SEM is NaN when the
// table did not report one.
type Measurement struct {
	Time      float64
	Condition string
	Mean      float64
	SEM       float64
}

// Target is a fold-change observation with its inverse-variance weight.
// RelSEM is NaN when the uncertainty could not be propagated.
type Target struct {
	Time      float64 `json:"time_h"`
	Condition string  `json:"condition"`
	RelFold   float64 `json:"rel_fold"`
	RelSEM    float64 `json:"rel_sem"`
	Weight    float64 `json:"weight"`
}

// Unmatched records a measurement left out of the target set
type Unmatched struct {
	Time      float64 `json:"time_h"`
	Condition string  `json:"condition"`
	Reason    string  `json:"reason"`
}

// FoldTargets is the relative fold-change target set for one dataset
type FoldTargets struct {
	Control string
	Targets []Target
	Dropped []Unmatched
}

// RelativeFold divides every condition's mean by the control mean at the same
// time. Times with no control row are dropped (never imputed) and listed in
// Dropped, as are points whose control mean is zero. The control condition
// is matched case-insensitively.
func RelativeFold(ms []Measurement, control string) (*FoldTargets, error) {
	if len(ms) == 0 {
		return nil, core.NewDataShapeError("measurements", "rows")
	}

	byTime := make(map[float64]map[string]Measurement)
	var order []string
	seen := make(map[string]bool)
	hasControl := false
	for _, m := range ms {
		if byTime[m.Time] == nil {
			byTime[m.Time] = make(map[string]Measurement)
		}
		if _, dup := byTime[m.Time][m.Condition]; dup {
			continue
		}
		byTime[m.Time][m.Condition] = m
		if !seen[m.Condition] {
			seen[m.Condition] = true
			order = append(order, m.Condition)
		}
		if isCondition(m.Condition, control) {
			hasControl = true
		}
	}
	if !hasControl {
		return nil, core.NewDataShapeError("measurements", fmt.Sprintf("condition %q", control))
	}
	sort.Strings(order)

	times := make([]float64, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Float64s(times)

	out := &FoldTargets{Control: control}
	for _, t := range times {
		rows := byTime[t]
		ctrl, ok := findCondition(rows, order, control)
		if !ok {
			for _, cond := range order {
				if _, present := rows[cond]; present {
					out.Dropped = append(out.Dropped, Unmatched{Time: t, Condition: cond, Reason: "no control at this time"})
				}
			}
			continue
		}

		for _, cond := range order {
			m, present := rows[cond]
			if !present {
				continue
			}
			if ctrl.Mean == 0 || math.IsNaN(ctrl.Mean) || math.IsNaN(m.Mean) {
				out.Dropped = append(out.Dropped, Unmatched{Time: t, Condition: cond, Reason: "undefined fold-change"})
				continue
			}

			rel := m.Mean / ctrl.Mean
			if isCondition(cond, control) {
				rel = 1.0
			}
			relSEM := PropagateSEM(rel, m.Mean, m.SEM, ctrl.Mean, ctrl.SEM)
			out.Targets = append(out.Targets, Target{
				Time:      t,
				Condition: cond,
				RelFold:   rel,
				RelSEM:    relSEM,
				Weight:    Weight(relSEM),
			})
		}
	}
	return out, nil
}

// PropagateSEM returns rel*sqrt((s/m)^2 + (sc/mc)^2), or NaN when either SEM
// is missing or either mean is not positive.
func PropagateSEM(rel, mean, sem, ctrlMean, ctrlSEM float64) float64 {
	if math.IsNaN(sem) || math.IsNaN(ctrlSEM) || !(mean > 0) || !(ctrlMean > 0) {
		return math.NaN()
	}
	a := sem / mean
	b := ctrlSEM / ctrlMean
	return rel * math.Sqrt(a*a+b*b)
}

// Weight is 1/(relSEM^2 + eps), or 1 when relSEM is undefined, floored at 1.
// A very noisy point is down-weighted to the unweighted baseline, never to 0.
func Weight(relSEM float64) float64 {
	w := 1.0
	if !math.IsNaN(relSEM) {
		w = 1.0 / (relSEM*relSEM + WeightEpsilon)
	}
	if math.IsNaN(w) || w < WeightFloor {
		w = WeightFloor
	}
	return w
}

// Conditions lists the non-control conditions present in the targets, sorted
func (f *FoldTargets) Conditions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range f.Targets {
		if isCondition(t.Condition, f.Control) || seen[t.Condition] {
			continue
		}
		seen[t.Condition] = true
		out = append(out, t.Condition)
	}
	sort.Strings(out)
	return out
}

// Times lists every time that has at least one target, ascending
func (f *FoldTargets) Times() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, t := range f.Targets {
		if !seen[t.Time] {
			seen[t.Time] = true
			out = append(out, t.Time)
		}
	}
	sort.Float64s(out)
	return out
}

// Series returns one condition's targets ordered by time
func (f *FoldTargets) Series(condition string) []Target {
	var out []Target
	for _, t := range f.Targets {
		if t.Condition == condition {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func isCondition(cond, want string) bool {
	return strings.EqualFold(strings.TrimSpace(cond), strings.TrimSpace(want))
}

func findCondition(rows map[string]Measurement, order []string, want string) (Measurement, bool) {
	for _, cond := range order {
		if m, ok := rows[cond]; ok && isCondition(cond, want) {
			return m, true
		}
	}
	return Measurement{}, false
}
