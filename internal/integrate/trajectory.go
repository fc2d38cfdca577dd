// Package integrate advances model states across time with fixed-step schemes.
//
// Both schemes clamp every component to a floor after each step so that
// biological quantities never go negative, and both report
// core.ErrNumericInstability as soon as a state stops being finite.
package integrate

import (
	"fmt"

	"tamcal/domain/core"
	"tamcal/domain/model"

	"gonum.org/v1/gonum/floats"
)

// Floors used by the calibration and demonstration models
const (
	FloorZero          = 0.0
	FloorProliferation = 1e-12
)

// Point is one (time, state) sample of a trajectory
type Point struct {
	Time  float64     `json:"t"`
	State model.State `json:"y"`
}

// Trajectory holds states aligned with their sample times
type Trajectory struct {
	Times  []float64
	States []model.State
}

// Len returns the number of samples
func (tr Trajectory) Len() int {
	return len(tr.Times)
}

// Final returns the last state
func (tr Trajectory) Final() model.State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

// Component extracts one state variable as a series
func (tr Trajectory) Component(i int) []float64 {
	out := make([]float64, len(tr.States))
	for k, s := range tr.States {
		out[k] = s[i]
	}
	return out
}

// Points returns the trajectory as ordered (time, state) pairs
func (tr Trajectory) Points() []Point {
	out := make([]Point, len(tr.Times))
	for k := range tr.Times {
		out[k] = Point{Time: tr.Times[k], State: tr.States[k]}
	}
	return out
}

// Linspace returns n evenly spaced values covering [lo, hi]
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

func validateTimes(times []float64) error {
	if len(times) == 0 {
		return core.NewConfigError("times", "empty time sequence")
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return core.NewConfigError("times", fmt.Sprintf("not strictly increasing at index %d (%g after %g)", i, times[i], times[i-1]))
		}
	}
	return nil
}

func validateInitial(sys model.System, y0 model.State) error {
	if len(y0) != sys.Dim() {
		return core.NewConfigError("y0", fmt.Sprintf("dimension %d, system expects %d", len(y0), sys.Dim()))
	}
	if !y0.IsFinite() {
		return core.NewInstabilityError(0, 0)
	}
	return nil
}

func clamp(y model.State, floor float64) {
	for i, v := range y {
		if v < floor {
			y[i] = floor
		}
	}
}
