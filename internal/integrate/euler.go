package integrate

import (
	"tamcal/domain/core"
	"tamcal/domain/model"
)

// Euler integrates sys with the explicit first-order scheme on the supplied
// times, which may be irregularly spaced:
//
//	y[i] = max(floor, y[i-1] + (t[i]-t[i-1]) * f(t[i-1], y[i-1]))
//
// A single time returns the initial state unchanged.
func Euler(sys model.System, y0 model.State, times []float64, floor float64) (Trajectory, error) {
	if err := validateTimes(times); err != nil {
		return Trajectory{}, err
	}
	if err := validateInitial(sys, y0); err != nil {
		return Trajectory{}, err
	}

	tr := Trajectory{Times: append([]float64(nil), times...), States: make([]model.State, len(times))}
	tr.States[0] = y0.Clone()

	for i := 1; i < len(times); i++ {
		prev := tr.States[i-1]
		dt := times[i] - times[i-1]
		rate := sys.Derive(times[i-1], prev)

		next := make(model.State, len(prev))
		for k := range prev {
			next[k] = prev[k] + dt*rate[k]
		}
		if !next.IsFinite() {
			return tr, core.NewInstabilityError(i, times[i])
		}
		clamp(next, floor)
		tr.States[i] = next
	}
	return tr, nil
}

// EulerSequential is Euler with components advanced in index order within a
// step: component k's rate is evaluated on a state whose components < k have
// already been advanced and clamped.
func EulerSequential(sys model.SequentialSystem, y0 model.State, times []float64, floor float64) (Trajectory, error) {
	if err := validateTimes(times); err != nil {
		return Trajectory{}, err
	}
	if err := validateInitial(sys, y0); err != nil {
		return Trajectory{}, err
	}

	tr := Trajectory{Times: append([]float64(nil), times...), States: make([]model.State, len(times))}
	tr.States[0] = y0.Clone()

	for i := 1; i < len(times); i++ {
		dt := times[i] - times[i-1]
		y := tr.States[i-1].Clone()
		for k := range y {
			v := y[k] + dt*sys.Component(k, times[i-1], y)
			if v < floor {
				v = floor
			}
			y[k] = v
		}
		if !y.IsFinite() {
			return tr, core.NewInstabilityError(i, times[i])
		}
		tr.States[i] = y
	}
	return tr, nil
}
