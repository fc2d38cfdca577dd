package integrate

import (
	"fmt"

	"tamcal/domain/core"
	"tamcal/domain/model"
)

// RK4 integrates sys with the classical fourth-order Runge-Kutta scheme on n
// uniformly spaced points covering [t0, t1]. After every step each component
// is clamped to be >= 0. n == 1 returns the initial state unchanged.
func RK4(sys model.System, y0 model.State, t0, t1 float64, n int) (Trajectory, error) {
	if n < 1 {
		return Trajectory{}, core.NewConfigError("points", fmt.Sprintf("need at least one point, got %d", n))
	}
	if n > 1 && !(t1 > t0) {
		return Trajectory{}, core.NewConfigError("span", fmt.Sprintf("end %g must be after start %g", t1, t0))
	}
	return RK4On(sys, y0, Linspace(t0, t1, n), FloorZero)
}

// RK4On applies the RK4 step between consecutive supplied times.
func RK4On(sys model.System, y0 model.State, times []float64, floor float64) (Trajectory, error) {
	if err := validateTimes(times); err != nil {
		return Trajectory{}, err
	}
	if err := validateInitial(sys, y0); err != nil {
		return Trajectory{}, err
	}

	tr := Trajectory{Times: append([]float64(nil), times...), States: make([]model.State, len(times))}
	tr.States[0] = y0.Clone()

	for i := 1; i < len(times); i++ {
		next := rk4Step(sys, times[i-1], times[i]-times[i-1], tr.States[i-1])
		if !next.IsFinite() {
			return tr, core.NewInstabilityError(i, times[i])
		}
		clamp(next, floor)
		tr.States[i] = next
	}
	return tr, nil
}

func rk4Step(sys model.System, t, h float64, y model.State) model.State {
	n := len(y)
	tmp := make(model.State, n)

	k1 := sys.Derive(t, y)
	for i := range y {
		tmp[i] = y[i] + 0.5*h*k1[i]
	}
	k2 := sys.Derive(t+0.5*h, tmp)
	for i := range y {
		tmp[i] = y[i] + 0.5*h*k2[i]
	}
	k3 := sys.Derive(t+0.5*h, tmp)
	for i := range y {
		tmp[i] = y[i] + h*k3[i]
	}
	k4 := sys.Derive(t+h, tmp)

	out := make(model.State, n)
	for i := range y {
		out[i] = y[i] + h/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}
