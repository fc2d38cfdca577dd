package model

import "math"

// Epsilon is added to every saturating denominator so x/(x+K) stays defined
// when x and K are both zero.
const Epsilon = 1e-12

// State is an ordered vector of non-negative biological quantities.
type State []float64

// Clone returns an independent copy
func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsFinite reports whether every component is a finite number
func (s State) IsFinite() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is an autonomous or time-dependent ODE right-hand side dy/dt = f(t, y).
type System interface {
	Derive(t float64, y State) State
	Dim() int
}

// SequentialSystem can evaluate one component of the derivative at a time.
// Integrators use it to update components in order, letting component i see
// components < i already advanced within the same step.
type SequentialSystem interface {
	System
	Component(i int, t float64, y State) float64
}

// Saturation returns x/(x+k+Epsilon).
func Saturation(x, k float64) float64 {
	return x / (x + k + Epsilon)
}
