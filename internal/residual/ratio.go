package residual

import (
	"fmt"
	"math"

	"tamcal/domain/core"

	"github.com/montanaflynn/stats"
)

// RatioTarget is a scalar target such as an endpoint ratio between two
// conditions, compared once per dataset rather than per time point.
type RatioTarget struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Ratio builds a unit-weight target as mean(numerator)/mean(denominator).
// Either side empty, or a non-positive denominator mean, makes the target
// undefined and is reported as a data shape error.
func Ratio(name string, numerator, denominator []float64) (RatioTarget, error) {
	if len(numerator) == 0 {
		return RatioTarget{}, core.NewDataShapeError(name, "numerator rows")
	}
	if len(denominator) == 0 {
		return RatioTarget{}, core.NewDataShapeError(name, "denominator rows")
	}

	num, err := stats.Mean(stats.Float64Data(numerator))
	if err != nil {
		return RatioTarget{}, fmt.Errorf("%s numerator mean: %w", name, err)
	}
	den, err := stats.Mean(stats.Float64Data(denominator))
	if err != nil {
		return RatioTarget{}, fmt.Errorf("%s denominator mean: %w", name, err)
	}
	if !(den > 0) || math.IsNaN(num) {
		return RatioTarget{}, &core.DataShapeError{
			Table:   name,
			Missing: []string{fmt.Sprintf("positive denominator mean (got %g)", den)},
		}
	}

	return RatioTarget{Name: name, Value: num / den, Weight: 1.0}, nil
}
