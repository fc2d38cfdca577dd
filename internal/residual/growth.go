package residual

import (
	"fmt"
	"math"

	"tamcal/domain/core"

	"gonum.org/v1/gonum/stat"
)

// GrowthEstimate compares exponential growth rates of a treated and a
// control time course.
type GrowthEstimate struct {
	ControlRate float64 `json:"r_ctrl_per_day"`
	TreatedRate float64 `json:"r_treated_per_day"`
	DeltaRate   float64 `json:"delta_r_per_day"`
	Fold72h     float64 `json:"fold_72h"`
}

// GrowthRate fits log(value) = a + r*t by least squares and returns r per
// day. Times above 10 are taken to be hours. Values are clipped at 1e-9
// before the log.
func GrowthRate(times, values []float64) (float64, error) {
	if len(times) != len(values) {
		return 0, core.NewConfigError("growth", fmt.Sprintf("%d times for %d values", len(times), len(values)))
	}
	if len(times) < 2 {
		return math.NaN(), core.NewDataShapeError("growth", "at least two time points")
	}

	days := toDays(times)
	logs := make([]float64, len(values))
	for i, v := range values {
		logs[i] = math.Log(math.Max(v, 1e-9))
	}

	_, slope := stat.LinearRegression(days, logs, nil, false)
	return slope, nil
}

// CompareGrowth estimates the rate shift of a treated course over control
// and the fold difference that shift implies over 72 hours.
func CompareGrowth(ctrlTimes, ctrlValues, treatedTimes, treatedValues []float64) (GrowthEstimate, error) {
	rc, err := GrowthRate(ctrlTimes, ctrlValues)
	if err != nil {
		return GrowthEstimate{}, fmt.Errorf("control growth: %w", err)
	}
	rt, err := GrowthRate(treatedTimes, treatedValues)
	if err != nil {
		return GrowthEstimate{}, fmt.Errorf("treated growth: %w", err)
	}
	delta := rt - rc
	return GrowthEstimate{
		ControlRate: rc,
		TreatedRate: rt,
		DeltaRate:   delta,
		Fold72h:     math.Exp(delta * 3.0),
	}, nil
}

func toDays(times []float64) []float64 {
	maxT := math.Inf(-1)
	for _, t := range times {
		maxT = math.Max(maxT, t)
	}
	out := make([]float64, len(times))
	for i, t := range times {
		if maxT > 10 {
			out[i] = t / 24.0
		} else {
			out[i] = t
		}
	}
	return out
}
