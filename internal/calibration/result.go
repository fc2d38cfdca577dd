// Package calibration binds datasets to the search driver: it turns the
// proliferation and recruitment tables into search spaces and loss functions,
// runs the fits and packages what a caller needs to report them.
package calibration

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"tamcal/domain/core"
	"tamcal/internal/residual"
	"tamcal/internal/search"

	"gonum.org/v1/gonum/stat"
)

// Problem names
const (
	ProblemPe   = "pe"
	ProblemQian = "qian"
)

// Auxiliary ratios recorded on a run next to the fits
const (
	ExtraSigmaCCL2 = "sigma_CCL2"
	ExtraKappaVEGF = "kappa_VEGF"
)

// Settings holds the knobs shared by both fits
type Settings struct {
	Workers           int     `json:"workers"`
	Seed              int64   `json:"seed"`
	QianSamples       int     `json:"qian_samples"`
	GridScale         float64 `json:"grid_scale"`
	Refine            bool    `json:"refine"`
	RefineEvaluations int     `json:"refine_evaluations,omitempty"`
	MaxEvaluations    int     `json:"max_evaluations,omitempty"`
}

// DefaultSettings matches the reference calibration: full Pe grid, 600
// recruitment draws seeded with 42, no refinement.
func DefaultSettings() Settings {
	return Settings{Seed: 42, QianSamples: 600, GridScale: 1.0}
}

// Curve is one condition's observed and fitted fold-change series
type Curve struct {
	Condition string    `json:"condition"`
	Times     []float64 `json:"times_h"`
	Observed  []float64 `json:"observed"`
	Predicted []float64 `json:"predicted"`
	Weights   []float64 `json:"weights"`
}

// RatioFit pairs a ratio target with the fitted model's value
type RatioFit struct {
	Name      string  `json:"name"`
	Target    float64 `json:"target"`
	Predicted float64 `json:"predicted"`
	Weight    float64 `json:"weight"`
}

// Diagnostics summarizes the residuals of the winning candidate
type Diagnostics struct {
	Points               int     `json:"points"`
	WeightedMeanResidual float64 `json:"weighted_mean_residual"`
	ResidualStdDev       float64 `json:"residual_std_dev"`
}

// FitResult is a completed fit, ready to persist and report
type FitResult struct {
	ID          core.FitID           `json:"id"`
	RunID       core.RunID           `json:"run_id"`
	Problem     string               `json:"problem"`
	Params      map[string]float64   `json:"params"`
	Loss        float64              `json:"loss"`
	Evaluated   int                  `json:"evaluated"`
	Excluded    int                  `json:"excluded"`
	Total       int                  `json:"total"`
	Refined     bool                 `json:"refined"`
	SpaceHash   core.Hash            `json:"space_hash"`
	Curves      []Curve              `json:"curves,omitempty"`
	Ratios      []RatioFit           `json:"ratios,omitempty"`
	Dropped     []residual.Unmatched `json:"dropped,omitempty"`
	Diagnostics Diagnostics          `json:"diagnostics"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Run is one end-to-end calibration: both fits, the auxiliary estimates
// read alongside them and the demo built on the fits.
type Run struct {
	ID        core.RunID               `json:"id"`
	Settings  Settings                 `json:"settings"`
	Pe        *FitResult               `json:"pe"`
	Qian      *FitResult               `json:"qian"`
	Growth    *residual.GrowthEstimate `json:"growth,omitempty"`
	Extras    map[string]float64       `json:"extras,omitempty"`
	Demo      *DemoResult              `json:"demo,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// Fits returns the fits present in the run, pe first
func (r *Run) Fits() []*FitResult {
	var out []*FitResult
	for _, f := range []*FitResult{r.Pe, r.Qian} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Summary flattens the fitted parameters with each ratio's model value
// stored under "<name>_hat".
func (r *FitResult) Summary() map[string]float64 {
	out := make(map[string]float64, len(r.Params)+len(r.Ratios))
	for k, v := range r.Params {
		out[k] = v
	}
	for _, rf := range r.Ratios {
		out[rf.Name+"_hat"] = rf.Predicted
	}
	return out
}

// Param returns a fitted value, or an error naming the missing parameter
func (r *FitResult) Param(name string) (float64, error) {
	v, ok := r.Params[name]
	if !ok {
		return 0, fmt.Errorf("%s fit has no parameter %q: %w", r.Problem, name, core.ErrNotFound)
	}
	return v, nil
}

// runSearch scores the space and optionally polishes the winner
func runSearch(ctx context.Context, problem string, space search.Space, loss search.Loss, s Settings) (*search.Result, error) {
	res, err := search.Run(ctx, problem, space, loss, search.Options{
		Workers:        s.Workers,
		MaxEvaluations: s.MaxEvaluations,
	})
	if err != nil {
		return nil, err
	}
	if !s.Refine {
		return res, nil
	}
	return search.Refine(ctx, space, loss, res, search.RefineOptions{MaxEvaluations: s.RefineEvaluations})
}

func newFitResult(problem string, res *search.Result) *FitResult {
	return &FitResult{
		ID:        core.NewFitID(),
		Problem:   problem,
		Params:    res.Best,
		Loss:      res.Loss,
		Evaluated: res.Evaluated,
		Excluded:  res.Excluded,
		Total:     res.Total,
		Refined:   res.Refined,
		SpaceHash: res.SpaceHash,
		CreatedAt: time.Now().UTC(),
	}
}

// diagnose computes the weighted residual summary over every curve point
func diagnose(curves []Curve, ratios []RatioFit) Diagnostics {
	var resid, w []float64
	for _, c := range curves {
		for i := range c.Observed {
			resid = append(resid, c.Predicted[i]-c.Observed[i])
			w = append(w, c.Weights[i])
		}
	}
	for _, r := range ratios {
		resid = append(resid, r.Predicted-r.Target)
		w = append(w, r.Weight)
	}
	if len(resid) == 0 {
		return Diagnostics{}
	}
	d := Diagnostics{Points: len(resid), WeightedMeanResidual: stat.Mean(resid, w)}
	if len(resid) > 1 {
		d.ResidualStdDev = stat.StdDev(resid, w)
	}
	if math.IsNaN(d.WeightedMeanResidual) || math.IsNaN(d.ResidualStdDev) {
		return Diagnostics{Points: len(resid)}
	}
	log.Printf("[Calibration] residuals: n=%d weighted mean %.4g", d.Points, d.WeightedMeanResidual)
	return d
}
