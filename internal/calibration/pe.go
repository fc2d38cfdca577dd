package calibration

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"tamcal/domain/core"
	"tamcal/domain/model"
	"tamcal/internal/integrate"
	"tamcal/internal/residual"
	"tamcal/internal/search"
)

// Pe stimulus parameters searched alongside the proliferation law
const (
	ParamSM2   = "s_M2"
	ParamSTAM  = "s_TAM"
	ParamTheta = "theta"
)

// Fixed M1 brake used for every Pe fit
const (
	PeGamma1 = 0.2
	PeK1     = 1.0
)

// PeControl is the reference condition of the proliferation table
const PeControl = "Control"

// PeGrid is the proliferation search grid. scale multiplies the number of
// points per dimension (1 is the full grid); every dimension keeps at least
// two points.
func PeGrid(scale float64) search.Space {
	if !(scale > 0) {
		scale = 1
	}
	pts := func(n int) int {
		return max(2, int(math.Round(float64(n)*scale)))
	}
	return search.Space{
		Mode: search.ModeGrid,
		Dims: []search.Dimension{
			{Name: model.ParamR0, Lo: math.Ln2 / 40, Hi: math.Ln2 / 18, Points: pts(12)},
			{Name: model.ParamGamma2, Lo: 0, Hi: 3, Points: pts(13)},
			{Name: model.ParamK2, Lo: 0.05, Hi: 10, Points: pts(12)},
			{Name: ParamSM2, Lo: 0.1, Hi: 4, Points: pts(12)},
			{Name: ParamSTAM, Lo: 0.1, Hi: 4, Points: pts(12)},
			{Name: ParamTheta, Lo: 0.1, Hi: 0.7, Points: pts(7)},
		},
		Fixed: map[string]float64{model.ParamGamma1: PeGamma1, model.ParamK1: PeK1},
	}
}

// PeScenario maps a proliferation condition onto macrophage stimuli:
// the control gets none, "M2" gets pure M2 stimulus and any other condition
// is treated as a TAM mix split by theta.
func PeScenario(condition string, values map[string]float64) model.ProliferationScenario {
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case strings.ToLower(PeControl):
		return model.ProliferationScenario{Name: condition, C0: 1}
	case "m2":
		return model.ProliferationScenario{Name: condition, SM2: values[ParamSM2], C0: 1}
	}
	theta, sTAM := values[ParamTheta], values[ParamSTAM]
	return model.ProliferationScenario{Name: condition, SM1: theta * sTAM, SM2: (1 - theta) * sTAM, C0: 1}
}

// peSeries is one condition's observations aligned to the simulation times
type peSeries struct {
	condition string
	index     []int
	times     []float64
	obs       []float64
	weights   []float64
}

// PeProblem scores proliferation candidates against relative fold-change
// targets. It is read-only after construction and safe for concurrent use.
type PeProblem struct {
	targets *residual.FoldTargets
	times   []float64
	series  []peSeries
}

// NewPeProblem builds fold-change targets from raw measurements. The
// simulation times are every time that kept at least one target.
func NewPeProblem(ms []residual.Measurement) (*PeProblem, error) {
	targets, err := residual.RelativeFold(ms, PeControl)
	if err != nil {
		return nil, fmt.Errorf("pe targets: %w", err)
	}
	p := &PeProblem{targets: targets, times: targets.Times()}

	pos := make(map[float64]int, len(p.times))
	for i, t := range p.times {
		pos[t] = i
	}
	for _, cond := range targets.Conditions() {
		s := peSeries{condition: cond}
		for _, tg := range targets.Series(cond) {
			s.index = append(s.index, pos[tg.Time])
			s.times = append(s.times, tg.Time)
			s.obs = append(s.obs, tg.RelFold)
			s.weights = append(s.weights, tg.Weight)
		}
		p.series = append(p.series, s)
	}
	if len(p.series) == 0 {
		missing := make([]string, 0, len(targets.Dropped))
		for _, d := range targets.Dropped {
			missing = append(missing, fmt.Sprintf("%s@%g", d.Condition, d.Time))
		}
		if len(missing) == 0 {
			missing = append(missing, "treated condition")
		}
		return nil, &core.DataShapeError{Table: "pe", Missing: missing}
	}
	if len(targets.Dropped) > 0 {
		log.Printf("[Calibration] pe: %d measurements dropped without a usable control", len(targets.Dropped))
	}
	return p, nil
}

// Times returns the simulation times
func (p *PeProblem) Times() []float64 { return p.times }

// Targets returns the fold-change target set
func (p *PeProblem) Targets() *residual.FoldTargets { return p.targets }

// simulate returns C(t) on the problem times for one condition
func simulate(times []float64, params model.ProliferationParams, scen model.ProliferationScenario) ([]float64, error) {
	tr, err := integrate.Euler(scen.System(params), scen.Initial(), times, integrate.FloorProliferation)
	if err != nil {
		return nil, err
	}
	return tr.Component(0), nil
}

// Predict returns the model fold-change versus control at the problem times
// for every treated condition.
func (p *PeProblem) Predict(values map[string]float64) (map[string][]float64, error) {
	return PredictFolds(p.times, values, p.Conditions())
}

// Conditions lists the treated conditions being fitted
func (p *PeProblem) Conditions() []string {
	out := make([]string, len(p.series))
	for i, s := range p.series {
		out[i] = s.condition
	}
	return out
}

// PredictFolds simulates the control and each condition on times and
// divides. The control fold is 1 by construction and is not returned.
func PredictFolds(times []float64, values map[string]float64, conditions []string) (map[string][]float64, error) {
	params, err := model.NewProliferationParams(values)
	if err != nil {
		return nil, err
	}
	ctrl, err := simulate(times, params, PeScenario(PeControl, values))
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(conditions))
	for _, cond := range conditions {
		c, err := simulate(times, params, PeScenario(cond, values))
		if err != nil {
			return nil, err
		}
		fold := make([]float64, len(times))
		for i := range times {
			fold[i] = c[i] / ctrl[i]
		}
		out[cond] = fold
	}
	return out, nil
}

// Loss is the weighted squared error of the predicted fold-changes over all
// treated conditions. Invalid parameters or a diverging integration score
// +Inf.
func (p *PeProblem) Loss(c search.Candidate) float64 {
	pred, err := p.Predict(c.Map())
	if err != nil {
		return math.Inf(1)
	}
	total := 0.0
	for _, s := range p.series {
		fold := pred[s.condition]
		for i, idx := range s.index {
			d := fold[idx] - s.obs[i]
			total += s.weights[i] * d * d
		}
	}
	return total
}

// Curves lays the observed and fitted fold-changes side by side
func (p *PeProblem) Curves(values map[string]float64) ([]Curve, error) {
	pred, err := p.Predict(values)
	if err != nil {
		return nil, err
	}
	curves := make([]Curve, 0, len(p.series))
	for _, s := range p.series {
		c := Curve{
			Condition: s.condition,
			Times:     s.times,
			Observed:  s.obs,
			Weights:   s.weights,
			Predicted: make([]float64, len(s.index)),
		}
		for i, idx := range s.index {
			c.Predicted[i] = pred[s.condition][idx]
		}
		curves = append(curves, c)
	}
	return curves, nil
}

// FitPe runs the proliferation grid search
func FitPe(ctx context.Context, ms []residual.Measurement, s Settings) (*FitResult, error) {
	problem, err := NewPeProblem(ms)
	if err != nil {
		return nil, err
	}
	return problem.Fit(ctx, PeGrid(s.GridScale), s)
}

// Fit searches space and packages the winner
func (p *PeProblem) Fit(ctx context.Context, space search.Space, s Settings) (*FitResult, error) {
	log.Printf("[Calibration] pe: fitting %v over %d times", p.Conditions(), len(p.times))
	res, err := runSearch(ctx, ProblemPe, space, p.Loss, s)
	if err != nil {
		return nil, err
	}
	curves, err := p.Curves(res.Best)
	if err != nil {
		return nil, fmt.Errorf("pe curves at best candidate: %w", err)
	}
	out := newFitResult(ProblemPe, res)
	out.Curves = curves
	out.Dropped = p.targets.Dropped
	out.Diagnostics = diagnose(curves, nil)
	return out, nil
}
