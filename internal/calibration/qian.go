package calibration

import (
	"context"
	"fmt"
	"log"
	"math"

	"tamcal/domain/core"
	"tamcal/domain/model"
	"tamcal/internal/integrate"
	"tamcal/internal/residual"
	"tamcal/internal/search"
)

// Blockade efficiency searched alongside the recruitment law
const ParamEta = "eta"

// Recruitment ratio names
const (
	RatioLung  = "Rlung"
	RatioBlock = "Rblock"
)

// Recruitment horizon in hours and its Euler grid
const (
	QianHorizon = 8.0
	QianSteps   = 81
)

// QianTargets are the two recruitment ratios: lung metastasis over control
// and CCL2 blockade over untreated.
type QianTargets struct {
	Lung  residual.RatioTarget `json:"lung"`
	Block residual.RatioTarget `json:"block"`
}

// QianSpace is the seeded random search over the recruitment parameters
func QianSpace(samples int, seed int64) search.Space {
	return search.Space{
		Mode:    search.ModeRandom,
		Samples: samples,
		Seed:    seed,
		Dims: []search.Dimension{
			{Name: model.ParamAlpha, Lo: 0.2, Hi: 2.0},
			{Name: model.ParamKL, Lo: 0.05, Hi: 1.05},
			{Name: model.ParamDMo, Lo: 0.02, Hi: 0.32},
			{Name: ParamEta, Lo: 0.3, Hi: 1.0},
			{Name: model.ParamCC, Lo: 0.05, Hi: 0.55},
			{Name: model.ParamCM2, Lo: 0, Hi: 0.5},
			{Name: model.ParamDL, Lo: 0.05, Hi: 0.65},
		},
	}
}

// QianScenarios returns the control, metastasis and blockade conditions.
// Blockade is the metastasis drive with inflow scaled by eta.
func QianScenarios(eta float64) (ctrl, mets, block model.RecruitmentScenario) {
	ctrl = model.RecruitmentScenario{Name: "control", CDrive: 0.2, M2Drive: 0, Eta: 1, L0: 0.1, Mo0: 0.1}
	mets = model.RecruitmentScenario{Name: "mets", CDrive: 1.0, M2Drive: 0.3, Eta: 1, L0: 0.1, Mo0: 0.1}
	block = mets
	block.Name = "blockade"
	block.Eta = eta
	return ctrl, mets, block
}

// QianProblem scores recruitment candidates against the two ratios. It is
// read-only after construction and safe for concurrent use.
type QianProblem struct {
	targets QianTargets
	times   []float64
}

func NewQianProblem(targets QianTargets) (*QianProblem, error) {
	for _, rt := range []*residual.RatioTarget{&targets.Lung, &targets.Block} {
		if math.IsNaN(rt.Value) || math.IsInf(rt.Value, 0) || rt.Value <= 0 {
			return nil, &core.DataShapeError{Table: "qian", Missing: []string{fmt.Sprintf("positive %s (got %g)", rt.Name, rt.Value)}}
		}
		if rt.Weight <= 0 {
			rt.Weight = 1
		}
	}
	return &QianProblem{targets: targets, times: integrate.Linspace(0, QianHorizon, QianSteps)}, nil
}

func (q *QianProblem) Targets() QianTargets { return q.targets }

func (q *QianProblem) endpoint(p model.RecruitmentParams, scen model.RecruitmentScenario) (float64, error) {
	if err := scen.Validate(); err != nil {
		return 0, err
	}
	tr, err := integrate.EulerSequential(scen.System(p), scen.Initial(), q.times, integrate.FloorZero)
	if err != nil {
		return 0, err
	}
	return tr.Final()[model.IdxMo], nil
}

// Ratios simulates the three scenarios and returns the endpoint ratios
// Mo_mets/Mo_ctrl and Mo_block/Mo_mets. A zero denominator gives +Inf.
func (q *QianProblem) Ratios(values map[string]float64) (lung, block float64, err error) {
	p, err := model.NewRecruitmentParams(values)
	if err != nil {
		return 0, 0, err
	}
	eta, ok := values[ParamEta]
	if !ok {
		eta = 1
	}
	ctrl, mets, blk := QianScenarios(eta)

	mc, err := q.endpoint(p, ctrl)
	if err != nil {
		return 0, 0, err
	}
	mm, err := q.endpoint(p, mets)
	if err != nil {
		return 0, 0, err
	}
	mb, err := q.endpoint(p, blk)
	if err != nil {
		return 0, 0, err
	}
	return safeRatio(mm, mc), safeRatio(mb, mm), nil
}

func safeRatio(num, den float64) float64 {
	if !(den > 0) {
		return math.Inf(1)
	}
	return num / den
}

// Loss is the weighted squared error on both ratios
func (q *QianProblem) Loss(c search.Candidate) float64 {
	lung, block, err := q.Ratios(c.Map())
	if err != nil {
		return math.Inf(1)
	}
	return search.WeightedSSE(
		[]float64{lung, block},
		[]float64{q.targets.Lung.Value, q.targets.Block.Value},
		[]float64{q.targets.Lung.Weight, q.targets.Block.Weight},
	)
}

// FitQian runs the seeded random recruitment search
func FitQian(ctx context.Context, targets QianTargets, s Settings) (*FitResult, error) {
	problem, err := NewQianProblem(targets)
	if err != nil {
		return nil, err
	}
	return problem.Fit(ctx, QianSpace(s.QianSamples, s.Seed), s)
}

// Fit searches space and packages the winner with its model ratios
func (q *QianProblem) Fit(ctx context.Context, space search.Space, s Settings) (*FitResult, error) {
	log.Printf("[Calibration] qian: targets %s=%.4g %s=%.4g",
		RatioLung, q.targets.Lung.Value, RatioBlock, q.targets.Block.Value)
	res, err := runSearch(ctx, ProblemQian, space, q.Loss, s)
	if err != nil {
		return nil, err
	}
	lung, block, err := q.Ratios(res.Best)
	if err != nil {
		return nil, fmt.Errorf("qian ratios at best candidate: %w", err)
	}
	out := newFitResult(ProblemQian, res)
	out.Ratios = []RatioFit{
		{Name: RatioLung, Target: q.targets.Lung.Value, Predicted: lung, Weight: q.targets.Lung.Weight},
		{Name: RatioBlock, Target: q.targets.Block.Value, Predicted: block, Weight: q.targets.Block.Weight},
	}
	out.Diagnostics = diagnose(nil, out.Ratios)
	return out, nil
}
