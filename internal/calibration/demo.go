package calibration

import (
	"fmt"
	"log"

	"tamcal/domain/model"
	"tamcal/internal/integrate"
)

// DriverM2 is the stimulus driver fed by M2 macrophage signal
const DriverM2 = "M2"

// DemoOptions sets the constants of the full model that neither fit
// identifies, and the demo grids.
type DemoOptions struct {
	Times        []float64
	Horizon      float64
	Steps        int
	K            float64
	AlphaV       float64
	KDrift       float64
	ThetaOC      float64
	SV           float64
	DV           float64
	Angiogenesis bool
}

func DefaultDemoOptions() DemoOptions {
	return DemoOptions{
		Times:        []float64{0, 24, 48, 72},
		Horizon:      72,
		Steps:        73,
		AlphaV:       0.05,
		KDrift:       1,
		SV:           0.1,
		DV:           0.1,
		Angiogenesis: true,
	}
}

// DemoResult holds proliferation folds on the demo times and full-model
// trajectories per scenario.
type DemoResult struct {
	Times      []float64                    `json:"times_h"`
	Folds      map[string][]float64         `json:"folds"`
	FullParams map[string]float64           `json:"full_params"`
	Full       map[string][]integrate.Point `json:"full"`
}

// DeriveFullParams assembles full-model parameters from both fits:
//
//	r = r0, alpha_M2 = gamma2*r0
//	k_I = alpha, K_g = K_L, d_M2 = dMo, sigma_CCL2 = fitted Rblock
//
// The remaining constants come from opts.
func DeriveFullParams(pe, qian *FitResult, opts DemoOptions) (model.FullParams, error) {
	if pe == nil || qian == nil {
		return model.FullParams{}, fmt.Errorf("full model needs both the pe and qian fits")
	}
	get := func(r *FitResult, name string, dst *float64) error {
		v, err := r.Param(name)
		*dst = v
		return err
	}
	var r0, gamma2, alpha, kl, dmo float64
	for _, e := range []error{
		get(pe, model.ParamR0, &r0),
		get(pe, model.ParamGamma2, &gamma2),
		get(qian, model.ParamAlpha, &alpha),
		get(qian, model.ParamKL, &kl),
		get(qian, model.ParamDMo, &dmo),
	} {
		if e != nil {
			return model.FullParams{}, e
		}
	}
	sigma := 1.0
	for _, rf := range qian.Ratios {
		if rf.Name == RatioBlock {
			sigma = rf.Predicted
		}
	}

	p, err := model.NewFullParams(map[string]float64{
		model.ParamR:         r0,
		model.ParamK:         opts.K,
		model.ParamAlphaV:    opts.AlphaV,
		model.ParamAlphaM2:   gamma2 * r0,
		model.ParamKDrift:    opts.KDrift,
		model.ParamKI:        alpha,
		model.ParamKG:        kl,
		model.ParamSigmaCCL2: sigma,
		model.ParamThetaOC:   opts.ThetaOC,
		model.ParamDM2:       dmo,
		model.ParamSV:        opts.SV,
		model.ParamDV:        opts.DV,
	}, map[string]float64{DriverM2: 1})
	if err != nil {
		return model.FullParams{}, err
	}
	return p.WithAngiogenesis(opts.Angiogenesis), nil
}

// FullScenarios maps the Pe conditions onto full-model drivers
func FullScenarios(pe *FitResult) []model.FullScenario {
	sM2 := pe.Params[ParamSM2]
	mix := (1 - pe.Params[ParamTheta]) * pe.Params[ParamSTAM]
	return []model.FullScenario{
		{Name: PeControl, C0: 1, Drivers: model.Drivers{}},
		{Name: "M2", C0: 1, Drivers: model.Drivers{DriverM2: sM2}},
		{Name: "TAM", C0: 1, Drivers: model.Drivers{DriverM2: mix}},
	}
}

// Demo simulates the fitted proliferation scenarios on opts.Times (control
// fold is 1 at every time) and integrates the full model with RK4 for each
// scenario.
func Demo(pe, qian *FitResult, opts DemoOptions) (*DemoResult, error) {
	if len(opts.Times) == 0 {
		opts.Times = DefaultDemoOptions().Times
	}
	if opts.Steps <= 0 {
		opts.Steps = DefaultDemoOptions().Steps
	}
	if !(opts.Horizon > 0) {
		opts.Horizon = DefaultDemoOptions().Horizon
	}

	full, err := DeriveFullParams(pe, qian, opts)
	if err != nil {
		return nil, err
	}
	folds, err := PredictFolds(opts.Times, pe.Params, []string{"M2", "TAM"})
	if err != nil {
		return nil, fmt.Errorf("demo folds: %w", err)
	}
	ones := make([]float64, len(opts.Times))
	for i := range ones {
		ones[i] = 1
	}
	folds[PeControl] = ones

	out := &DemoResult{
		Times:      opts.Times,
		Folds:      folds,
		FullParams: full.Values(),
		Full:       make(map[string][]integrate.Point),
	}
	for _, scen := range FullScenarios(pe) {
		tr, err := integrate.RK4(scen.System(full), scen.Initial(), 0, opts.Horizon, opts.Steps)
		if err != nil {
			return nil, fmt.Errorf("demo %s: %w", scen.Name, err)
		}
		out.Full[scen.Name] = tr.Points()
	}
	log.Printf("[Calibration] demo: %d fold times, %d full-model scenarios", len(opts.Times), len(out.Full))
	return out, nil
}
