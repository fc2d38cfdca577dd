package app

import (
	"fmt"
	"strings"

	"tamcal/domain/core"
	"tamcal/domain/model"
	"tamcal/internal/calibration"
	"tamcal/internal/integrate"
)

// Model names accepted by Simulate
const (
	ModelProliferation = "proliferation"
	ModelRecruitment   = "recruitment"
	ModelFull          = "full"
)

// MaxSimulatePoints bounds the trajectory length of a single simulation
const MaxSimulatePoints = 100_000

// SimulateRequest describes an ad-hoc forward simulation. Params fill the
// chosen model's parameter record over its defaults; Initial and Drivers
// set the scenario. Preset, when given, names a calibration preset
// (control, m2, tam, control_lung, mets_lung) whose initial state is used.
type SimulateRequest struct {
	Model    string             `json:"model" binding:"required"`
	Params   map[string]float64 `json:"params"`
	Weights  map[string]float64 `json:"weights"`
	Initial  map[string]float64 `json:"initial"`
	Drivers  map[string]float64 `json:"drivers"`
	Preset   string             `json:"preset"`
	Blockade bool               `json:"blockade"`
	Times    []float64          `json:"times"`
	Horizon  float64            `json:"horizon"`
	Steps    int                `json:"steps"`
	NoAngio  bool               `json:"no_angiogenesis"`
}

// SimulateResult is a trajectory with its component names
type SimulateResult struct {
	Model      string            `json:"model"`
	Components []string          `json:"components"`
	Points     []integrate.Point `json:"points"`
}

// Simulate integrates one model: proliferation and recruitment with Euler on
// the requested times, the full model with RK4 on [0, horizon].
func Simulate(req SimulateRequest) (*SimulateResult, error) {
	if req.Steps > MaxSimulatePoints {
		return nil, core.NewConfigError("steps", fmt.Sprintf("%d exceeds the limit of %d", req.Steps, MaxSimulatePoints))
	}
	if len(req.Times) > MaxSimulatePoints {
		return nil, core.NewConfigError("times", fmt.Sprintf("%d points exceed the limit of %d", len(req.Times), MaxSimulatePoints))
	}
	initial := func(name string, def float64) float64 {
		if v, ok := req.Initial[name]; ok {
			return v
		}
		return def
	}
	preset, err := lookupPreset(req)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(req.Model) {
	case ModelProliferation:
		p, err := model.NewProliferationParams(req.Params)
		if err != nil {
			return nil, err
		}
		scen := model.ProliferationScenario{
			Name: "adhoc",
			SM1:  req.Drivers["S_M1"],
			SM2:  req.Drivers["S_M2"],
			C0:   initial("C0", preset.C0),
		}
		times := req.Times
		if len(times) == 0 {
			times = calibration.DefaultDemoOptions().Times
		}
		tr, err := integrate.Euler(scen.System(p), scen.Initial(), times, integrate.FloorProliferation)
		if err != nil {
			return nil, err
		}
		return &SimulateResult{Model: ModelProliferation, Components: []string{"C"}, Points: tr.Points()}, nil

	case ModelRecruitment:
		p, err := model.NewRecruitmentParams(req.Params)
		if err != nil {
			return nil, err
		}
		scen := preset.Recruitment()
		scen.CDrive = initial("C_drive", scen.CDrive)
		scen.M2Drive = initial("M2_drive", scen.M2Drive)
		scen.Eta = initial("eta", scen.Eta)
		scen.L0 = initial("L0", scen.L0)
		scen.Mo0 = initial("Mo0", scen.Mo0)
		if err := scen.Validate(); err != nil {
			return nil, err
		}
		times := req.Times
		if len(times) == 0 {
			times = integrate.Linspace(0, calibration.QianHorizon, calibration.QianSteps)
		}
		tr, err := integrate.EulerSequential(scen.System(p), scen.Initial(), times, integrate.FloorZero)
		if err != nil {
			return nil, err
		}
		return &SimulateResult{Model: ModelRecruitment, Components: []string{"L", "Mo"}, Points: tr.Points()}, nil

	case ModelFull:
		p, err := model.NewFullParams(req.Params, req.Weights)
		if err != nil {
			return nil, err
		}
		p = p.WithAngiogenesis(!req.NoAngio)
		scen := preset.Full(model.Drivers(req.Drivers))
		scen.C0 = initial("C0", scen.C0)
		scen.AM20 = initial("A_M20", scen.AM20)
		scen.V0 = initial("V0", scen.V0)
		horizon, steps := req.Horizon, req.Steps
		if !(horizon > 0) {
			horizon = calibration.DefaultDemoOptions().Horizon
		}
		if steps <= 0 {
			steps = calibration.DefaultDemoOptions().Steps
		}
		tr, err := integrate.RK4(scen.System(p), scen.Initial(), 0, horizon, steps)
		if err != nil {
			return nil, err
		}
		return &SimulateResult{Model: ModelFull, Components: []string{"C", "A_M2", "V"}, Points: tr.Points()}, nil
	}
	return nil, core.NewConfigError("model", fmt.Sprintf("unknown model %q", req.Model))
}

// lookupPreset resolves the named preset, or a neutral one (C0 = 1,
// L0 = Mo0 = 0.1, eta = 1)
func lookupPreset(req SimulateRequest) (calibration.Preset, error) {
	switch strings.ToLower(req.Preset) {
	case "":
		return calibration.Preset{Name: "adhoc", C0: 1, L0: 0.1, Mo0: 0.1, Eta: 1, Theta: 1}, nil
	case "control_lung", "mets_lung":
		return calibration.QianPreset(strings.ToLower(req.Preset), req.Blockade)
	}
	return calibration.PeCondition(req.Preset, 0.3)
}
