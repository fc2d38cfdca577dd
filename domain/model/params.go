package model

import (
	"fmt"
	"math"
	"sort"

	"tamcal/domain/core"
)

// Parameter names as they appear in persisted fit records.
const (
	ParamR0     = "r0"
	ParamGamma2 = "gamma2"
	ParamK2     = "K2"
	ParamGamma1 = "gamma1"
	ParamK1     = "K1"

	ParamAlpha = "alpha"
	ParamKL    = "K_L"
	ParamDMo   = "dMo"
	ParamCC    = "cC"
	ParamCM2   = "cM2"
	ParamDL    = "dL"

	ParamR         = "r"
	ParamK         = "K"
	ParamAlphaV    = "alpha_V"
	ParamAlphaM2   = "alpha_M2"
	ParamKDrift    = "k_drift"
	ParamKI        = "k_I"
	ParamKG        = "K_g"
	ParamSigmaCCL2 = "sigma_CCL2"
	ParamThetaOC   = "theta_OC"
	ParamDM2       = "d_M2"
	ParamSV        = "s_V"
	ParamDV        = "d_V"
	ParamSScale    = "S_scale"
)

// ProliferationParams parameterizes the single-state growth submodel.
//
//	dC/dt = r0*C*[1 + gamma2*S_M2/(S_M2+K2) - gamma1*S_M1/(S_M1+K1)]
type ProliferationParams struct {
	R0     float64
	Gamma2 float64
	K2     float64
	Gamma1 float64
	K1     float64
}

// DefaultProliferationParams has no macrophage coupling and unit saturation constants.
func DefaultProliferationParams() ProliferationParams {
	return ProliferationParams{K2: 1.0, K1: 1.0}
}

// NewProliferationParams reads the known names from values; absent names keep
// their neutral defaults and unknown names are ignored.
func NewProliferationParams(values map[string]float64) (ProliferationParams, error) {
	p := DefaultProliferationParams()
	assign(values, ParamR0, &p.R0)
	assign(values, ParamGamma2, &p.Gamma2)
	assign(values, ParamK2, &p.K2)
	assign(values, ParamGamma1, &p.Gamma1)
	assign(values, ParamK1, &p.K1)
	return p, p.Validate()
}

// Validate checks every coefficient lies in its physical domain
func (p ProliferationParams) Validate() error {
	return firstError(
		nonNegative(ParamR0, p.R0),
		nonNegative(ParamGamma2, p.Gamma2),
		nonNegative(ParamGamma1, p.Gamma1),
		positive(ParamK2, p.K2),
		positive(ParamK1, p.K1),
	)
}

// Values returns the record as flat named fields
func (p ProliferationParams) Values() map[string]float64 {
	return map[string]float64{
		ParamR0: p.R0, ParamGamma2: p.Gamma2, ParamK2: p.K2,
		ParamGamma1: p.Gamma1, ParamK1: p.K1,
	}
}

// RecruitmentParams parameterizes the chemokine/monocyte submodel.
type RecruitmentParams struct {
	Alpha float64 // maximal monocyte inflow
	KL    float64 // half-saturation of inflow in L
	DMo   float64
	CC    float64 // CCL2 secretion per unit tumor drive
	CM2   float64 // CCL2 secretion per unit M2 drive
	DL    float64
}

// DefaultRecruitmentParams mirrors the defaults used when a record omits a rate.
func DefaultRecruitmentParams() RecruitmentParams {
	return RecruitmentParams{KL: 1.0, DMo: 0.1, CC: 0.1, CM2: 0.0, DL: 0.2}
}

// NewRecruitmentParams reads the known names from values over the defaults.
func NewRecruitmentParams(values map[string]float64) (RecruitmentParams, error) {
	p := DefaultRecruitmentParams()
	assign(values, ParamAlpha, &p.Alpha)
	assign(values, ParamKL, &p.KL)
	assign(values, ParamDMo, &p.DMo)
	assign(values, ParamCC, &p.CC)
	assign(values, ParamCM2, &p.CM2)
	assign(values, ParamDL, &p.DL)
	return p, p.Validate()
}

func (p RecruitmentParams) Validate() error {
	return firstError(
		nonNegative(ParamAlpha, p.Alpha),
		positive(ParamKL, p.KL),
		nonNegative(ParamDMo, p.DMo),
		nonNegative(ParamCC, p.CC),
		nonNegative(ParamCM2, p.CM2),
		nonNegative(ParamDL, p.DL),
	)
}

func (p RecruitmentParams) Values() map[string]float64 {
	return map[string]float64{
		ParamAlpha: p.Alpha, ParamKL: p.KL, ParamDMo: p.DMo,
		ParamCC: p.CC, ParamCM2: p.CM2, ParamDL: p.DL,
	}
}

// FullParams parameterizes the three-state tumor / M2 / angiogenesis model.
// K <= 0 disables the logistic crowding term.
type FullParams struct {
	R         float64
	K         float64
	AlphaV    float64
	AlphaM2   float64
	KDrift    float64
	KI        float64
	KG        float64
	SigmaCCL2 float64
	ThetaOC   float64
	DM2       float64
	SV        float64
	DV        float64
	SScale    float64

	// Angiogenesis gates the V production term; false forces s_V to 0.
	Angiogenesis bool

	driverWeights map[string]float64
}

// DefaultFullParams returns a record with every coupling off, unit
// saturation and stimulus scale, and angiogenesis enabled.
func DefaultFullParams() FullParams {
	return FullParams{KG: 1.0, SScale: 1.0, Angiogenesis: true}
}

// NewFullParams reads the known names from values over the defaults.
// weights maps driver names to their contribution to the stimulus aggregate;
// it is copied.
func NewFullParams(values map[string]float64, weights map[string]float64) (FullParams, error) {
	p := DefaultFullParams()
	assign(values, ParamR, &p.R)
	assign(values, ParamK, &p.K)
	assign(values, ParamAlphaV, &p.AlphaV)
	assign(values, ParamAlphaM2, &p.AlphaM2)
	assign(values, ParamKDrift, &p.KDrift)
	assign(values, ParamKI, &p.KI)
	assign(values, ParamKG, &p.KG)
	assign(values, ParamSigmaCCL2, &p.SigmaCCL2)
	assign(values, ParamThetaOC, &p.ThetaOC)
	assign(values, ParamDM2, &p.DM2)
	assign(values, ParamSV, &p.SV)
	assign(values, ParamDV, &p.DV)
	assign(values, ParamSScale, &p.SScale)
	p.driverWeights = copyWeights(weights)
	return p, p.Validate()
}

func (p FullParams) Validate() error {
	if p.ThetaOC < 0 || p.ThetaOC > 1 {
		return core.NewConfigError(ParamThetaOC, fmt.Sprintf("must be in [0,1], got %g", p.ThetaOC))
	}
	return firstError(
		finite(ParamR, p.R),
		finite(ParamK, p.K),
		nonNegative(ParamAlphaV, p.AlphaV),
		finite(ParamAlphaM2, p.AlphaM2),
		nonNegative(ParamKDrift, p.KDrift),
		nonNegative(ParamKI, p.KI),
		positive(ParamKG, p.KG),
		nonNegative(ParamSigmaCCL2, p.SigmaCCL2),
		nonNegative(ParamDM2, p.DM2),
		nonNegative(ParamSV, p.SV),
		nonNegative(ParamDV, p.DV),
		nonNegative(ParamSScale, p.SScale),
	)
}

// WithAngiogenesis returns a copy with the V production term switched on or off
func (p FullParams) WithAngiogenesis(on bool) FullParams {
	p.Angiogenesis = on
	p.driverWeights = copyWeights(p.driverWeights)
	return p
}

// DriverWeight returns the stimulus weight of a driver, 0 when unknown
func (p FullParams) DriverWeight(name string) float64 {
	return p.driverWeights[name]
}

// DriverNames returns the weighted drivers in sorted order
func (p FullParams) DriverNames() []string {
	names := make([]string, 0, len(p.driverWeights))
	for name := range p.driverWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p FullParams) Values() map[string]float64 {
	return map[string]float64{
		ParamR: p.R, ParamK: p.K, ParamAlphaV: p.AlphaV, ParamAlphaM2: p.AlphaM2,
		ParamKDrift: p.KDrift, ParamKI: p.KI, ParamKG: p.KG,
		ParamSigmaCCL2: p.SigmaCCL2, ParamThetaOC: p.ThetaOC, ParamDM2: p.DM2,
		ParamSV: p.SV, ParamDV: p.DV, ParamSScale: p.SScale,
	}
}

func assign(values map[string]float64, name string, dst *float64) {
	if v, ok := values[name]; ok {
		*dst = v
	}
}

func copyWeights(weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	return out
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return core.NewConfigError(name, fmt.Sprintf("must be finite, got %g", v))
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if err := finite(name, v); err != nil {
		return err
	}
	if v < 0 {
		return core.NewConfigError(name, fmt.Sprintf("must be >= 0, got %g", v))
	}
	return nil
}

// positive guards half-saturation constants
func positive(name string, v float64) error {
	if err := finite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return core.NewConfigError(name, fmt.Sprintf("must be > 0, got %g", v))
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
