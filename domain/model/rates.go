package model

// Drivers maps a driver (cytokine) name to an intensity held constant over a
// simulation window.
type Drivers map[string]float64

// ProliferationRate is dC/dt for the growth submodel under constant
// macrophage stimulus levels sM1 and sM2.
func ProliferationRate(c float64, p ProliferationParams, sM1, sM2 float64) float64 {
	stim := 1.0 + p.Gamma2*Saturation(sM2, p.K2) - p.Gamma1*Saturation(sM1, p.K1)
	return p.R0 * c * stim
}

// CCL2Rate is dL/dt under constant tumor and M2 drives.
func CCL2Rate(l float64, p RecruitmentParams, cDrive, m2Drive float64) float64 {
	return p.CC*cDrive + p.CM2*m2Drive - p.DL*l
}

// MonocyteRate is dMo/dt; eta scales the inflow to model pathway blockade.
func MonocyteRate(mo, l float64, p RecruitmentParams, eta float64) float64 {
	inflow := p.Alpha * Saturation(l, p.KL) * eta
	return inflow - p.DMo*mo
}

// SizeSensing is g(C) = C/(C+K_g).
func SizeSensing(c float64, p FullParams) float64 {
	return Saturation(c, p.KG)
}

// Recruitment is I = k_I * g(C) * sigma_CCL2 * (1 - theta_OC).
func Recruitment(c float64, p FullParams) float64 {
	return p.KI * SizeSensing(c, p) * p.SigmaCCL2 * (1 - p.ThetaOC)
}

// Stimulus is S = S_scale * sum(weight_i * driver_i). Drivers without a weight
// contribute nothing.
func Stimulus(p FullParams, d Drivers) float64 {
	sum := 0.0
	for _, name := range p.DriverNames() {
		sum += p.DriverWeight(name) * d[name]
	}
	return p.SScale * sum
}

// FullRates returns (dC, dA_M2, dV) for the three-state model.
func FullRates(y State, p FullParams, d Drivers) State {
	c, a, v := y[0], y[1], y[2]

	growth := p.R * c * (1 + p.AlphaV*v)
	if p.K > 0 {
		growth *= 1 - c/p.K
	}
	dC := growth + p.AlphaM2*a*c

	dA := p.KDrift*Stimulus(p, d) + Recruitment(c, p) - p.DM2*a

	sV := p.SV
	if !p.Angiogenesis {
		sV = 0
	}
	dV := sV*a - p.DV*v

	return State{dC, dA, dV}
}

// Proliferation is the growth submodel as a one-dimensional System.
type Proliferation struct {
	Params ProliferationParams
	SM1    float64
	SM2    float64
}

func (m Proliferation) Dim() int { return 1 }

func (m Proliferation) Derive(_ float64, y State) State {
	return State{ProliferationRate(y[0], m.Params, m.SM1, m.SM2)}
}

// RecruitmentModel is the (L, Mo) submodel as a System.
type RecruitmentModel struct {
	Params  RecruitmentParams
	CDrive  float64
	M2Drive float64
	Eta     float64
}

// Indices into the recruitment state vector
const (
	IdxL  = 0
	IdxMo = 1
)

func (m RecruitmentModel) Dim() int { return 2 }

func (m RecruitmentModel) Derive(t float64, y State) State {
	return State{m.Component(IdxL, t, y), m.Component(IdxMo, t, y)}
}

// Component evaluates one rate. Mo's inflow reads L from y, so a sequential
// integrator that has already advanced L feeds the new chemokine level.
func (m RecruitmentModel) Component(i int, _ float64, y State) float64 {
	switch i {
	case IdxL:
		return CCL2Rate(y[IdxL], m.Params, m.CDrive, m.M2Drive)
	case IdxMo:
		return MonocyteRate(y[IdxMo], y[IdxL], m.Params, m.Eta)
	}
	return 0
}

// Full is the three-state model as a System.
type Full struct {
	Params  FullParams
	Drivers Drivers
}

// Indices into the full state vector
const (
	IdxC   = 0
	IdxAM2 = 1
	IdxV   = 2
)

func (m Full) Dim() int { return 3 }

func (m Full) Derive(_ float64, y State) State {
	return FullRates(y, m.Params, m.Drivers)
}
