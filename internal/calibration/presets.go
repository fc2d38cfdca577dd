package calibration

import (
	"fmt"
	"strings"

	"tamcal/domain/core"
	"tamcal/domain/model"
)

// Preset is a named initial condition for ad-hoc simulation
type Preset struct {
	Name  string  `json:"name"`
	C0    float64 `json:"C0"`
	L0    float64 `json:"L0"`
	Mo0   float64 `json:"Mo0"`
	Theta float64 `json:"theta"`
	Eta   float64 `json:"eta"`
}

// PeCondition returns the preset for a Pe condition (control, m2 or tam)
func PeCondition(condition string, theta float64) (Preset, error) {
	p := Preset{Name: condition, C0: 1, Theta: theta, Eta: 1}
	switch strings.ToLower(strings.TrimSpace(condition)) {
	case "control":
		p.L0, p.Mo0 = 0.1, 0.1
	case "m2", "tam":
		p.L0, p.Mo0 = 0.2, 0.15
	default:
		return Preset{}, core.NewConfigError("condition", fmt.Sprintf("unknown Pe condition %q", condition))
	}
	return p, nil
}

// QianPreset returns the preset for a Qian lung scenario (control_lung or
// mets_lung); blockade halves recruitment inflow.
func QianPreset(kind string, blockade bool) (Preset, error) {
	eta := 1.0
	if blockade {
		eta = 0.5
	}
	switch kind {
	case "control_lung":
		return Preset{Name: kind, Theta: 0.6, L0: 0.1, C0: 0.5, Mo0: 0.1, Eta: eta}, nil
	case "mets_lung":
		return Preset{Name: kind, Theta: 0.4, L0: 0.3, C0: 1.0, Mo0: 0.1, Eta: eta}, nil
	}
	return Preset{}, core.NewConfigError("scenario", fmt.Sprintf("unknown Qian scenario %q", kind))
}

// Recruitment turns the preset into a recruitment scenario driven by C0
func (p Preset) Recruitment() model.RecruitmentScenario {
	return model.RecruitmentScenario{Name: p.Name, CDrive: p.C0, Eta: p.Eta, L0: p.L0, Mo0: p.Mo0}
}

// Full turns the preset into a full-model scenario. Theta splits the
// macrophage pool so that the M2 fraction (1-theta)*Mo seeds A_M2.
func (p Preset) Full(drivers model.Drivers) model.FullScenario {
	return model.FullScenario{Name: p.Name, C0: p.C0, AM20: (1 - p.Theta) * p.Mo0, Drivers: drivers}
}
