package model

import (
	"fmt"

	"tamcal/domain/core"
)

// ProliferationScenario selects the initial tumor burden and macrophage
// stimulus for one growth condition.
type ProliferationScenario struct {
	Name string
	SM1  float64
	SM2  float64
	C0   float64
}

// System binds the scenario to a parameter record
func (s ProliferationScenario) System(p ProliferationParams) Proliferation {
	return Proliferation{Params: p, SM1: s.SM1, SM2: s.SM2}
}

func (s ProliferationScenario) Initial() State { return State{s.C0} }

// RecruitmentScenario selects drives, blockade efficiency and initial state
// for one recruitment condition.
type RecruitmentScenario struct {
	Name    string
	CDrive  float64
	M2Drive float64
	Eta     float64
	L0      float64
	Mo0     float64
}

func (s RecruitmentScenario) Validate() error {
	if s.Eta <= 0 || s.Eta > 1 {
		return core.NewConfigError(s.Name+".eta", fmt.Sprintf("must be in (0,1], got %g", s.Eta))
	}
	return nil
}

func (s RecruitmentScenario) System(p RecruitmentParams) RecruitmentModel {
	return RecruitmentModel{Params: p, CDrive: s.CDrive, M2Drive: s.M2Drive, Eta: s.Eta}
}

func (s RecruitmentScenario) Initial() State { return State{s.L0, s.Mo0} }

// FullScenario selects initial state and driver intensities for the full model.
type FullScenario struct {
	Name    string
	C0      float64
	AM20    float64
	V0      float64
	Drivers Drivers
}

func (s FullScenario) System(p FullParams) Full {
	return Full{Params: p, Drivers: s.Drivers}
}

func (s FullScenario) Initial() State { return State{s.C0, s.AM20, s.V0} }
