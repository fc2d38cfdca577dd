package excel

import (
	"fmt"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/residual"
	"tamcal/ports"
)

// Loader implements ports.DatasetLoader over the file readers
type Loader struct{}

var _ ports.DatasetLoader = Loader{}

func NewLoader() Loader { return Loader{} }

func (Loader) LoadPe(path string) ([]residual.Measurement, error) {
	return LoadPe(path)
}

func (Loader) LoadQian(figCPath, figDPath string) (calibration.QianTargets, error) {
	return LoadQian(figCPath, figDPath)
}

func (Loader) LoadPeGrowth(path string) (residual.GrowthEstimate, error) {
	return LoadPeGrowth(path)
}

func (Loader) LoadRatio(kind, path string) (residual.RatioTarget, error) {
	switch kind {
	case calibration.ExtraSigmaCCL2:
		return LoadSigmaCCL2(path)
	case calibration.ExtraKappaVEGF:
		return LoadKappaVEGF(path)
	}
	return residual.RatioTarget{}, core.NewConfigError("ratio", fmt.Sprintf("unknown kind %q", kind))
}
