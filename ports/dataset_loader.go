package ports

import (
	"tamcal/internal/calibration"
	"tamcal/internal/residual"
)

// DatasetLoader reads the calibration tables. Paths ending in .csv are read
// as CSV, anything else as an XLSX workbook.
type DatasetLoader interface {
	LoadPe(path string) ([]residual.Measurement, error)
	LoadQian(figCPath, figDPath string) (calibration.QianTargets, error)
	LoadPeGrowth(path string) (residual.GrowthEstimate, error)
	LoadRatio(kind, path string) (residual.RatioTarget, error)
}
