package app

import (
	"tamcal/internal/calibration"
	"tamcal/internal/config"
)

// SettingsFromConfig maps the search section onto fit settings
func SettingsFromConfig(cfg *config.Config) calibration.Settings {
	s := calibration.DefaultSettings()
	s.Workers = cfg.Search.Workers
	s.Seed = cfg.Search.Seed
	s.QianSamples = cfg.Search.QianSamples
	s.GridScale = cfg.Search.GridScale
	s.Refine = cfg.Search.Refine
	s.RefineEvaluations = cfg.Search.RefineEvaluations
	return s
}

// DemoFromConfig maps the demo section onto demo options
func DemoFromConfig(cfg *config.Config) calibration.DemoOptions {
	d := calibration.DefaultDemoOptions()
	d.K = cfg.Demo.K
	d.AlphaV = cfg.Demo.AlphaV
	d.KDrift = cfg.Demo.KDrift
	d.ThetaOC = cfg.Demo.ThetaOC
	d.SV = cfg.Demo.SV
	d.DV = cfg.Demo.DV
	d.Angiogenesis = cfg.Demo.Angiogenesis
	return d
}

// RequestFromConfig names the configured input tables
func RequestFromConfig(cfg *config.Config) CalibrationRequest {
	return CalibrationRequest{
		PePath:        cfg.Data.PePath,
		QianFigCPath:  cfg.Data.QianFigCPath,
		QianFigDPath:  cfg.Data.QianFigDPath,
		PeGrowthPath:  cfg.Data.PeGrowthPath,
		SigmaCCL2Path: cfg.Data.SigmaCCL2Path,
		KappaVEGFPath: cfg.Data.KappaVEGFPath,
	}
}
