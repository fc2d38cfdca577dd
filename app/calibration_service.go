package app

import (
	"context"
	"log"
	"os"
	"time"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/errors"
	"tamcal/ports"

	"golang.org/x/sync/errgroup"
)

// CalibrationService runs the proliferation and recruitment fits
// concurrently, then the coupled demo on both results.
type CalibrationService struct {
	loader   ports.DatasetLoader
	repo     ports.FitRepository
	settings calibration.Settings
	demo     calibration.DemoOptions
	timeout  time.Duration
}

// CalibrationRequest names the input tables. The auxiliary paths are
// optional; an empty or missing file is skipped.
type CalibrationRequest struct {
	PePath        string
	QianFigCPath  string
	QianFigDPath  string
	PeGrowthPath  string
	SigmaCCL2Path string
	KappaVEGFPath string
}

// NewCalibrationService creates a calibration service. repo may be nil, in
// which case runs are not persisted.
func NewCalibrationService(loader ports.DatasetLoader, repo ports.FitRepository, settings calibration.Settings, demo calibration.DemoOptions, timeout time.Duration) *CalibrationService {
	return &CalibrationService{
		loader:   loader,
		repo:     repo,
		settings: settings,
		demo:     demo,
		timeout:  timeout,
	}
}

// Settings returns the fit settings the service was built with
func (s *CalibrationService) Settings() calibration.Settings {
	return s.settings
}

// Run loads the tables, fits both problems, builds the demo and stores the run
func (s *CalibrationService) Run(ctx context.Context, req CalibrationRequest) (*calibration.Run, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	startTime := time.Now()

	measurements, err := s.loader.LoadPe(req.PePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load proliferation table %s", req.PePath)
	}
	targets, err := s.loader.LoadQian(req.QianFigCPath, req.QianFigDPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recruitment tables")
	}

	run := &calibration.Run{
		ID:        core.NewRunID(),
		Settings:  s.settings,
		CreatedAt: time.Now().UTC(),
	}
	log.Printf("[CalibrationService] run %s: %d proliferation rows, targets Rlung=%.4g Rblock=%.4g",
		run.ID, len(measurements), targets.Lung.Value, targets.Block.Value)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fit, err := calibration.FitPe(gctx, measurements, s.settings)
		if err != nil {
			return errors.Wrap(err, "proliferation fit failed")
		}
		run.Pe = fit
		return nil
	})
	g.Go(func() error {
		fit, err := calibration.FitQian(gctx, targets, s.settings)
		if err != nil {
			return errors.Wrap(err, "recruitment fit failed")
		}
		run.Qian = fit
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.loadAuxiliary(run, req)

	demo, err := calibration.Demo(run.Pe, run.Qian, s.demo)
	if err != nil {
		return nil, errors.Wrap(err, "coupled demo failed")
	}
	run.Demo = demo

	if s.repo != nil {
		if err := s.repo.SaveRun(ctx, run); err != nil {
			return nil, errors.DatabaseError("failed to store calibration run", err)
		}
	}

	log.Printf("[CalibrationService] run %s complete in %v (pe loss %.4g, qian loss %.4g)",
		run.ID, time.Since(startTime), run.Pe.Loss, run.Qian.Loss)
	return run, nil
}

// loadAuxiliary reads the optional growth and ratio tables. They annotate
// the run and never fail it.
func (s *CalibrationService) loadAuxiliary(run *calibration.Run, req CalibrationRequest) {
	if present(req.PeGrowthPath) {
		est, err := s.loader.LoadPeGrowth(req.PeGrowthPath)
		if err != nil {
			log.Printf("[CalibrationService] Warning: growth table %s skipped: %v", req.PeGrowthPath, err)
		} else {
			run.Growth = &est
		}
	}

	for kind, path := range map[string]string{
		calibration.ExtraSigmaCCL2: req.SigmaCCL2Path,
		calibration.ExtraKappaVEGF: req.KappaVEGFPath,
	} {
		if !present(path) {
			continue
		}
		rt, err := s.loader.LoadRatio(kind, path)
		if err != nil {
			log.Printf("[CalibrationService] Warning: %s table %s skipped: %v", kind, path, err)
			continue
		}
		if run.Extras == nil {
			run.Extras = make(map[string]float64)
		}
		run.Extras[kind] = rt.Value
	}
}

func present(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// LatestRun returns the most recent stored run
func (s *CalibrationService) LatestRun(ctx context.Context) (*calibration.Run, error) {
	if s.repo == nil {
		return nil, errors.NotFound("run store")
	}
	return s.repo.LatestRun(ctx)
}
