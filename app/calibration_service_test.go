package app

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/errors"
	"tamcal/internal/residual"
	"tamcal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations for testing
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) LoadPe(path string) ([]residual.Measurement, error) {
	args := m.Called(path)
	ms, _ := args.Get(0).([]residual.Measurement)
	return ms, args.Error(1)
}

func (m *MockLoader) LoadQian(figC, figD string) (calibration.QianTargets, error) {
	args := m.Called(figC, figD)
	return args.Get(0).(calibration.QianTargets), args.Error(1)
}

func (m *MockLoader) LoadPeGrowth(path string) (residual.GrowthEstimate, error) {
	args := m.Called(path)
	return args.Get(0).(residual.GrowthEstimate), args.Error(1)
}

func (m *MockLoader) LoadRatio(kind, path string) (residual.RatioTarget, error) {
	args := m.Called(kind, path)
	return args.Get(0).(residual.RatioTarget), args.Error(1)
}

type MockFitRepository struct {
	mock.Mock
}

func (m *MockFitRepository) SaveRun(ctx context.Context, run *calibration.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockFitRepository) GetRun(ctx context.Context, id core.RunID) (*calibration.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*calibration.Run)
	return run, args.Error(1)
}

func (m *MockFitRepository) LatestRun(ctx context.Context) (*calibration.Run, error) {
	args := m.Called(ctx)
	run, _ := args.Get(0).(*calibration.Run)
	return run, args.Error(1)
}

func (m *MockFitRepository) GetFit(ctx context.Context, id core.FitID) (*calibration.FitResult, error) {
	args := m.Called(ctx, id)
	fit, _ := args.Get(0).(*calibration.FitResult)
	return fit, args.Error(1)
}

func (m *MockFitRepository) ListFits(ctx context.Context, filters ports.FitFilters) ([]ports.FitSummary, error) {
	args := m.Called(ctx, filters)
	out, _ := args.Get(0).([]ports.FitSummary)
	return out, args.Error(1)
}

func peTable() []residual.Measurement {
	nan := math.NaN()
	rows := []struct {
		cond  string
		means []float64
	}{
		{"Control", []float64{1, 2, 4, 8}},
		{"M2", []float64{1, 2.3, 5.1, 11}},
		{"TAM", []float64{1, 2.1, 4.4, 9.2}},
	}
	var out []residual.Measurement
	for _, r := range rows {
		for i, t := range []float64{0, 24, 48, 72} {
			out = append(out, residual.Measurement{Time: t, Condition: r.cond, Mean: r.means[i], SEM: nan})
		}
	}
	return out
}

func qianTargets() calibration.QianTargets {
	return calibration.QianTargets{
		Lung:  residual.RatioTarget{Name: calibration.RatioLung, Value: 2.0, Weight: 1},
		Block: residual.RatioTarget{Name: calibration.RatioBlock, Value: 0.6, Weight: 1},
	}
}

func testSettings() calibration.Settings {
	return calibration.Settings{Workers: 2, Seed: 42, QianSamples: 30, GridScale: 0.2}
}

func TestCalibrationServiceRun(t *testing.T) {
	growthPath := filepath.Join(t.TempDir(), "3B.csv")
	require.NoError(t, os.WriteFile(growthPath, []byte("x"), 0o644))

	loader := new(MockLoader)
	loader.On("LoadPe", "pe.csv").Return(peTable(), nil)
	loader.On("LoadQian", "c.csv", "d.csv").Return(qianTargets(), nil)
	loader.On("LoadPeGrowth", growthPath).Return(residual.GrowthEstimate{DeltaRate: 0.2}, nil)

	repo := new(MockFitRepository)
	repo.On("SaveRun", mock.Anything, mock.AnythingOfType("*calibration.Run")).Return(nil)

	svc := NewCalibrationService(loader, repo, testSettings(), calibration.DefaultDemoOptions(), 0)
	run, err := svc.Run(context.Background(), CalibrationRequest{
		PePath: "pe.csv", QianFigCPath: "c.csv", QianFigDPath: "d.csv",
		PeGrowthPath:  growthPath,
		SigmaCCL2Path: filepath.Join(t.TempDir(), "missing.csv"),
	})
	require.NoError(t, err)

	require.NotNil(t, run.Pe)
	require.NotNil(t, run.Qian)
	require.NotNil(t, run.Demo)
	assert.False(t, run.ID.IsEmpty())
	assert.Equal(t, calibration.ProblemPe, run.Pe.Problem)
	assert.Len(t, run.Pe.Curves, 2)
	assert.Len(t, run.Qian.Ratios, 2)
	assert.Equal(t, 30, run.Qian.Total)
	assert.Equal(t, []float64{1, 1, 1, 1}, run.Demo.Folds[calibration.PeControl])
	require.NotNil(t, run.Growth)
	assert.Equal(t, 0.2, run.Growth.DeltaRate)
	assert.Empty(t, run.Extras)

	loader.AssertExpectations(t)
	loader.AssertNotCalled(t, "LoadRatio", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestCalibrationServiceIsDeterministic(t *testing.T) {
	loader := new(MockLoader)
	loader.On("LoadPe", mock.Anything).Return(peTable(), nil)
	loader.On("LoadQian", mock.Anything, mock.Anything).Return(qianTargets(), nil)

	svc := NewCalibrationService(loader, nil, testSettings(), calibration.DefaultDemoOptions(), 0)
	first, err := svc.Run(context.Background(), CalibrationRequest{})
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), CalibrationRequest{})
	require.NoError(t, err)

	assert.Equal(t, first.Pe.Params, second.Pe.Params)
	assert.Equal(t, first.Qian.Params, second.Qian.Params)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCalibrationServiceDataShapeError(t *testing.T) {
	loader := new(MockLoader)
	loader.On("LoadPe", "pe.csv").Return(nil, core.NewDataShapeError("pe.csv", "Mean"))

	svc := NewCalibrationService(loader, nil, testSettings(), calibration.DefaultDemoOptions(), 0)
	_, err := svc.Run(context.Background(), CalibrationRequest{PePath: "pe.csv"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeDataShape, errors.GetCode(err))
	loader.AssertNotCalled(t, "LoadQian", mock.Anything, mock.Anything)
}

func TestCalibrationServiceCancelled(t *testing.T) {
	loader := new(MockLoader)
	loader.On("LoadPe", mock.Anything).Return(peTable(), nil)
	loader.On("LoadQian", mock.Anything, mock.Anything).Return(qianTargets(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewCalibrationService(loader, nil, testSettings(), calibration.DefaultDemoOptions(), 0)
	_, err := svc.Run(ctx, CalibrationRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errors.CodeCancelled, errors.GetCode(err))
}

func TestLatestRunWithoutStore(t *testing.T) {
	svc := NewCalibrationService(new(MockLoader), nil, testSettings(), calibration.DefaultDemoOptions(), 0)
	_, err := svc.LatestRun(context.Background())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
}
