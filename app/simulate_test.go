package app

import (
	"testing"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateProliferationGoldenTrace(t *testing.T) {
	res, err := Simulate(SimulateRequest{
		Model:   ModelProliferation,
		Params:  map[string]float64{"r0": 0.0231, "gamma2": 0.5, "K2": 1},
		Drivers: map[string]float64{"S_M2": 1},
	})
	require.NoError(t, err)
	require.Len(t, res.Points, 4)
	assert.Equal(t, []string{"C"}, res.Components)
	assert.Equal(t, 72.0, res.Points[3].Time)
	assert.Greater(t, res.Points[3].State[0], res.Points[2].State[0])
}

func TestSimulateRecruitmentPreset(t *testing.T) {
	res, err := Simulate(SimulateRequest{
		Model:    ModelRecruitment,
		Params:   map[string]float64{"alpha": 1, "K_L": 0.5},
		Preset:   "mets_lung",
		Blockade: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Points, 81)
	assert.Equal(t, 0.3, res.Points[0].State[0])
	assert.Equal(t, 8.0, res.Points[80].Time)
}

func TestSimulateFull(t *testing.T) {
	res, err := Simulate(SimulateRequest{
		Model:   ModelFull,
		Params:  map[string]float64{"r": 0.03, "alpha_M2": 0.01, "k_drift": 1, "d_M2": 0.1, "s_V": 0.1, "d_V": 0.1},
		Weights: map[string]float64{"M2": 1},
		Drivers: map[string]float64{"M2": 2},
		Horizon: 10,
		Steps:   11,
		NoAngio: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Points, 11)
	last := res.Points[10].State
	assert.Greater(t, last[1], 0.0)
	assert.Equal(t, 0.0, last[2])
}

func TestSimulateErrors(t *testing.T) {
	tests := []struct {
		name string
		req  SimulateRequest
	}{
		{"unknown model", SimulateRequest{Model: "pbpk"}},
		{"unknown preset", SimulateRequest{Model: ModelRecruitment, Preset: "bone"}},
		{"bad eta", SimulateRequest{Model: ModelRecruitment, Params: map[string]float64{"alpha": 1}, Initial: map[string]float64{"eta": 0}}},
		{"negative rate", SimulateRequest{Model: ModelProliferation, Params: map[string]float64{"r0": -1}}},
		{"bad times", SimulateRequest{Model: ModelProliferation, Times: []float64{0, 10, 5}}},
		{"too many steps", SimulateRequest{Model: ModelFull, Steps: 2_000_000_000}},
		{"too many times", SimulateRequest{Model: ModelRecruitment, Times: make([]float64, MaxSimulatePoints+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Simulate(tt.req)
			require.Error(t, err)
			assert.True(t, core.IsConfigError(err), "got %v", err)
		})
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Search.Workers = 3
	cfg.Search.Seed = 7
	cfg.Search.QianSamples = 50
	cfg.Search.GridScale = 0.5
	cfg.Demo.AlphaV = 0.2
	cfg.Data.PePath = "pe.csv"

	s := SettingsFromConfig(cfg)
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, int64(7), s.Seed)
	assert.Equal(t, 50, s.QianSamples)
	assert.Equal(t, 0.5, s.GridScale)

	d := DemoFromConfig(cfg)
	assert.Equal(t, 0.2, d.AlphaV)
	assert.Equal(t, calibration.DefaultDemoOptions().Times, d.Times)

	assert.Equal(t, "pe.csv", RequestFromConfig(cfg).PePath)
}
