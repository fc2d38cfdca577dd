package calibration

import (
	"context"
	"math"
	"testing"

	"tamcal/domain/core"
	"tamcal/domain/model"
	"tamcal/internal/errors"
	"tamcal/internal/residual"
	"tamcal/internal/search"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var peTimes = []float64{0, 24, 48, 72}

// synthPe simulates Control, M2 and TAM at values and tabulates C(t) as the
// measured mean.
func synthPe(t *testing.T, values map[string]float64, sem float64) []residual.Measurement {
	t.Helper()
	params, err := model.NewProliferationParams(values)
	require.NoError(t, err)

	var ms []residual.Measurement
	for _, cond := range []string{"Control", "M2", "TAM"} {
		c, err := simulate(peTimes, params, PeScenario(cond, values))
		require.NoError(t, err)
		for i, tm := range peTimes {
			ms = append(ms, residual.Measurement{Time: tm, Condition: cond, Mean: c[i], SEM: sem})
		}
	}
	return ms
}

func TestPeScenarioMapping(t *testing.T) {
	values := map[string]float64{ParamSM2: 2, ParamSTAM: 3, ParamTheta: 0.3}

	ctrl := PeScenario("control", values)
	assert.Equal(t, 0.0, ctrl.SM1)
	assert.Equal(t, 0.0, ctrl.SM2)

	m2 := PeScenario("M2", values)
	assert.Equal(t, 0.0, m2.SM1)
	assert.Equal(t, 2.0, m2.SM2)

	tam := PeScenario("TAM", values)
	assert.InDelta(t, 0.9, tam.SM1, 1e-12)
	assert.InDelta(t, 2.1, tam.SM2, 1e-12)
	assert.Equal(t, 1.0, tam.C0)
}

func TestPeGridScale(t *testing.T) {
	assert.Equal(t, 12*13*12*12*12*7, PeGrid(1).Size())
	assert.Equal(t, 3*3*3*3*3*2, PeGrid(0.25).Size())
	assert.Equal(t, PeGrid(1).Size(), PeGrid(0).Size())
	assert.NoError(t, PeGrid(0.01).Validate())
}

func TestPeParameterRecovery(t *testing.T) {
	space := PeGrid(0.25)
	enum, err := search.NewEnumerator(space)
	require.NoError(t, err)
	// index 1 along every dimension
	truth := enum.At(162 + 54 + 18 + 6 + 2 + 1).Map()
	require.Greater(t, truth[model.ParamGamma2], 0.0)

	problem, err := NewPeProblem(synthPe(t, truth, math.NaN()))
	require.NoError(t, err)
	assert.Equal(t, []string{"M2", "TAM"}, problem.Conditions())

	fit, err := problem.Fit(context.Background(), space, Settings{Workers: 4})
	require.NoError(t, err)
	assert.Equal(t, ProblemPe, fit.Problem)
	assert.InDelta(t, 0, fit.Loss, 1e-20)
	assert.False(t, fit.ID.IsEmpty())
	assert.Equal(t, PeGamma1, fit.Params[model.ParamGamma1])
	assert.Equal(t, space.Size(), fit.Evaluated)

	require.Len(t, fit.Curves, 2)
	for _, c := range fit.Curves {
		assert.Equal(t, peTimes, c.Times)
		assert.InDeltaSlice(t, c.Observed, c.Predicted, 1e-9)
		assert.Equal(t, 1.0, c.Observed[0])
	}
	assert.InDelta(t, 0, fit.Diagnostics.WeightedMeanResidual, 1e-9)
	assert.Equal(t, 8, fit.Diagnostics.Points)
}

func TestPeTreatsMissingControlAsDropped(t *testing.T) {
	truth := map[string]float64{model.ParamR0: 0.03, model.ParamGamma2: 1, model.ParamK2: 1, ParamSM2: 1, ParamSTAM: 1, ParamTheta: 0.3}
	ms := synthPe(t, truth, 0.01)
	ms = append(ms, residual.Measurement{Time: 96, Condition: "M2", Mean: 9, SEM: 0.1})

	problem, err := NewPeProblem(ms)
	require.NoError(t, err)
	assert.Equal(t, peTimes, problem.Times())
	require.Len(t, problem.Targets().Dropped, 1)
	assert.Equal(t, 96.0, problem.Targets().Dropped[0].Time)

	curves, err := problem.Curves(truth)
	require.NoError(t, err)
	for _, c := range curves {
		for _, w := range c.Weights {
			assert.GreaterOrEqual(t, w, residual.WeightFloor)
		}
	}
}

func TestPeNoMatchedTreatedConditionIsDataShapeError(t *testing.T) {
	ms := []residual.Measurement{
		{Time: 0, Condition: "Control", Mean: 1, SEM: math.NaN()},
		{Time: 24, Condition: "M2", Mean: 2, SEM: math.NaN()},
		{Time: 24, Condition: "TAM", Mean: 1.5, SEM: math.NaN()},
	}

	_, err := NewPeProblem(ms)
	require.Error(t, err)
	assert.True(t, core.IsDataShapeError(err))
	assert.Equal(t, errors.CodeDataShape, errors.Classify(err))

	var shape *core.DataShapeError
	require.ErrorAs(t, err, &shape)
	assert.ElementsMatch(t, []string{"M2@24", "TAM@24"}, shape.Missing)
}

func TestPeLossPrefersTruth(t *testing.T) {
	truth := map[string]float64{
		model.ParamR0: 0.03, model.ParamGamma2: 1.5, model.ParamK2: 2,
		model.ParamGamma1: PeGamma1, model.ParamK1: PeK1,
		ParamSM2: 2, ParamSTAM: 1, ParamTheta: 0.4,
	}
	problem, err := NewPeProblem(synthPe(t, truth, math.NaN()))
	require.NoError(t, err)

	space := search.Space{Mode: search.ModeGrid, Dims: []search.Dimension{{Name: model.ParamGamma2, Lo: 0, Hi: 3, Points: 7}}}
	fixed := make(map[string]float64)
	for k, v := range truth {
		if k != model.ParamGamma2 {
			fixed[k] = v
		}
	}
	space.Fixed = fixed

	res, err := search.Run(context.Background(), ProblemPe, space, problem.Loss, search.Options{Workers: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, res.Best[model.ParamGamma2], 1e-12)
	assert.InDelta(t, 0, res.Loss, 1e-20)
}

func TestPeRequiresControl(t *testing.T) {
	_, err := NewPeProblem([]residual.Measurement{{Time: 0, Condition: "M2", Mean: 1, SEM: math.NaN()}})
	require.Error(t, err)
	assert.True(t, core.IsDataShapeError(err))
}

func TestQianBlockadeRatioIsBoundedByEta(t *testing.T) {
	problem, err := NewQianProblem(QianTargets{
		Lung:  residual.RatioTarget{Name: RatioLung, Value: 2},
		Block: residual.RatioTarget{Name: RatioBlock, Value: 0.5},
	})
	require.NoError(t, err)

	values := map[string]float64{
		model.ParamAlpha: 1, model.ParamKL: 0.5, model.ParamDMo: 0.1,
		model.ParamCC: 0.3, model.ParamCM2: 0.2, model.ParamDL: 0.2, ParamEta: 0.6,
	}
	lung, block, err := problem.Ratios(values)
	require.NoError(t, err)
	assert.Greater(t, lung, 1.0)
	assert.GreaterOrEqual(t, block, 0.6)
	assert.Less(t, block, 1.0)

	values[ParamEta] = 1
	_, block, err = problem.Ratios(values)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, block, 1e-12)
}

func TestQianParameterRecovery(t *testing.T) {
	space := QianSpace(60, 7)
	enum, err := search.NewEnumerator(space)
	require.NoError(t, err)
	truth := enum.At(17).Map()

	probe, err := NewQianProblem(QianTargets{
		Lung:  residual.RatioTarget{Name: RatioLung, Value: 1},
		Block: residual.RatioTarget{Name: RatioBlock, Value: 1},
	})
	require.NoError(t, err)
	lung, block, err := probe.Ratios(truth)
	require.NoError(t, err)

	fit, err := FitQian(context.Background(), QianTargets{
		Lung:  residual.RatioTarget{Name: RatioLung, Value: lung, Weight: 1},
		Block: residual.RatioTarget{Name: RatioBlock, Value: block, Weight: 1},
	}, Settings{Seed: 7, QianSamples: 60, Workers: 3})
	require.NoError(t, err)
	assert.InDelta(t, 0, fit.Loss, 1e-20)
	assert.Equal(t, 60, fit.Total)

	summary := fit.Summary()
	assert.InDelta(t, lung, summary["Rlung_hat"], 1e-12)
	assert.InDelta(t, block, summary["Rblock_hat"], 1e-12)
	assert.Contains(t, summary, ParamEta)
}

func TestQianRejectsNonPositiveTargets(t *testing.T) {
	_, err := NewQianProblem(QianTargets{
		Lung:  residual.RatioTarget{Name: RatioLung, Value: 0},
		Block: residual.RatioTarget{Name: RatioBlock, Value: 0.5},
	})
	require.Error(t, err)
	assert.True(t, core.IsDataShapeError(err))
	assert.Equal(t, errors.CodeDataShape, errors.Classify(err))
	assert.Contains(t, err.Error(), RatioLung)
}

func TestQianScenarios(t *testing.T) {
	ctrl, mets, block := QianScenarios(0.4)
	assert.Equal(t, 0.2, ctrl.CDrive)
	assert.Equal(t, 0.0, ctrl.M2Drive)
	assert.Equal(t, 1.0, mets.CDrive)
	assert.Equal(t, 0.3, mets.M2Drive)
	assert.Equal(t, mets.CDrive, block.CDrive)
	assert.Equal(t, 0.4, block.Eta)
	assert.Equal(t, 1.0, mets.Eta)
}

func demoFits() (*FitResult, *FitResult) {
	pe := &FitResult{Problem: ProblemPe, Params: map[string]float64{
		model.ParamR0: 0.03, model.ParamGamma2: 1.5, model.ParamK2: 2,
		model.ParamGamma1: PeGamma1, model.ParamK1: PeK1,
		ParamSM2: 2, ParamSTAM: 1, ParamTheta: 0.4,
	}}
	qian := &FitResult{
		Problem: ProblemQian,
		Params: map[string]float64{
			model.ParamAlpha: 1, model.ParamKL: 0.5, model.ParamDMo: 0.1,
			model.ParamCC: 0.3, model.ParamCM2: 0.2, model.ParamDL: 0.2, ParamEta: 0.6,
		},
		Ratios: []RatioFit{{Name: RatioLung, Predicted: 2.1}, {Name: RatioBlock, Predicted: 0.7}},
	}
	return pe, qian
}

func TestDeriveFullParams(t *testing.T) {
	pe, qian := demoFits()
	p, err := DeriveFullParams(pe, qian, DefaultDemoOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.03, p.R)
	assert.InDelta(t, 0.045, p.AlphaM2, 1e-12)
	assert.Equal(t, 1.0, p.KI)
	assert.Equal(t, 0.5, p.KG)
	assert.Equal(t, 0.1, p.DM2)
	assert.Equal(t, 0.7, p.SigmaCCL2)
	assert.Equal(t, 1.0, p.DriverWeight(DriverM2))

	delete(qian.Params, model.ParamKL)
	_, err = DeriveFullParams(pe, qian, DefaultDemoOptions())
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = DeriveFullParams(pe, nil, DefaultDemoOptions())
	assert.Error(t, err)
}

func TestDemo(t *testing.T) {
	pe, qian := demoFits()
	demo, err := Demo(pe, qian, DefaultDemoOptions())
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1, 1, 1}, demo.Folds[PeControl])
	require.Len(t, demo.Folds["M2"], 4)
	assert.Equal(t, 1.0, demo.Folds["M2"][0])
	assert.Greater(t, demo.Folds["M2"][3], 1.0)

	require.Len(t, demo.Full, 3)
	for name, pts := range demo.Full {
		require.Len(t, pts, 73, name)
		assert.Equal(t, 72.0, pts[72].Time)
		for _, p := range pts {
			for _, v := range p.State {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		}
	}
	// more M2 drive means more M2 activity
	assert.Greater(t, demo.Full["M2"][72].State[model.IdxAM2], demo.Full[PeControl][72].State[model.IdxAM2])
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name    string
		preset  func() (Preset, error)
		wantL0  float64
		wantEta float64
		wantErr bool
	}{
		{"pe control", func() (Preset, error) { return PeCondition("Control", 0.3) }, 0.1, 1, false},
		{"pe tam", func() (Preset, error) { return PeCondition("TAM", 0.3) }, 0.2, 1, false},
		{"pe unknown", func() (Preset, error) { return PeCondition("M1", 0.3) }, 0, 0, true},
		{"qian mets blockade", func() (Preset, error) { return QianPreset("mets_lung", true) }, 0.3, 0.5, false},
		{"qian control", func() (Preset, error) { return QianPreset("control_lung", false) }, 0.1, 1, false},
		{"qian unknown", func() (Preset, error) { return QianPreset("bone", false) }, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.preset()
			if tt.wantErr {
				assert.True(t, core.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantL0, p.L0)
			assert.Equal(t, tt.wantEta, p.Eta)
			assert.NoError(t, p.Recruitment().Validate())
		})
	}
}
