package integrate

import (
	"math"
	"testing"

	"tamcal/domain/core"
	"tamcal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcSystem adapts a closure to model.System for tests
type funcSystem struct {
	dim int
	f   func(t float64, y model.State) model.State
}

func (s funcSystem) Dim() int                                    { return s.dim }
func (s funcSystem) Derive(t float64, y model.State) model.State { return s.f(t, y) }

func decay(k float64) funcSystem {
	return funcSystem{dim: 1, f: func(_ float64, y model.State) model.State {
		return model.State{-k * y[0]}
	}}
}

func eulerEndpointError(t *testing.T, steps int) float64 {
	const k, horizon = 0.5, 2.0
	tr, err := Euler(decay(k), model.State{1.0}, Linspace(0, horizon, steps+1), FloorZero)
	require.NoError(t, err)
	return math.Abs(tr.Final()[0] - math.Exp(-k*horizon))
}

func TestEulerConvergesLinearly(t *testing.T) {
	e1 := eulerEndpointError(t, 100)
	e2 := eulerEndpointError(t, 200)
	e3 := eulerEndpointError(t, 400)

	assert.Less(t, e2, e1)
	assert.Less(t, e3, e2)
	// first order: halving the step halves the error
	assert.InDelta(t, 2.0, e1/e2, 0.1)
	assert.InDelta(t, 2.0, e2/e3, 0.1)
}

func rk4EndpointError(t *testing.T, steps int) float64 {
	// dy/dt = y cos(t), y(0) = 1  =>  y = exp(sin t)
	sys := funcSystem{dim: 1, f: func(tt float64, y model.State) model.State {
		return model.State{y[0] * math.Cos(tt)}
	}}
	const horizon = 2.0
	tr, err := RK4(sys, model.State{1.0}, 0, horizon, steps+1)
	require.NoError(t, err)
	return math.Abs(tr.Final()[0] - math.Exp(math.Sin(horizon)))
}

func TestRK4ConvergesAtFourthOrder(t *testing.T) {
	e1 := rk4EndpointError(t, 10)
	e2 := rk4EndpointError(t, 20)
	e3 := rk4EndpointError(t, 40)

	// halving h should cut the error by ~2^4; allow +-20% for higher-order terms
	assert.InDelta(t, 16.0, e1/e2, 3.2)
	assert.InDelta(t, 16.0, e2/e3, 3.2)
	assert.Less(t, e3, 1e-6)
}

func TestEulerGoldenProliferationTrace(t *testing.T) {
	params := model.ProliferationParams{R0: math.Ln2 / 28, Gamma2: 0.5, K2: 1.0, K1: 1.0}
	scen := model.ProliferationScenario{Name: "M2", SM1: 0, SM2: 1.0, C0: 1.0}
	times := []float64{0, 24, 48, 72}

	tr, err := Euler(scen.System(params), scen.Initial(), times, FloorProliferation)
	require.NoError(t, err)

	// sequential application of the update formula
	c := 1.0
	expected := []float64{c}
	for i := 1; i < len(times); i++ {
		stim := 1 + 0.5*1.0/(1.0+1.0+model.Epsilon)
		c = math.Max(1e-12, c+(times[i]-times[i-1])*(math.Ln2/28)*c*stim)
		expected = append(expected, c)
	}

	got := tr.Component(0)
	require.Len(t, got, 4)
	for i := range expected {
		assert.InDelta(t, expected[i], got[i], 1e-12, "t=%g", times[i])
	}
	assert.InDelta(t, 1.74265769345701, got[1], 1e-12)
	assert.InDelta(t, 3.036855836564906, got[2], 1e-12)
	assert.InDelta(t, 5.292200187509657, got[3], 1e-12)
}

func TestSinglePointReturnsInitialState(t *testing.T) {
	tr, err := Euler(decay(1), model.State{3.0}, []float64{5}, FloorZero)
	require.NoError(t, err)
	assert.Equal(t, []model.State{{3.0}}, tr.States)

	tr, err = RK4(decay(1), model.State{3.0}, 0, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, model.State{3.0}, tr.Final())
}

func TestEulerHandlesIrregularSpacing(t *testing.T) {
	tr, err := Euler(decay(0.1), model.State{1.0}, []float64{0, 1, 4}, FloorZero)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, tr.States[1][0], 1e-12)
	assert.InDelta(t, 0.9*(1-0.3), tr.States[2][0], 1e-12)
}

func TestClampingToFloor(t *testing.T) {
	// a step of 10 on dy/dt = -y overshoots below zero
	tr, err := Euler(decay(1), model.State{1.0}, []float64{0, 10}, FloorProliferation)
	require.NoError(t, err)
	assert.Equal(t, FloorProliferation, tr.Final()[0])

	tr, err = RK4(decay(5), model.State{1.0}, 0, 10, 3)
	require.NoError(t, err)
	for _, s := range tr.States {
		assert.GreaterOrEqual(t, s[0], 0.0)
	}
}

func TestInvalidTimesAreConfigErrors(t *testing.T) {
	_, err := Euler(decay(1), model.State{1}, []float64{0, 1, 1}, FloorZero)
	assert.True(t, core.IsConfigError(err))

	_, err = Euler(decay(1), model.State{1}, nil, FloorZero)
	assert.True(t, core.IsConfigError(err))

	_, err = RK4(decay(1), model.State{1}, 2, 1, 10)
	assert.True(t, core.IsConfigError(err))

	_, err = RK4(decay(1), model.State{1}, 0, 1, 0)
	assert.True(t, core.IsConfigError(err))

	_, err = Euler(decay(1), model.State{1, 2}, []float64{0, 1}, FloorZero)
	assert.True(t, core.IsConfigError(err))
}

func TestNonFiniteStateIsInstability(t *testing.T) {
	blowup := funcSystem{dim: 1, f: func(_ float64, y model.State) model.State {
		return model.State{math.Inf(1)}
	}}
	_, err := Euler(blowup, model.State{1}, []float64{0, 1}, FloorZero)
	assert.ErrorIs(t, err, core.ErrNumericInstability)

	_, err = RK4(blowup, model.State{1}, 0, 1, 5)
	assert.ErrorIs(t, err, core.ErrNumericInstability)
}

func TestEulerSequentialUsesAdvancedChemokine(t *testing.T) {
	p := model.RecruitmentParams{Alpha: 1.0, KL: 0.5, DMo: 0.1, CC: 0.2, CM2: 0.1, DL: 0.3}
	scen := model.RecruitmentScenario{Name: "mets", CDrive: 1.0, M2Drive: 0.3, Eta: 0.8, L0: 0.1, Mo0: 0.1}
	times := Linspace(0, 8, 81)

	tr, err := EulerSequential(scen.System(p), scen.Initial(), times, FloorZero)
	require.NoError(t, err)

	l, mo := 0.1, 0.1
	for i := 1; i < len(times); i++ {
		dt := times[i] - times[i-1]
		l = math.Max(0, l+dt*(p.CC*1.0+p.CM2*0.3-p.DL*l))
		mo = math.Max(0, mo+dt*(p.Alpha*l/(p.KL+l+model.Epsilon)*0.8-p.DMo*mo))
	}
	final := tr.Final()
	assert.InDelta(t, l, final[model.IdxL], 1e-12)
	assert.InDelta(t, mo, final[model.IdxMo], 1e-12)

	// the simultaneous scheme reads the old L and therefore differs
	jacobi, err := Euler(scen.System(p), scen.Initial(), times, FloorZero)
	require.NoError(t, err)
	assert.NotEqual(t, final[model.IdxMo], jacobi.Final()[model.IdxMo])
}

func TestFullModelRK4StaysNonNegative(t *testing.T) {
	p, err := model.NewFullParams(map[string]float64{
		model.ParamR: 0.4, model.ParamK: 50, model.ParamAlphaM2: 0.05,
		model.ParamKI: 1.0, model.ParamSigmaCCL2: 0.6, model.ParamDM2: 0.3,
		model.ParamSV: 0.2, model.ParamDV: 0.5,
	}, nil)
	require.NoError(t, err)

	scen := model.FullScenario{Name: "Control", C0: 1, AM20: 0, V0: 0}
	tr, err := RK4(scen.System(p), scen.Initial(), 0, 30, 301)
	require.NoError(t, err)
	require.Equal(t, 301, tr.Len())

	for _, s := range tr.States {
		for _, v := range s {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}
	assert.Greater(t, tr.Final()[model.IdxC], 1.0)

	pts := tr.Points()
	assert.Equal(t, 30.0, pts[len(pts)-1].Time)
	assert.Equal(t, tr.Final(), pts[len(pts)-1].State)
}
