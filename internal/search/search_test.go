package search

import (
	"context"
	"math"
	"testing"

	"tamcal/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpaceValidate(t *testing.T) {
	tests := []struct {
		name  string
		space Space
		ok    bool
	}{
		{"valid grid", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 3}}}, true},
		{"single point", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 2, Hi: 2, Points: 1}}}, true},
		{"valid random", Space{Mode: ModeRandom, Samples: 10, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1}}}, true},
		{"unknown mode", Space{Mode: "anneal", Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 3}}}, false},
		{"no dims", Space{Mode: ModeGrid}, false},
		{"inverted bounds", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 1, Hi: 0, Points: 3}}}, false},
		{"zero points", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 0}}}, false},
		{"empty range", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 1, Hi: 1, Points: 4}}}, false},
		{"empty random range", Space{Mode: ModeRandom, Samples: 5, Dims: []Dimension{{Name: "x", Lo: 1, Hi: 1}}}, false},
		{"zero samples", Space{Mode: ModeRandom, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1}}}, false},
		{"nan bound", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: math.NaN(), Hi: 1, Points: 2}}}, false},
		{"duplicate", Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 2}, {Name: "x", Lo: 0, Hi: 1, Points: 2}}}, false},
		{"searched and fixed", Space{Mode: ModeGrid, Fixed: map[string]float64{"x": 1}, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 2}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.space.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsConfigError(err), "got %v", err)
		})
	}
}

func TestGridEnumerationIsRowMajor(t *testing.T) {
	space := Space{
		Mode:  ModeGrid,
		Fixed: map[string]float64{"k": 7},
		Dims: []Dimension{
			{Name: "a", Lo: 0, Hi: 1, Points: 2},
			{Name: "b", Lo: 10, Hi: 30, Points: 3},
		},
	}
	enum, err := NewEnumerator(space)
	require.NoError(t, err)
	require.Equal(t, 6, enum.Len())

	var got [][]float64
	for i := 0; i < enum.Len(); i++ {
		c := enum.At(i)
		assert.Equal(t, i, c.Index)
		got = append(got, c.Values)
	}
	assert.Equal(t, [][]float64{{0, 10}, {0, 20}, {0, 30}, {1, 10}, {1, 20}, {1, 30}}, got)

	c := enum.At(5)
	assert.Equal(t, 1.0, c.Value("a"))
	assert.Equal(t, 30.0, c.Value("b"))
	assert.Equal(t, 7.0, c.Value("k"))
	assert.True(t, math.IsNaN(c.Value("missing")))
	assert.Equal(t, map[string]float64{"a": 1, "b": 30, "k": 7}, c.Map())
}

func TestRandomEnumerationIsSeeded(t *testing.T) {
	space := Space{
		Mode:    ModeRandom,
		Samples: 50,
		Seed:    42,
		Dims:    []Dimension{{Name: "a", Lo: 0.2, Hi: 2.0}, {Name: "b", Lo: 0.05, Hi: 1.05}},
	}
	e1, err := NewEnumerator(space)
	require.NoError(t, err)
	e2, err := NewEnumerator(space)
	require.NoError(t, err)

	for i := 0; i < e1.Len(); i++ {
		assert.Equal(t, e1.At(i).Values, e2.At(i).Values)
		a, b := e1.At(i).Value("a"), e1.At(i).Value("b")
		assert.True(t, a >= 0.2 && a <= 2.0)
		assert.True(t, b >= 0.05 && b <= 1.05)
	}

	space.Seed = 43
	e3, err := NewEnumerator(space)
	require.NoError(t, err)
	assert.NotEqual(t, e1.At(0).Values, e3.At(0).Values)
	assert.NotEqual(t, space.Hash(), Space{Mode: ModeRandom, Samples: 50, Seed: 42, Dims: space.Dims}.Hash())
}

func quadratic(min float64) Loss {
	return func(c Candidate) float64 {
		d := c.Value("x") - min
		return d * d
	}
}

func TestGridSearchFindsClosestPoint(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 11}}}

	res, err := Run(context.Background(), "quadratic", space, quadratic(0.37), Options{Workers: 4, ChunkSize: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Best["x"], 1e-12)
	assert.Equal(t, 4, res.Index)
	assert.InDelta(t, 0.0009, res.Loss, 1e-12)
	assert.Equal(t, 11, res.Evaluated)
	assert.Equal(t, 0, res.Excluded)
	assert.False(t, res.Truncated)
}

func TestTiesResolveToFirstEnumerated(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 2}}}

	// (0-0.5)^2 == (1-0.5)^2
	res, err := Run(context.Background(), "tie", space, quadratic(0.5), Options{Workers: 2, ChunkSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, 0.0, res.Best["x"])
}

func TestTieBreakIsStableUnderParallelism(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{
		{Name: "x", Lo: 0, Hi: 1, Points: 40},
		{Name: "y", Lo: 0, Hi: 1, Points: 40},
	}}
	// flat in y, so every x=0.5-nearest row ties across its 40 y values
	loss := func(c Candidate) float64 {
		return math.Round(math.Abs(c.Value("x")-0.5) * 10)
	}

	var want int
	for run := 0; run < 20; run++ {
		res, err := Run(context.Background(), "flat", space, loss, Options{Workers: 8, ChunkSize: 3})
		require.NoError(t, err)
		if run == 0 {
			want = res.Index
		}
		assert.Equal(t, want, res.Index)
	}

	sequential, err := Run(context.Background(), "flat", space, loss, Options{Workers: 1, ChunkSize: 1600})
	require.NoError(t, err)
	assert.Equal(t, want, sequential.Index)
	assert.Equal(t, 0.0, sequential.Best["y"])
}

func TestAllNonFiniteIsFitFailure(t *testing.T) {
	space := Space{Mode: ModeRandom, Samples: 25, Seed: 1, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1}}}
	_, err := Run(context.Background(), "diverge", space, func(Candidate) float64 { return math.Inf(1) }, Options{})
	require.Error(t, err)
	assert.True(t, core.IsFitFailure(err))

	var ffe *core.FitFailureError
	require.ErrorAs(t, err, &ffe)
	assert.Equal(t, 25, ffe.Evaluated)
	assert.Equal(t, 25, ffe.Excluded)
	assert.Equal(t, "diverge", ffe.Problem)
}

func TestNonFiniteCandidatesAreExcluded(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 11}}}
	loss := func(c Candidate) float64 {
		if c.Value("x") < 0.45 {
			return math.NaN()
		}
		return c.Value("x")
	}
	res, err := Run(context.Background(), "partial", space, loss, Options{Workers: 3, ChunkSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Excluded)
	assert.InDelta(t, 0.5, res.Best["x"], 1e-12)
}

func TestMaxEvaluationsTruncatesInOrder(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 11}}}
	res, err := Run(context.Background(), "budget", space, quadratic(1.0), Options{MaxEvaluations: 3})
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 3, res.Evaluated)
	assert.Equal(t, 11, res.Total)
	assert.InDelta(t, 0.2, res.Best["x"], 1e-12)
}

func TestCancelledSearchReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 1000}}}
	_, err := Run(ctx, "cancel", space, quadratic(0.5), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvalidSpaceIsConfigError(t *testing.T) {
	_, err := Run(context.Background(), "bad", Space{Mode: ModeGrid}, quadratic(0), Options{})
	assert.True(t, core.IsConfigError(err))
}

func TestWeightedSSE(t *testing.T) {
	assert.InDelta(t, 2*1+3*4, WeightedSSE([]float64{1, 2}, []float64{0, 4}, []float64{2, 3}), 1e-12)
	assert.InDelta(t, 5.0, WeightedSSE([]float64{1, 2}, []float64{0, 4}, nil), 1e-12)
	assert.True(t, math.IsNaN(WeightedSSE([]float64{1}, []float64{0, 4}, nil)))
}

func TestRefineImprovesOffGridMinimum(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{
		{Name: "x", Lo: 0, Hi: 1, Points: 11},
		{Name: "y", Lo: -1, Hi: 1, Points: 5},
	}}
	loss := func(c Candidate) float64 {
		dx, dy := c.Value("x")-0.37, c.Value("y")-0.21
		return dx*dx + dy*dy
	}
	res, err := Run(context.Background(), "refine", space, loss, Options{})
	require.NoError(t, err)

	refined, err := Refine(context.Background(), space, loss, res, RefineOptions{MaxEvaluations: 500})
	require.NoError(t, err)
	assert.True(t, refined.Refined)
	assert.Less(t, refined.Loss, res.Loss)
	assert.InDelta(t, 0.37, refined.Best["x"], 1e-3)
	assert.InDelta(t, 0.21, refined.Best["y"], 1e-3)
	assert.Equal(t, -1, refined.Index)
}

func TestRefineKeepsBoundsAndOptimalResult(t *testing.T) {
	space := Space{Mode: ModeGrid, Dims: []Dimension{{Name: "x", Lo: 0, Hi: 1, Points: 3}}}
	// unconstrained minimum lies outside the box
	loss := quadratic(2.0)
	res, err := Run(context.Background(), "edge", space, loss, Options{})
	require.NoError(t, err)
	require.Equal(t, 1.0, res.Best["x"])

	refined, err := Refine(context.Background(), space, loss, res, RefineOptions{})
	require.NoError(t, err)
	assert.False(t, refined.Refined)
	assert.Equal(t, res, refined)
}
