package search

import (
	"context"
	"log"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// RefineOptions bounds the local polish stage
type RefineOptions struct {
	MaxEvaluations int
}

// penalty stands in for non-finite losses inside the simplex search
const penalty = 1e300

// Refine polishes a search result with a derivative-free Nelder-Mead search
// started from the winning candidate. Points are clamped into the space's
// bounds before evaluation. The refined point replaces the original only if
// its loss is strictly lower, so refinement never changes a result whose
// candidate is already locally optimal.
func Refine(ctx context.Context, space Space, loss Loss, start *Result, opts RefineOptions) (*Result, error) {
	enum, err := NewEnumerator(space)
	if err != nil {
		return nil, err
	}
	if opts.MaxEvaluations <= 0 {
		opts.MaxEvaluations = 200 * len(space.Dims)
	}

	clampTo := func(x []float64) []float64 {
		out := make([]float64, len(x))
		for i, d := range space.Dims {
			out[i] = math.Min(d.Hi, math.Max(d.Lo, x[i]))
		}
		return out
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if ctx.Err() != nil {
				return penalty
			}
			v := loss(enum.FromValues(clampTo(x)))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return penalty
			}
			return v
		},
	}
	settings := &optimize.Settings{FuncEvaluations: opts.MaxEvaluations}

	x0 := append([]float64(nil), start.candidate.Values...)
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil && res == nil {
		log.Printf("[Search] %s: refinement failed, keeping grid result: %v", start.Problem, err)
		return start, nil
	}
	if err := ctx.Err(); err != nil {
		return start, err
	}

	x := clampTo(res.X)
	refined := enum.FromValues(x)
	f := loss(refined)
	if math.IsNaN(f) || math.IsInf(f, 0) || !(f < start.Loss) {
		log.Printf("[Search] %s: refinement found no improvement over %.6g", start.Problem, start.Loss)
		return start, nil
	}

	out := *start
	out.Best = refined.Map()
	out.Loss = f
	out.Index = -1
	out.Refined = true
	out.Evaluated += res.Stats.FuncEvaluations
	out.candidate = refined
	log.Printf("[Search] %s: refined loss %.6g -> %.6g in %d evaluations",
		start.Problem, start.Loss, f, res.Stats.FuncEvaluations)
	return &out, nil
}
