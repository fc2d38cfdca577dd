package search

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"
	"time"

	"tamcal/domain/core"

	"golang.org/x/sync/errgroup"
)

// Loss scores a candidate. It must be a pure function of the candidate:
// candidates are evaluated concurrently and in no particular order. A
// non-finite value excludes the candidate.
type Loss func(c Candidate) float64

// Options tunes a search run
type Options struct {
	// Workers bounds concurrent evaluation; <= 0 uses GOMAXPROCS
	Workers int
	// ChunkSize is how many consecutive candidates a worker takes at once
	ChunkSize int
	// MaxEvaluations, when > 0, scores only the first N candidates of the
	// enumeration order
	MaxEvaluations int
}

const defaultChunkSize = 256

// Result is the outcome of a search
type Result struct {
	Problem   string             `json:"problem"`
	Best      map[string]float64 `json:"best"`
	Loss      float64            `json:"loss"`
	Index     int                `json:"index"`
	Evaluated int                `json:"evaluated"`
	Excluded  int                `json:"excluded"`
	Total     int                `json:"total"`
	Truncated bool               `json:"truncated,omitempty"`
	Refined   bool               `json:"refined,omitempty"`
	SpaceHash core.Hash          `json:"space_hash"`
	Elapsed   time.Duration      `json:"elapsed_ns"`

	candidate Candidate
}

// Candidate returns the winning candidate
func (r *Result) Candidate() Candidate {
	return r.candidate
}

// best is a partial reduction over a run of candidates
type best struct {
	loss     float64
	index    int
	found    bool
	excluded int
	seen     int
}

// offer keeps the strictly lower loss; on an exact tie the earlier index wins
func (b *best) offer(loss float64, index int) {
	b.seen++
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		b.excluded++
		return
	}
	if !b.found || loss < b.loss || (loss == b.loss && index < b.index) {
		b.loss, b.index, b.found = loss, index, true
	}
}

func (b *best) merge(o best) {
	b.seen += o.seen
	b.excluded += o.excluded
	if !o.found {
		return
	}
	if !b.found || o.loss < b.loss || (o.loss == b.loss && o.index < b.index) {
		b.loss, b.index, b.found = o.loss, o.index, true
	}
}

// Run scores every candidate of space and returns the lowest loss.
//
// Ties are broken in favor of the candidate that comes first in the
// enumeration order, exactly as a sequential scan keeping only strictly
// lower losses would. Workers reduce over contiguous chunks and the chunk
// results are merged on (loss, index), so the winner does not depend on
// scheduling. Cancellation is checked between candidates.
//
// If no candidate yields a finite loss the error is a *core.FitFailureError.
func Run(ctx context.Context, problem string, space Space, loss Loss, opts Options) (*Result, error) {
	enum, err := NewEnumerator(space)
	if err != nil {
		return nil, fmt.Errorf("%s search space: %w", problem, err)
	}

	total := enum.Len()
	n := total
	truncated := false
	if opts.MaxEvaluations > 0 && opts.MaxEvaluations < total {
		n = opts.MaxEvaluations
		truncated = true
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}

	log.Printf("[Search] %s: scoring %d of %d %s candidates on %d workers (space %s)",
		problem, n, total, space.Mode, workers, space.Hash().Short())
	start := time.Now()

	var (
		mu     sync.Mutex
		global best
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var local best
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				local.offer(loss(enum.At(i)), i)
			}
			mu.Lock()
			global.merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s search interrupted after %d candidates: %w", problem, global.seen, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s search interrupted after %d candidates: %w", problem, global.seen, err)
	}

	if !global.found {
		return nil, &core.FitFailureError{Problem: problem, Evaluated: global.seen, Excluded: global.excluded}
	}

	winner := enum.At(global.index)
	res := &Result{
		Problem:   problem,
		Best:      winner.Map(),
		Loss:      global.loss,
		Index:     global.index,
		Evaluated: global.seen,
		Excluded:  global.excluded,
		Total:     total,
		Truncated: truncated,
		SpaceHash: space.Hash(),
		Elapsed:   time.Since(start),
		candidate: winner,
	}
	log.Printf("[Search] %s: best loss %.6g at candidate %d (%d excluded) in %v",
		problem, res.Loss, res.Index, res.Excluded, res.Elapsed)
	return res, nil
}

// WeightedSSE is sum(w*(pred-obs)^2). Mismatched lengths give NaN so the
// candidate is excluded rather than silently scored on a prefix.
func WeightedSSE(pred, obs, w []float64) float64 {
	if len(pred) != len(obs) || (w != nil && len(w) != len(obs)) {
		return math.NaN()
	}
	total := 0.0
	for i := range obs {
		d := pred[i] - obs[i]
		weight := 1.0
		if w != nil {
			weight = w[i]
		}
		total += weight * d * d
	}
	return total
}
