// Public domain.

package trace

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// A MixFunc maps one population draw, in the column layout of the
// Population variable, to mixture component weights, means and
// covariances.  model.(*Model).Mixture satisfies it.
type MixFunc func(pop []float64) (w []float64, mean [][]float64, cov []*mat.SymDense, err error)

// ClassifyOpt controls classification.
type ClassifyOpt struct {
	// MaxDraws caps the number of draws voted over.  Zero selects 100.
	MaxDraws int
	// Chain is the single chain voted from.  Label switching across
	// chains makes a cross-chain vote meaningless.
	Chain int
}

func (o *ClassifyOpt) maxDraws() int {
	if o.MaxDraws == 0 {
		return 100
	}
	return o.MaxDraws
}

// Classify assigns each star to one mixture component.  For each of at
// most MaxDraws draws it scores the star's sampled location against
// every component of the same draw; the component winning the most
// draws is the label, first-indexed component winning ties.  The draw
// subset depends only on rnd, so a fixed seed gives identical labels on
// repeat calls.
func Classify(e *Ensemble, mix MixFunc, opt ClassifyOpt, rnd *rand.Rand) ([]int, error) {
	src, ok := e.Posterior[Source]
	if !ok {
		return nil, fmt.Errorf("trace: dataset has no posterior %s group", Source)
	}
	pop, ok := e.Posterior[Population]
	if !ok {
		return nil, fmt.Errorf("trace: dataset has no posterior %s group", Population)
	}
	if opt.Chain >= src.NumChains() {
		return nil, fmt.Errorf("trace: chain %d of %d requested", opt.Chain, src.NumChains())
	}
	draws := len(src.Data[opt.Chain])
	sel := make([]int, draws)
	for i := range sel {
		sel[i] = i
	}
	if m := opt.maxDraws(); draws > m {
		perm := rnd.Perm(draws)
		sel = perm[:m]
	}

	d := len(src.Cols)
	n := len(e.IDs)
	var votes [][]int
	x := make([]float64, d)
	for _, t := range sel {
		w, mean, cov, err := mix(pop.Data[opt.Chain][t])
		if err != nil {
			return nil, err
		}
		if votes == nil {
			votes = make([][]int, n)
			for i := range votes {
				votes[i] = make([]int, len(w))
			}
		}
		comps := make([]*distmv.Normal, len(w))
		for k := range w {
			var ok bool
			comps[k], ok = distmv.NewNormal(mean[k], cov[k], nil)
			if !ok {
				// a degenerate component never wins a vote
				comps[k] = nil
			}
		}
		row := src.Data[opt.Chain][t]
		for i := 0; i < n; i++ {
			copy(x, row[i*d:(i+1)*d])
			best, bestLp := 0, math.Inf(-1)
			for k := range comps {
				if comps[k] == nil {
					continue
				}
				// the vote compares unweighted component densities
				lp := comps[k].LogProb(x)
				if lp > bestLp {
					best, bestLp = k, lp
				}
			}
			votes[i][best]++
		}
	}

	labels := make([]int, n)
	for i := range labels {
		best := 0
		for k, v := range votes[i] {
			if v > votes[i][best] {
				best = k
			}
		}
		labels[i] = best
	}
	return labels, nil
}
