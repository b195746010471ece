// Public domain.

// Package evidence estimates the marginal likelihood of 1D models by
// nested sampling, with weighted posterior parameter summaries.
package evidence

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// A Transform maps a point of the unit hypercube to physical parameter
// values, realizing the prior.
type Transform func(u []float64) []float64

// A LogLike evaluates the normalized log likelihood at physical
// parameter values.
type LogLike func(theta []float64) float64

// Config controls the nested sampling run.  Zero fields select
// defaults.
type Config struct {
	// Live is the number of live points.
	Live int
	// DlogZ terminates the run when the remaining live points can
	// change the log evidence by less than this.
	DlogZ float64
	// MaxIter caps the shrinkage iterations.
	MaxIter int
	// Walk is the number of constrained random-walk steps used to
	// draw each replacement point.
	Walk int
}

func (c *Config) setDefaults() {
	if c.Live == 0 {
		c.Live = 400
	}
	if c.DlogZ == 0 {
		c.DlogZ = .01
	}
	if c.MaxIter == 0 {
		c.MaxIter = 200000
	}
	if c.Walk == 0 {
		c.Walk = 25
	}
}

// Result is a completed evidence run.
type Result struct {
	// LogZ is the log evidence, LogZErr its sampling uncertainty.
	LogZ, LogZErr float64

	// Names labels the physical parameters.
	Names []string
	// Samples holds the dead and final live points in physical
	// space, LogW their normalized log posterior weights.
	Samples [][]float64
	LogW    []float64
}

// Sample runs static nested sampling over a dim-dimensional unit cube.
func Sample(dim int, names []string, tr Transform, ll LogLike, cfg Config, rnd *rand.Rand) (*Result, error) {
	cfg.setDefaults()
	n := cfg.Live

	u := make([][]float64, n)
	logl := make([]float64, n)
	for i := range u {
		u[i] = make([]float64, dim)
		for {
			for j := range u[i] {
				u[i][j] = rnd.Float64()
			}
			logl[i] = ll(tr(u[i]))
			if !math.IsInf(logl[i], -1) && !math.IsNaN(logl[i]) {
				break
			}
		}
	}

	res := &Result{LogZ: math.Inf(-1), Names: names}
	h := 0. // information
	logX := 0.
	step := .1
	shrink := -1 / float64(n)

	record := func(lw, lp float64, theta []float64) {
		logZNew := logSumExp(res.LogZ, lw+lp)
		if !math.IsInf(logZNew, -1) {
			h = math.Exp(lw+lp-logZNew)*lp +
				math.Exp(res.LogZ-logZNew)*(h+res.LogZ) - logZNew
		}
		res.LogZ = logZNew
		res.Samples = append(res.Samples, theta)
		res.LogW = append(res.LogW, lw+lp)
	}

	it := 0
	for ; it < cfg.MaxIter; it++ {
		worst := 0
		best := 0
		for i := 1; i < n; i++ {
			if logl[i] < logl[worst] {
				worst = i
			}
			if logl[i] > logl[best] {
				best = i
			}
		}
		// termination: live points can no longer move logZ
		if logSumExp(res.LogZ, logX+logl[best])-res.LogZ < cfg.DlogZ && it > n {
			break
		}

		logXNext := logX + shrink
		lw := logX + math.Log(1-math.Exp(shrink))
		record(lw, logl[worst], tr(u[worst]))

		nu, nl, acc := replace(u, logl, worst, logl[worst], tr, ll, cfg.Walk, step, rnd)
		u[worst] = nu
		logl[worst] = nl
		// keep the constrained walk near 50% acceptance
		if acc > .6 {
			step *= 1.2
		} else if acc < .3 {
			step /= 1.2
		}
		logX = logXNext
	}
	if it == cfg.MaxIter {
		return nil, fmt.Errorf("evidence: no convergence after %d iterations", cfg.MaxIter)
	}

	// surviving live points share the remaining prior volume
	lw := logX - math.Log(float64(n))
	for i := 0; i < n; i++ {
		record(lw, logl[i], tr(u[i]))
	}

	for i := range res.LogW {
		res.LogW[i] -= res.LogZ
	}
	if h < 0 {
		h = 0
	}
	res.LogZErr = math.Sqrt(h / float64(n))
	return res, nil
}

// replace draws a point above the likelihood bound by a random walk
// from a surviving live point, reflecting at the cube boundary.
func replace(u [][]float64, logl []float64, worst int, bound float64, tr Transform, ll LogLike, walk int, step float64, rnd *rand.Rand) ([]float64, float64, float64) {
	n := len(u)
	src := worst
	for src == worst && n > 1 {
		src = rnd.Intn(n)
	}
	cur := make([]float64, len(u[src]))
	copy(cur, u[src])
	cl := logl[src]

	prop := make([]float64, len(cur))
	accepted := 0
	for s := 0; s < walk; s++ {
		for j := range prop {
			v := cur[j] + step*rnd.NormFloat64()
			v = math.Mod(v, 2)
			if v < 0 {
				v += 2
			}
			if v > 1 {
				v = 2 - v
			}
			prop[j] = v
		}
		if l := ll(tr(prop)); l > bound {
			copy(cur, prop)
			cl = l
			accepted++
		}
	}
	return cur, cl, float64(accepted) / float64(walk)
}

// Quantile returns the weighted quantile of parameter p over the run's
// posterior samples.
func (r *Result) Quantile(p int, q float64) float64 {
	type wv struct{ v, w float64 }
	s := make([]wv, len(r.Samples))
	for i, th := range r.Samples {
		s[i] = wv{th[p], math.Exp(r.LogW[i])}
	}
	sort.Slice(s, func(i, j int) bool { return s[i].v < s[j].v })
	c := 0.
	for _, e := range s {
		c += e.w
		if c >= q {
			return e.v
		}
	}
	return s[len(s)-1].v
}

func logSumExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}
