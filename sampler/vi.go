// Public domain.

package sampler

import (
	"errors"
	"math"

	"golang.org/x/exp/rand"
)

// VIConfig controls the mean-field variational optimizer.
type VIConfig struct {
	Iterations int     // steps per trial
	Trials     int     // independent restarts
	Samples    int     // Monte Carlo samples per gradient estimate
	Step       float64 // adagrad base step size
	RelTol     float64 // relative ELBO change declaring convergence
	AbsTol     float64 // absolute ELBO change declaring convergence
	CheckEvery int     // convergence check interval
}

// DefaultVI is the configuration used when fields are zero.
var DefaultVI = VIConfig{
	Iterations: 10000,
	Trials:     3,
	Samples:    1,
	Step:       .1,
	RelTol:     1e-4,
	AbsTol:     1e-2,
	CheckEvery: 100,
}

func (c *VIConfig) setDefaults() {
	d := DefaultVI
	if c.Iterations == 0 {
		c.Iterations = d.Iterations
	}
	if c.Trials == 0 {
		c.Trials = d.Trials
	}
	if c.Samples == 0 {
		c.Samples = d.Samples
	}
	if c.Step == 0 {
		c.Step = d.Step
	}
	if c.RelTol == 0 {
		c.RelTol = d.RelTol
	}
	if c.AbsTol == 0 {
		c.AbsTol = d.AbsTol
	}
	if c.CheckEvery == 0 {
		c.CheckEvery = d.CheckEvery
	}
}

// VIResult is a fitted mean-field Gaussian approximation.
type VIResult struct {
	Mean      []float64
	LogStd    []float64
	ELBO      []float64 // smoothed trajectory, one entry per check interval
	Final     float64   // last smoothed ELBO
	Converged bool
}

// Variance returns the per-coordinate variance of the approximation.
func (r *VIResult) Variance() []float64 {
	v := make([]float64, len(r.LogStd))
	for i, w := range r.LogStd {
		v[i] = math.Exp(2 * w)
	}
	return v
}

// Draw samples one point from the approximation.
func (r *VIResult) Draw(rnd *rand.Rand, dst []float64) {
	for i := range dst {
		dst[i] = r.Mean[i] + math.Exp(r.LogStd[i])*rnd.NormFloat64()
	}
}

// ErrAllTrialsDiverged reports that no variational trial produced a finite
// objective.
var ErrAllTrialsDiverged = errors.New("sampler: all variational trials diverged")

// BestVI runs cfg.Trials independent optimizations, restarting from init
// each time, and returns the trial with the highest final objective.
func BestVI(t Target, init func(*rand.Rand) []float64, cfg VIConfig, rnd *rand.Rand) (*VIResult, error) {
	cfg.setDefaults()
	var best *VIResult
	for trial := 0; trial < cfg.Trials; trial++ {
		r, err := VI(t, init(rnd), cfg, rnd)
		if err != nil {
			continue
		}
		if best == nil || r.Final > best.Final {
			best = r
		}
	}
	if best == nil {
		return nil, ErrAllTrialsDiverged
	}
	return best, nil
}

// VI fits a mean-field Gaussian to the target by stochastic gradient ascent
// on the ELBO with the reparametrization estimator and adagrad step sizes.
func VI(t Target, init []float64, cfg VIConfig, rnd *rand.Rand) (*VIResult, error) {
	cfg.setDefaults()
	n := t.Dim()
	mu := make([]float64, n)
	copy(mu, init)
	om := make([]float64, n) // log standard deviations
	for i := range om {
		om[i] = -2
	}

	gMu := make([]float64, n)
	gOm := make([]float64, n)
	aMu := make([]float64, n) // adagrad accumulators
	aOm := make([]float64, n)
	grad := make([]float64, n)
	x := make([]float64, n)
	eps := make([]float64, n)

	var trace []float64
	smoothed := math.Inf(-1)
	window, diverged := 0., 0
	converged := false

	for it := 0; it < cfg.Iterations; it++ {
		for i := range gMu {
			gMu[i], gOm[i] = 0, 0
		}
		elbo := 0.
		bad := false
		for s := 0; s < cfg.Samples; s++ {
			for i := range x {
				eps[i] = rnd.NormFloat64()
				x[i] = mu[i] + math.Exp(om[i])*eps[i]
			}
			lp := t.Gradient(grad, x)
			if math.IsInf(lp, -1) || math.IsNaN(lp) {
				bad = true
				continue
			}
			elbo += lp / float64(cfg.Samples)
			for i := range grad {
				gMu[i] += grad[i] / float64(cfg.Samples)
				gOm[i] += grad[i] * eps[i] * math.Exp(om[i]) / float64(cfg.Samples)
			}
		}
		// entropy term
		for i := range om {
			elbo += om[i]
			gOm[i] += 1
		}

		for i := range mu {
			aMu[i] += gMu[i] * gMu[i]
			aOm[i] += gOm[i] * gOm[i]
			mu[i] += cfg.Step / (math.Sqrt(aMu[i]) + 1e-8) * gMu[i]
			om[i] += cfg.Step / (math.Sqrt(aOm[i]) + 1e-8) * gOm[i]
		}
		if bad {
			diverged++
		} else {
			window += elbo / float64(cfg.CheckEvery)
		}

		if (it+1)%cfg.CheckEvery == 0 {
			// a window dominated by divergences fails the trial
			if diverged > cfg.CheckEvery/2 {
				return nil, ErrAllTrialsDiverged
			}
			prev := smoothed
			smoothed = window
			window, diverged = 0, 0
			trace = append(trace, smoothed)
			if math.IsNaN(smoothed) {
				return nil, ErrAllTrialsDiverged
			}
			if !math.IsInf(prev, -1) {
				d := math.Abs(smoothed - prev)
				if d < cfg.AbsTol || d < cfg.RelTol*math.Abs(prev) {
					converged = true
					break
				}
			}
		}
	}
	if len(trace) == 0 {
		return nil, ErrAllTrialsDiverged
	}
	return &VIResult{
		Mean:      mu,
		LogStd:    om,
		ELBO:      trace,
		Final:     trace[len(trace)-1],
		Converged: converged,
	}, nil
}
