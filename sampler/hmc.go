// Public domain.

package sampler

import (
	"math"

	"golang.org/x/exp/rand"
)

// HMCConfig holds tuning parameters for the Hamiltonian Monte Carlo
// sampler.  The zero value selects defaults via setHMCDefaults.
type HMCConfig struct {
	// Warmup is the number of adaptation iterations.  Step size is
	// dual averaged and the diagonal mass matrix re-estimated during
	// warmup; both freeze afterward.
	Warmup int
	// Draws is the number of post-warmup samples to keep.
	Draws int
	// Target is the target mean acceptance probability.
	Target float64
	// MaxLeapfrog caps the leapfrog steps per transition.
	MaxLeapfrog int
	// PriorMassWeight is the pseudo-count weight given to the initial
	// mass estimate when blending it with the running sample variance
	// during warmup.
	PriorMassWeight float64
	// StepJitter scales a uniform perturbation of the step size per
	// transition, breaking resonances with periodic targets.
	StepJitter float64
}

// DefaultHMC is the configuration used when fields are left zero.
var DefaultHMC = HMCConfig{
	Warmup:          1000,
	Draws:           1000,
	Target:          .8,
	MaxLeapfrog:     64,
	PriorMassWeight: 50,
	StepJitter:      .1,
}

func (c *HMCConfig) setDefaults() {
	if c.Warmup == 0 {
		c.Warmup = DefaultHMC.Warmup
	}
	if c.Draws == 0 {
		c.Draws = DefaultHMC.Draws
	}
	if c.Target == 0 {
		c.Target = DefaultHMC.Target
	}
	if c.MaxLeapfrog == 0 {
		c.MaxLeapfrog = DefaultHMC.MaxLeapfrog
	}
	if c.PriorMassWeight == 0 {
		c.PriorMassWeight = DefaultHMC.PriorMassWeight
	}
	if c.StepJitter == 0 {
		c.StepJitter = DefaultHMC.StepJitter
	}
}

// Chain holds the output of one HMC chain.
type Chain struct {
	// Draws holds the post-warmup samples, one parameter vector per
	// draw.
	Draws [][]float64
	// LogP holds the target log density at each draw.
	LogP []float64
	// Accept is the mean acceptance probability over the kept draws.
	Accept float64
	// Divergences counts transitions rejected for numerical blowup
	// after warmup.
	Divergences int
	// StepSize is the step size frozen at the end of warmup.
	StepSize float64
}

// divergence threshold on the change in Hamiltonian over a trajectory.
const maxEnergyError = 1000

// HMC runs one chain of Hamiltonian Monte Carlo on t starting from
// init.  mass is an initial diagonal metric, the estimated posterior
// variance per coordinate; pass nil for a unit metric.  The metric is
// refined during warmup by blending mass, weighted by
// cfg.PriorMassWeight pseudo-counts, with the running variance of the
// warmup draws.
func HMC(t Target, init []float64, mass []float64, cfg HMCConfig, rnd *rand.Rand) (*Chain, error) {
	cfg.setDefaults()
	n := t.Dim()

	va := make([]float64, n) // variance per coordinate, the metric
	if mass == nil {
		for i := range va {
			va[i] = 1
		}
	} else {
		copy(va, mass)
	}
	prior := make([]float64, n)
	copy(prior, va)

	x := make([]float64, n)
	copy(x, init)
	grad := make([]float64, n)
	lp := t.Gradient(grad, x)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return nil, ErrAllTrialsDiverged
	}

	// find a step size giving roughly 50% acceptance before dual
	// averaging takes over
	step := findStep(t, x, lp, grad, va, rnd)

	// dual averaging state, Hoffman and Gelman 2014
	mu := math.Log(10 * step)
	const gamma, t0, kappa = .05, 10, .75
	hBar, logBar := 0., 0.

	// running moments of warmup draws for mass adaptation
	mean := make([]float64, n)
	m2 := make([]float64, n)
	seen := 0.

	xp := make([]float64, n)
	gp := make([]float64, n)
	p := make([]float64, n)

	ch := &Chain{
		Draws: make([][]float64, 0, cfg.Draws),
		LogP:  make([]float64, 0, cfg.Draws),
	}
	accSum := 0.

	total := cfg.Warmup + cfg.Draws
	for it := 0; it < total; it++ {
		warm := it < cfg.Warmup
		eps := step
		if !warm {
			eps = math.Exp(logBar)
		}
		eps *= 1 + cfg.StepJitter*(2*rnd.Float64()-1)

		for i := range p {
			p[i] = rnd.NormFloat64() / math.Sqrt(va[i])
		}
		h0 := lp - kinetic(p, va)

		copy(xp, x)
		copy(gp, grad)
		lpp := lp
		// randomized trajectory length
		steps := 1 + rnd.Intn(cfg.MaxLeapfrog)
		ok := true
		for s := 0; s < steps; s++ {
			lpp, ok = leapfrog(t, xp, p, gp, va, eps)
			if !ok {
				break
			}
		}

		acc := 0.
		if ok {
			h1 := lpp - kinetic(p, va)
			dH := h1 - h0
			if dH < -maxEnergyError || math.IsNaN(dH) {
				ok = false
			} else {
				acc = math.Min(1, math.Exp(dH))
			}
		}
		if !ok && !warm {
			ch.Divergences++
		}
		if ok && rnd.Float64() < acc {
			copy(x, xp)
			copy(grad, gp)
			lp = lpp
		}

		if warm {
			m := float64(it + 1 + t0)
			hBar += (cfg.Target - acc - hBar) / m
			ls := mu - math.Sqrt(float64(it+1))/gamma*hBar
			w := math.Pow(float64(it+1), -kappa)
			logBar = w*ls + (1-w)*logBar
			step = math.Exp(ls)

			seen++
			for i := range x {
				d := x[i] - mean[i]
				mean[i] += d / seen
				m2[i] += d * (x[i] - mean[i])
			}
			// refresh the metric a few times over warmup
			if it+1 == cfg.Warmup/4 || it+1 == cfg.Warmup/2 || it+1 == 3*cfg.Warmup/4 {
				w := cfg.PriorMassWeight
				for i := range va {
					va[i] = (w*prior[i] + m2[i]) / (w + seen)
				}
			}
		} else {
			accSum += acc
			d := make([]float64, n)
			copy(d, x)
			ch.Draws = append(ch.Draws, d)
			ch.LogP = append(ch.LogP, lp)
		}
	}
	ch.Accept = accSum / float64(cfg.Draws)
	ch.StepSize = math.Exp(logBar)
	return ch, nil
}

func kinetic(p, va []float64) float64 {
	k := 0.
	for i, pi := range p {
		k += pi * pi * va[i] / 2
	}
	return k
}

// leapfrog advances position x and momentum p one step of size eps
// under a diagonal metric with variances va, updating g to the
// gradient at the new position.  ok is false on numerical blowup.
func leapfrog(t Target, x, p, g, va []float64, eps float64) (lp float64, ok bool) {
	for i := range p {
		p[i] += eps / 2 * g[i]
	}
	for i := range x {
		x[i] += eps * va[i] * p[i]
	}
	lp = t.Gradient(g, x)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return lp, false
	}
	for i := range p {
		p[i] += eps / 2 * g[i]
	}
	return lp, true
}

// findStep doubles or halves a trial step size until a single leapfrog
// step crosses 50% acceptance.
func findStep(t Target, x []float64, lp float64, grad, va []float64, rnd *rand.Rand) float64 {
	n := len(x)
	step := .1
	p := make([]float64, n)
	xp := make([]float64, n)
	gp := make([]float64, n)
	for i := range p {
		p[i] = rnd.NormFloat64() / math.Sqrt(va[i])
	}
	h0 := lp - kinetic(p, va)

	try := func(eps float64) float64 {
		copy(xp, x)
		copy(gp, grad)
		pp := make([]float64, n)
		copy(pp, p)
		lpp, ok := leapfrog(t, xp, pp, gp, va, eps)
		if !ok {
			return math.Inf(-1)
		}
		return lpp - kinetic(pp, va) - h0
	}

	dH := try(step)
	up := dH > math.Log(.5)
	for i := 0; i < 100; i++ {
		if up {
			step *= 2
			if try(step) <= math.Log(.5) {
				return step / 2
			}
		} else {
			step /= 2
			if try(step) > math.Log(.5) {
				return step
			}
		}
	}
	return step
}
