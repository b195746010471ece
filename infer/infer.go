// Public domain.

// Package infer runs the inference pipeline: optimization warm start,
// parallel HMC chains, predictive draws and dataset persistence.
package infer

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/tzdwi/Kalkayotl/model"
	"github.com/tzdwi/Kalkayotl/sampler"
	"github.com/tzdwi/Kalkayotl/trace"
)

// Config controls one inference run.  Zero fields select defaults.
type Config struct {
	// Chains is the number of independent HMC chains, Draws the
	// retained draws per chain, Tune the discarded adaptation draws.
	Chains int
	Draws  int
	Tune   int
	// Cores bounds concurrent chains and optimization trials.
	Cores int
	// TargetAccept is the step size adaptation target.
	TargetAccept float64

	// Opt configures the warm-start optimization.  Opt.Trials trials
	// run concurrently; SkipOptimize starts chains from jittered
	// data-driven points instead.
	Opt          sampler.VIConfig
	SkipOptimize bool

	// PriorPredictive and PosteriorPredictive request the optional
	// sample groups.
	PriorPredictive     bool
	PosteriorPredictive bool

	// Path is the dataset file to publish.  Empty skips persistence.
	Path string

	// Seed fixes the run; 0 seeds from the clock.
	Seed uint64

	// Logf receives progress reports.  Nil selects log.Printf.
	Logf func(format string, a ...interface{})
}

func (c *Config) setDefaults() {
	if c.Chains == 0 {
		c.Chains = 2
	}
	if c.Draws == 0 {
		c.Draws = 1000
	}
	if c.Tune == 0 {
		c.Tune = 1000
	}
	if c.Cores == 0 {
		c.Cores = 2
	}
	if c.TargetAccept == 0 {
		c.TargetAccept = .8
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
	if c.Logf == nil {
		c.Logf = log.Printf
	}
}

// Result carries the outcome of a run beyond the persisted dataset.
type Result struct {
	Ensemble *trace.Ensemble
	// VI is the selected warm-start fit, nil when optimization was
	// skipped or every trial diverged.
	VI     *sampler.VIResult
	Chains []*sampler.Chain
	// Unstable is set when no optimization trial converged.  The run
	// proceeds, but its warm start is not trustworthy.
	Unstable bool
}

// Run executes the pipeline on a constructed model.  The model and its
// data block are shared read-only across all workers; each chain and
// trial owns a derived generator so concurrent work never shares random
// state.
func Run(ctx context.Context, m *model.Model, cfg Config) (*Result, error) {
	cfg.setDefaults()
	base := rand.New(rand.NewSource(cfg.Seed))
	res := &Result{}

	if !cfg.SkipOptimize {
		vi, unstable, err := warmStart(ctx, m, &cfg, base)
		if err != nil {
			return nil, err
		}
		res.VI = vi
		res.Unstable = unstable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// per-chain starting points and generators
	starts := make([][]float64, cfg.Chains)
	rnds := make([]*rand.Rand, cfg.Chains)
	var mass []float64
	if res.VI != nil {
		mass = res.VI.Variance()
	}
	for c := range starts {
		rnds[c] = rand.New(rand.NewSource(base.Uint64()))
		if res.VI != nil {
			starts[c] = make([]float64, m.Dim())
			res.VI.Draw(base, starts[c])
		} else {
			starts[c] = m.Init(rnds[c])
		}
	}

	e := &trace.Ensemble{
		Dim:    m.D(),
		Family: m.Config().Family.String(),
		IDName: m.Block().IDName,
		IDs:    m.Block().IDs,
	}

	if cfg.PriorPredictive {
		cfg.Logf("drawing %d prior predictive samples", cfg.Draws)
		e.Prior = priorGroup(m, cfg.Draws, rand.New(rand.NewSource(base.Uint64())))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg.Logf("sampling %d chains of %d draws (+%d tuning) on %d workers",
		cfg.Chains, cfg.Draws, cfg.Tune, cfg.Cores)
	chains, err := runChains(ctx, m, starts, mass, rnds, &cfg)
	if err != nil {
		return nil, err
	}
	res.Chains = chains
	for c, ch := range chains {
		cfg.Logf("chain %d: acceptance %.2f, step size %.3g, %d divergences",
			c, ch.Accept, ch.StepSize, ch.Divergences)
	}

	e.Posterior = posteriorGroup(m, chains)
	if cfg.PosteriorPredictive {
		cfg.Logf("drawing posterior predictive samples")
		e.Predictive = predictiveGroup(m, chains, rand.New(rand.NewSource(base.Uint64())))
	}
	res.Ensemble = e

	if cfg.Path != "" {
		if err := e.Save(cfg.Path); err != nil {
			return nil, fmt.Errorf("infer: persisting dataset: %v", err)
		}
		cfg.Logf("dataset written to %s", cfg.Path)
	}
	return res, nil
}

// warmStart runs the optimization trials concurrently and selects the
// best converged fit.  With no converged trial the best finished one is
// used and flagged; with every trial diverged the run aborts.
func warmStart(ctx context.Context, m *model.Model, cfg *Config, base *rand.Rand) (*sampler.VIResult, bool, error) {
	vc := cfg.Opt
	if vc.Trials == 0 {
		vc.Trials = sampler.DefaultVI.Trials
	}
	cfg.Logf("optimizing: %d trials on %d workers", vc.Trials, cfg.Cores)

	fits := make([]*sampler.VIResult, vc.Trials)
	errs := make([]error, vc.Trials)
	seeds := make([]uint64, vc.Trials)
	for i := range seeds {
		seeds[i] = base.Uint64()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Cores)
	for i := 0; i < vc.Trials; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(seeds[i]))
			fits[i], errs[i] = sampler.VI(m, m.Init(rnd), vc, rnd)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	var best *sampler.VIResult
	bestConv := false
	for i, f := range fits {
		if errs[i] != nil {
			cfg.Logf("trial %d diverged: %v", i, errs[i])
			continue
		}
		cfg.Logf("trial %d: final loss %.6g, converged %t", i, -f.Final, f.Converged)
		if best == nil ||
			(f.Converged && !bestConv) ||
			(f.Converged == bestConv && f.Final > best.Final) {
			best, bestConv = f, f.Converged
		}
	}
	switch {
	case best == nil:
		return nil, false, sampler.ErrAllTrialsDiverged
	case !bestConv:
		cfg.Logf("WARNING: no optimization trial converged; " +
			"using the best finished trial")
		return best, true, nil
	}
	return best, false, nil
}

func runChains(ctx context.Context, m *model.Model, starts [][]float64, mass []float64, rnds []*rand.Rand, cfg *Config) ([]*sampler.Chain, error) {
	hc := sampler.HMCConfig{
		Warmup: cfg.Tune,
		Draws:  cfg.Draws,
		Target: cfg.TargetAccept,
	}
	chains := make([]*sampler.Chain, len(starts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Cores)
	for c := range starts {
		c := c
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ch, err := sampler.HMC(m, starts[c], mass, hc, rnds[c])
			if err != nil {
				return fmt.Errorf("chain %d: %v", c, err)
			}
			chains[c] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chains, nil
}

// posteriorGroup converts unconstrained chain draws to physical source
// and population variables.
func posteriorGroup(m *model.Model, chains []*sampler.Chain) map[string]*trace.Var {
	src := trace.NewVar(m.CoordNames(), true, len(chains))
	pop := trace.NewVar(m.ParamNames(), false, len(chains))
	for c, ch := range chains {
		for _, x := range ch.Draws {
			var row []float64
			for _, s := range m.Stars(x) {
				row = append(row, s...)
			}
			src.Data[c] = append(src.Data[c], row)
			pop.Data[c] = append(pop.Data[c], m.Population(x))
		}
	}
	return map[string]*trace.Var{trace.Source: src, trace.Population: pop}
}

// priorGroup draws population parameters from their hyperpriors and one
// synthetic star per draw from the implied population.
func priorGroup(m *model.Model, draws int, rnd *rand.Rand) map[string]*trace.Var {
	src := trace.NewVar(m.CoordNames(), false, 1)
	pop := trace.NewVar(m.ParamNames(), false, 1)
	for t := 0; t < draws; t++ {
		x := m.SamplePrior(rnd)
		pop.Data[0] = append(pop.Data[0], m.Population(x))
		src.Data[0] = append(src.Data[0], m.SamplePredictive(x, rnd))
	}
	return map[string]*trace.Var{trace.Source: src, trace.Population: pop}
}

// predictiveGroup draws one synthetic star from the population of every
// retained posterior draw.
func predictiveGroup(m *model.Model, chains []*sampler.Chain, rnd *rand.Rand) map[string]*trace.Var {
	src := trace.NewVar(m.CoordNames(), false, len(chains))
	for c, ch := range chains {
		for _, x := range ch.Draws {
			src.Data[c] = append(src.Data[c], m.SamplePredictive(x, rnd))
		}
	}
	return map[string]*trace.Var{trace.Source: src}
}
