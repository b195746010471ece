// Public domain.

package infer_test

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/tzdwi/Kalkayotl/block"
	"github.com/tzdwi/Kalkayotl/catalog"
	"github.com/tzdwi/Kalkayotl/infer"
	"github.com/tzdwi/Kalkayotl/model"
	"github.com/tzdwi/Kalkayotl/prior"
	"github.com/tzdwi/Kalkayotl/trace"
)

// cat1D builds a parallax-only catalog with the given means and a
// common uncertainty.
func cat1D(plx []float64, sd float64) *catalog.Catalog {
	c := &catalog.Catalog{Dim: 1, IDName: "source_id"}
	for i, p := range plx {
		c.IDs = append(c.IDs, fmt.Sprint(i+1))
		c.RADeg = append(c.RADeg, 100+float64(i)/10)
		c.DecDeg = append(c.DecDeg, -30+float64(i)/10)
		c.Mu = append(c.Mu, []float64{p})
		c.Sd = append(c.Sd, []float64{sd})
		c.Corr = append(c.Corr, nil)
	}
	return c
}

func build(t *testing.T, c *catalog.Catalog, cfg *prior.Config) *model.Model {
	t.Helper()
	b, err := block.Assemble(c, block.Options{IndepMeasures: true})
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.New(b, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func quiet(string, ...interface{}) {}

// popMean pools a posterior column across all chains.
func popMean(v *trace.Var, c int) float64 {
	s := v.Pooled(c, nil)
	m := 0.
	for _, x := range s {
		m += x
	}
	return m / float64(len(s))
}

// Four stars with identical tight parallaxes and a weak location
// hyperprior: the population location must land on the shared distance.
func TestConjugateLocation(t *testing.T) {
	c := cat1D([]float64{10, 10, 10, 10}, .1)
	m := build(t, c, &prior.Config{
		Family: prior.Gaussian,
		Dim:    1,
		Unit:   prior.Pc,
		Hyper: prior.Hyper{
			Alpha: [][2]float64{{100, 25}},
			Beta:  10,
		},
		Parametrization: prior.Central,
	})
	res, err := infer.Run(context.Background(), m, infer.Config{
		Chains: 2, Draws: 400, Tune: 400, Cores: 2,
		SkipOptimize: true,
		Seed:         13,
		Logf:         quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	pop := res.Ensemble.Posterior[trace.Population]
	loc := popMean(pop, 0)
	if math.Abs(loc-100) > 3 {
		t.Errorf("posterior location = %g pc, want near 100", loc)
	}
	_, r := trace.Rhat(pop)
	if r > 1.2 {
		t.Errorf("rhat = %g on an easy posterior", r)
	}
}

// Single star, fixed population parameters, non-central declaration.
// A weak prior leaves the posterior at the measured distance; a prior
// tightened to near zero scale pulls it to the prior mean.
func TestSingleStarPriorStrength(t *testing.T) {
	run := func(loc, scale float64) float64 {
		c := cat1D([]float64{10}, .1)
		m := build(t, c, &prior.Config{
			Family:          prior.Gaussian,
			Dim:             1,
			Unit:            prior.Pc,
			Params:          prior.Params{Location: []float64{loc}, Scale: []float64{scale}},
			Parametrization: prior.NonCentral,
		})
		res, err := infer.Run(context.Background(), m, infer.Config{
			Chains: 2, Draws: 500, Tune: 400, Cores: 2,
			SkipOptimize: true,
			Seed:         17,
			Logf:         quiet,
		})
		if err != nil {
			t.Fatal(err)
		}
		src := res.Ensemble.Posterior[trace.Source]
		return popMean(src, 0)
	}
	weak := run(120, 20)
	if math.Abs(weak-100) > 2 {
		t.Errorf("weak prior posterior distance = %g pc, want near 100", weak)
	}
	strong := run(120, .5)
	if strong < 110 {
		t.Errorf("strong prior posterior distance = %g pc, want pulled toward 120", strong)
	}
}

// Full pipeline: warm start, predictive groups, persisted dataset.
func TestRunPersistsEnsemble(t *testing.T) {
	c := cat1D([]float64{9.8, 10, 10.2, 9.9, 10.1}, .2)
	m := build(t, c, &prior.Config{
		Family: prior.Gaussian,
		Dim:    1,
		Unit:   prior.Pc,
		Hyper: prior.Hyper{
			Alpha: [][2]float64{{100, 25}},
			Beta:  10,
		},
		Parametrization: prior.Central,
	})
	path := filepath.Join(t.TempDir(), "chains.dat")
	res, err := infer.Run(context.Background(), m, infer.Config{
		Chains: 2, Draws: 300, Tune: 300, Cores: 2,
		PriorPredictive:     true,
		PosteriorPredictive: true,
		Path:                path,
		Seed:                29,
		Logf:                quiet,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.VI == nil {
		t.Error("no warm-start fit returned")
	}
	if len(res.Chains) != 2 {
		t.Fatalf("%d chains", len(res.Chains))
	}
	for i, ch := range res.Chains {
		if len(ch.Draws) != 300 {
			t.Errorf("chain %d kept %d draws", i, len(ch.Draws))
		}
		if ch.Accept < .4 {
			t.Errorf("chain %d acceptance %g", i, ch.Accept)
		}
	}

	e, err := trace.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !e.HasPrior() || !e.HasPredictive() {
		t.Error("requested predictive groups absent from dataset")
	}
	if e.IDName != "source_id" || len(e.IDs) != 5 {
		t.Errorf("identifier header %q %v", e.IDName, e.IDs)
	}
	src := e.Posterior[trace.Source]
	if src.Width() != 5 {
		t.Errorf("source width %d, want one distance per star", src.Width())
	}
	if got := len(e.Prior[trace.Source].Data[0]); got != 300 {
		t.Errorf("%d prior predictive draws, want 300", got)
	}
}

// Aborting before the run starts must not leave a dataset behind.
func TestRunCancelled(t *testing.T) {
	c := cat1D([]float64{10, 10}, .1)
	m := build(t, c, &prior.Config{
		Family: prior.Gaussian,
		Dim:    1,
		Unit:   prior.Pc,
		Hyper: prior.Hyper{
			Alpha: [][2]float64{{100, 25}},
			Beta:  10,
		},
		Parametrization: prior.Central,
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "chains.dat")
	if _, err := infer.Run(ctx, m, infer.Config{Path: path, Seed: 3, Logf: quiet}); err == nil {
		t.Fatal("cancelled run reported success")
	}
	if _, err := trace.Load(path); err == nil {
		t.Error("cancelled run left a dataset behind")
	}
}
