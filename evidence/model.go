// Public domain.

package evidence

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"

	"github.com/tzdwi/Kalkayotl/model"
	"github.com/tzdwi/Kalkayotl/prior"
)

// ForModel builds the unit-cube prior transform and the normalized
// data likelihood of a 1D model.  Parameter layout: the inferred
// population parameters in ParamNames order, then one latent per star.
// Models of higher dimension are a configuration error.
func ForModel(m *model.Model) (names []string, tr Transform, ll LogLike, err error) {
	if m.D() != 1 {
		return nil, nil, nil, fmt.Errorf(
			"evidence: nested sampling evidence is restricted to 1D models, not %dD", m.D())
	}
	cfg := m.Config()
	b := m.Block()
	n := m.N()

	names = m.ParamNames()
	npop := len(names)
	coord := m.CoordNames()[0]
	for _, id := range b.IDs {
		names = append(names, fmt.Sprintf("%s[%s]", coord, id))
	}

	tr = transform1D(cfg, n, npop)

	// normalized Gaussian likelihood: the constant terms the sampler
	// itself never needs matter for the evidence
	var ch mat.Cholesky
	if !ch.Factorize(b.Cov) {
		return nil, nil, nil, fmt.Errorf("evidence: joint covariance is not positive definite")
	}
	c0 := -.5 * (float64(b.Obs())*math.Log(2*math.Pi) + ch.LogDet())
	prec := b.Prec
	mean := b.Mean
	pc := cfg.Unit == prior.Pc

	ll = func(th []float64) float64 {
		res := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			p := th[npop+i]
			if pc {
				if p <= 0 {
					return math.Inf(-1)
				}
				p = 1000 / p
			}
			res.SetVec(i, p-mean[i])
		}
		var g mat.VecDense
		g.MulVec(prec, res)
		return c0 - .5*mat.Dot(res, &g)
	}
	return names, tr, ll, nil
}

// transform1D realizes the hierarchical prior as a map from the unit
// cube: hyperpriors for the inferred population parameters, then the
// family's conditional quantile for each star.
func transform1D(cfg *prior.Config, n, npop int) Transform {
	k := cfg.Components()
	return func(u []float64) []float64 {
		th := make([]float64, npop+n)
		i := 0
		loc := cfg.Params.Location
		if loc == nil {
			loc = make([]float64, len(cfg.Hyper.Alpha))
			for j, a := range cfg.Hyper.Alpha {
				loc[j] = normalQ(u[i], a[0], a[1])
				th[i] = loc[j]
				i++
			}
		}
		scale := cfg.Params.Scale
		if scale == nil {
			scale = make([]float64, cfg.ScaleLen())
			for j := range scale {
				scale[j] = gammaQ(u[i], 2, 2/cfg.Hyper.Beta)
				th[i] = scale[j]
				i++
			}
		}
		wt := cfg.Params.Weights
		if cfg.Family.IsMixture() && wt == nil {
			// independent gamma quantiles normalized to the simplex
			wt = make([]float64, k)
			sum := 0.
			for j := range wt {
				wt[j] = gammaQ(u[i+j], cfg.Hyper.Delta[j], 1)
				sum += wt[j]
			}
			for j := range wt {
				wt[j] /= sum
				th[i] = wt[j]
				i++
			}
		}
		var rt, gamma float64
		switch cfg.Family {
		case prior.King:
			if cfg.Params.Rt != nil {
				rt = *cfg.Params.Rt
			} else {
				rt = scale[0] * (1 + gammaQ(u[i], 2, 2/cfg.Hyper.Gamma))
				th[i] = rt
				i++
			}
		case prior.EFF:
			if cfg.Params.Gamma != nil {
				gamma = *cfg.Params.Gamma
			} else {
				gamma = cfg.EFFGammaMin() + gammaQ(u[i], 2, 2/cfg.Hyper.Gamma)
				th[i] = gamma
				i++
			}
		}

		for s := 0; s < n; s++ {
			th[npop+s] = starQ(cfg, u[npop+s], loc, scale, wt, rt, gamma)
		}
		return th
	}
}

// starQ is the quantile of one star's latent under the population
// prior.
func starQ(cfg *prior.Config, u float64, loc, scale, wt []float64, rt, gamma float64) float64 {
	switch cfg.Family {
	case prior.Uniform:
		return loc[0] + scale[0]*(2*u-1)
	case prior.Gaussian:
		return normalQ(u, loc[0], scale[0])
	case prior.EDSD:
		return loc[0] + gammaQ(u, 3, 1/scale[0])
	case prior.EFF:
		// EFF = Student-t with r = rc t / sqrt(nu), nu = gamma - 1
		return loc[0] + scale[0]*studentTQ(u, gamma-1)/math.Sqrt(gamma-1)
	case prior.King:
		return kingQ(u, loc[0], scale[0], rt)
	case prior.GMM:
		return gmmQ(u, loc, scale, wt)
	}
	panic("unreachable family")
}

func normalQ(u, mu, sigma float64) float64 {
	return mu + sigma*math.Sqrt2*math.Erfinv(2*u-1)
}

// gammaQ is the quantile of Gamma(shape a, rate b).
func gammaQ(u, a, b float64) float64 {
	return mathext.GammaIncRegInv(a, u) / b
}

// studentTQ is the standard Student-t quantile with nu degrees of
// freedom.
func studentTQ(u, nu float64) float64 {
	if u == .5 {
		return 0
	}
	tail := 2 * u
	if u > .5 {
		tail = 2 * (1 - u)
	}
	w := mathext.InvRegIncBeta(nu/2, .5, tail)
	t := math.Sqrt(nu * (1 - w) / w)
	if u < .5 {
		return -t
	}
	return t
}

// kingCum is the one-sided cumulative of the King kernel from the
// center to offset x, with core radius rc and tidal radius rt.
func kingCum(x, rc, rt float64) float64 {
	a := 1 / math.Sqrt(1+(rt/rc)*(rt/rc))
	t := x / rc
	return rc*math.Atan(t) - 2*a*rc*math.Asinh(t) + a*a*x
}

// kingQ inverts the King profile CDF by bisection on the truncated
// support.
func kingQ(u, loc, rc, rt float64) float64 {
	half := kingCum(rt, rc, rt)
	target := (2*u - 1) * half
	lo, hi := -rt, rt
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		c := kingCum(mid, rc, rt)
		if math.Abs(c-target) < 1e-12*half {
			return loc + mid
		}
		if c < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return loc + (lo+hi)/2
}

// gmmQ inverts a 1D Gaussian mixture CDF by bisection.
func gmmQ(u float64, loc, scale, wt []float64) float64 {
	cdf := func(x float64) float64 {
		c := 0.
		for j, w := range wt {
			c += w * .5 * (1 + math.Erf((x-loc[j])/(scale[j]*math.Sqrt2)))
		}
		return c
	}
	lo, hi := loc[0], loc[0]
	for j := range loc {
		lo = math.Min(lo, loc[j]-10*scale[j])
		hi = math.Max(hi, loc[j]+10*scale[j])
	}
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if cdf(mid) < u {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
