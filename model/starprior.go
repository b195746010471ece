// Public domain.

package model

import (
	"math"

	"github.com/tzdwi/Kalkayotl/prior"
)

// gaussBlock is one trivariate Gaussian factor of the population density.
// With dTh non-nil the gradients, scaled by w, go to the coordinate slice,
// the location and deviation slices and the three correlation entries dz.
func gaussBlock(th, l, s []float64, h *cholCorr3, w float64, dTh, dLoc, dS, dz []float64) float64 {
	diff := [3]float64{th[0] - l[0], th[1] - l[1], th[2] - l[2]}
	sv := [3]float64{s[0], s[1], s[2]}
	if dTh == nil {
		return h.logpdf(diff, sv, nil)
	}
	var g gauss3Grad
	lp := h.logpdf(diff, sv, &g)
	for j := 0; j < 3; j++ {
		dTh[j] += w * g.dDiff[j]
		dLoc[j] -= w * g.dDiff[j]
		dS[j] += w * g.dS[j]
	}
	dz[0] += w * g.dA
	dz[1] += w * g.dB
	dz[2] += w * g.dC
	return lp
}

// starsLogPrior is the population term: the log density of every star's
// phase-space coordinates (or offsets, in the non-central case) under the
// prior family.
func (m *Model) starsLogPrior(x []float64, p pop, theta, dTheta []float64, pg *popGrad, grad []float64) float64 {
	if m.cfg.Parametrization == prior.NonCentral {
		// the 1D King interval transform already standardizes the
		// latent, so the central density applies unchanged
		if m.cfg.Family == prior.King && m.d == 1 {
			return m.central1D(p, theta, dTheta, pg)
		}
		return m.ncLogPrior(x, p, pg, grad)
	}
	if m.d == 1 {
		return m.central1D(p, theta, dTheta, pg)
	}
	return m.central3D6D(p, theta, dTheta, pg)
}

// ncLogPrior evaluates the standardized offsets: unit Gaussians, or the
// unit-core radial profile for the position part of an EFF or King
// population.
func (m *Model) ncLogPrior(x []float64, p pop, pg *popGrad, grad []float64) float64 {
	z := m.stars.in(x)
	var gz []float64
	if grad != nil {
		gz = grad[m.stars.off : m.stars.off+m.stars.n]
	}
	lp := 0.
	if m.cfg.Family == prior.Gaussian {
		for i, e := range z {
			lp += -.5*e*e - .5*log2pi
			if gz != nil {
				gz[i] += -e
			}
		}
		return lp
	}
	if m.cfg.Family == prior.King {
		// unit core radius, concentration rt/rc
		rc := p.scale[0]
		c := p.rt / rc
		ln, _, dlnt := kingLogNorm(1, c, 3)
		for i := 0; i < m.n; i++ {
			e := z[i*m.d : (i+1)*m.d]
			r := math.Sqrt(e[0]*e[0] + e[1]*e[1] + e[2]*e[2])
			lk, dr, _, dc, ok := kingLogKernel(r, 1, c)
			if !ok {
				return math.Inf(-1)
			}
			lp += lk - ln
			if gz != nil {
				if r > 0 {
					for j := 0; j < 3; j++ {
						gz[i*m.d+j] += dr * e[j] / r
					}
				}
				dcTot := dc - dlnt
				pg.rt += dcTot / rc
				pg.scale[0] -= dcTot * c / rc
			}
			if m.d == 6 {
				for j := 3; j < 6; j++ {
					lp += -.5*e[j]*e[j] - .5*log2pi
					if gz != nil {
						gz[i*m.d+j] += -e[j]
					}
				}
			}
		}
		return lp
	}
	// EFF
	dim := 3
	if m.d == 1 {
		dim = 1
	}
	ln, _, dln := effLogNorm(1, p.gamma, dim)
	for i := 0; i < m.n; i++ {
		e := z[i*m.d : (i+1)*m.d]
		if m.d == 1 {
			lk, dr, _, dg := effLogKernel(math.Abs(e[0]), 1, p.gamma)
			lp += lk - ln
			if gz != nil {
				gz[i] += dr * sign(e[0])
				pg.gamma += dg - dln
			}
			continue
		}
		r := math.Sqrt(e[0]*e[0] + e[1]*e[1] + e[2]*e[2])
		lk, dr, _, dg := effLogKernel(r, 1, p.gamma)
		lp += lk - ln
		if gz != nil {
			if r > 0 {
				for j := 0; j < 3; j++ {
					gz[i*m.d+j] += dr * e[j] / r
				}
			}
			pg.gamma += dg - dln
		}
		if m.d == 6 {
			for j := 3; j < 6; j++ {
				lp += -.5*e[j]*e[j] - .5*log2pi
				if gz != nil {
					gz[i*m.d+j] += -e[j]
				}
			}
		}
	}
	return lp
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func (m *Model) central1D(p pop, theta, dTheta []float64, pg *popGrad) float64 {
	lp := 0.
	switch m.cfg.Family {
	case prior.Uniform:
		// the interval transform supplies the support; the density is
		// flat at 1/(2 scl)
		lp = -float64(m.n) * math.Log(2*p.scale[0])
		if pg != nil {
			pg.scale[0] -= float64(m.n) / p.scale[0]
		}

	case prior.Gaussian:
		for i, th := range theta {
			l, dd, ds := gauss1(th-p.loc[0], p.scale[0])
			lp += l
			if dTheta != nil {
				dTheta[i] += dd
				pg.loc[0] -= dd
				pg.scale[0] += ds
			}
		}

	case prior.EDSD:
		for i, th := range theta {
			r := th - p.loc[0]
			if r <= 0 {
				return math.Inf(-1)
			}
			l, dr, dl := edsdLogDensity(r, p.scale[0])
			lp += l
			if dTheta != nil {
				dTheta[i] += dr
				pg.loc[0] -= dr
				pg.scale[0] += dl
			}
		}

	case prior.GMM:
		lps := make([]float64, m.k)
		for i, th := range theta {
			for k := 0; k < m.k; k++ {
				l, _, _ := gauss1(th-p.loc[k], p.scale[k])
				lps[k] = math.Log(p.wt[k]) + l
			}
			tot := logSumExp(lps)
			lp += tot
			if dTheta == nil {
				continue
			}
			for k := 0; k < m.k; k++ {
				w := math.Exp(lps[k] - tot)
				_, dd, ds := gauss1(th-p.loc[k], p.scale[k])
				dTheta[i] += w * dd
				pg.loc[k] -= w * dd
				pg.scale[k] += w * ds
				pg.wt[k] += w / p.wt[k]
			}
		}

	case prior.King:
		rc := p.scale[0]
		ln, dlnc, dlnt := kingLogNorm(rc, p.rt, 1)
		for i, th := range theta {
			r := th - p.loc[0]
			lk, dr, drc, drt, ok := kingLogKernel(math.Abs(r), rc, p.rt)
			if !ok {
				return math.Inf(-1)
			}
			lp += lk - ln
			if dTheta != nil {
				dTheta[i] += dr * sign(r)
				pg.loc[0] -= dr * sign(r)
				pg.scale[0] += drc - dlnc
				pg.rt += drt - dlnt
			}
		}

	case prior.EFF:
		rc := p.scale[0]
		ln, dlnc, dlng := effLogNorm(rc, p.gamma, 1)
		for i, th := range theta {
			r := th - p.loc[0]
			lk, dr, drc, dg := effLogKernel(math.Abs(r), rc, p.gamma)
			lp += lk - ln
			if dTheta != nil {
				dTheta[i] += dr * sign(r)
				pg.loc[0] -= dr * sign(r)
				pg.scale[0] += drc - dlnc
				pg.gamma += dg - dlng
			}
		}
	}
	return lp
}

func (m *Model) central3D6D(p pop, theta, dTheta []float64, pg *popGrad) float64 {
	d := m.d
	lp := 0.
	sub := func(buf []float64, i int) ([]float64, []float64) {
		th := theta[i*d : (i+1)*d]
		if buf == nil {
			return th, nil
		}
		return th, buf[i*d : (i+1)*d]
	}

	switch m.cfg.Family {
	case prior.Gaussian:
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			lp += m.fullGauss(p, th, dTh, pg, 1, 0, 0, 0)
		}

	case prior.GMM:
		perChol := 1
		if d == 6 {
			perChol = 2
		}
		lps := make([]float64, m.k)
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			for k := 0; k < m.k; k++ {
				lps[k] = math.Log(p.wt[k]) +
					m.fullGauss(p, th, nil, nil, 1, k*d, k*d, k*perChol)
			}
			tot := logSumExp(lps)
			lp += tot
			if dTh == nil {
				continue
			}
			for k := 0; k < m.k; k++ {
				w := math.Exp(lps[k] - tot)
				m.fullGauss(p, th, dTh, pg, w, k*d, k*d, k*perChol)
				pg.wt[k] += w / p.wt[k]
			}
		}

	case prior.CGMM:
		lps := make([]float64, m.k)
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			for k := 0; k < m.k; k++ {
				l := math.Log(p.wt[k])
				for j := 0; j < d; j++ {
					g, _, _ := gauss1(th[j]-p.loc[j], p.scale[k])
					l += g
				}
				lps[k] = l
			}
			tot := logSumExp(lps)
			lp += tot
			if dTh == nil {
				continue
			}
			for k := 0; k < m.k; k++ {
				w := math.Exp(lps[k] - tot)
				for j := 0; j < d; j++ {
					_, dd, ds := gauss1(th[j]-p.loc[j], p.scale[k])
					dTh[j] += w * dd
					pg.loc[j] -= w * dd
					pg.scale[k] += w * ds
				}
				pg.wt[k] += w / p.wt[k]
			}
		}

	case prior.GUM:
		rad := p.scale[d]
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			// the velocity factor is common to both members
			if d == 6 {
				var dz []float64
				if dTh != nil {
					dz = pg.corr[3:6]
				}
				var dLoc, dS []float64
				if dTh != nil {
					dLoc, dS = pg.loc[3:6], pg.scale[3:6]
				}
				lp += gaussBlock(th[3:6], p.loc[3:6], p.scale[3:6],
					&p.chol[1], 1, dThSlice(dTh, 3, 6), dLoc, dS, dz)
			}
			r := radius3(th, p.loc)
			g0 := gaussBlock(th[:3], p.loc[:3], p.scale[:3], &p.chol[0], 1,
				nil, nil, nil, nil)
			b1, _ := uniformBallLogDensity(r, rad)
			lp0 := math.Log(p.wt[0]) + g0
			lp1 := math.Log(p.wt[1]) + b1
			tot := logSumExp([]float64{lp0, lp1})
			lp += tot
			if dTh == nil {
				continue
			}
			w0 := math.Exp(lp0 - tot)
			w1 := math.Exp(lp1 - tot)
			gaussBlock(th[:3], p.loc[:3], p.scale[:3], &p.chol[0], w0,
				dTh[:3], pg.loc[:3], pg.scale[:3], pg.corr[:3])
			if !math.IsInf(b1, -1) {
				_, dRad := uniformBallLogDensity(r, rad)
				pg.scale[d] += w1 * dRad
			}
			pg.wt[0] += w0 / p.wt[0]
			pg.wt[1] += w1 / p.wt[1]
		}

	case prior.King:
		rc := p.scale[0]
		ln, dlnc, dlnt := kingLogNorm(rc, p.rt, 3)
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			r := radius3(th, p.loc)
			lk, dr, drc, drt, ok := kingLogKernel(r, rc, p.rt)
			if !ok {
				return math.Inf(-1)
			}
			lp += lk - ln
			if dTh != nil {
				addRadial(dTh, th, p.loc, r, dr, pg)
				pg.scale[0] += drc - dlnc
				pg.rt += drt - dlnt
			}
			lp += m.radialVel(p, th, dTh, pg)
		}

	case prior.EFF:
		rc := p.scale[0]
		ln, dlnc, dlng := effLogNorm(rc, p.gamma, 3)
		for i := 0; i < m.n; i++ {
			th, dTh := sub(dTheta, i)
			r := radius3(th, p.loc)
			lk, dr, drc, dg := effLogKernel(r, rc, p.gamma)
			lp += lk - ln
			if dTh != nil {
				addRadial(dTh, th, p.loc, r, dr, pg)
				pg.scale[0] += drc - dlnc
				pg.gamma += dg - dlng
			}
			lp += m.radialVel(p, th, dTh, pg)
		}
	}
	return lp
}

// fullGauss is the full Gaussian factor of one star: a position block and,
// at 6D, a velocity block.  Offsets select the mixture component.
func (m *Model) fullGauss(p pop, th, dTh []float64, pg *popGrad, w float64, locOff, sOff, cholOff int) float64 {
	var dLoc, dS, dz []float64
	if dTh != nil {
		dLoc = pg.loc[locOff : locOff+3]
		dS = pg.scale[sOff : sOff+3]
		dz = pg.corr[cholOff*3 : cholOff*3+3]
	}
	lp := gaussBlock(th[:3], p.loc[locOff:locOff+3], p.scale[sOff:sOff+3],
		&p.chol[cholOff], w, dThSlice(dTh, 0, 3), dLoc, dS, dz)
	if m.d == 6 {
		if dTh != nil {
			dLoc = pg.loc[locOff+3 : locOff+6]
			dS = pg.scale[sOff+3 : sOff+6]
			dz = pg.corr[(cholOff+1)*3 : (cholOff+1)*3+3]
		}
		lp += gaussBlock(th[3:6], p.loc[locOff+3:locOff+6],
			p.scale[sOff+3:sOff+6], &p.chol[cholOff+1], w,
			dThSlice(dTh, 3, 6), dLoc, dS, dz)
	}
	return lp
}

// radialVel is the velocity factor of a radial family at 6D.
func (m *Model) radialVel(p pop, th, dTh []float64, pg *popGrad) float64 {
	if m.d != 6 {
		return 0
	}
	var dLoc, dS, dz []float64
	if dTh != nil {
		dLoc = pg.loc[3:6]
		dS = pg.scale[1:4]
		dz = pg.corr[:3]
	}
	return gaussBlock(th[3:6], p.loc[3:6], p.scale[1:4], &p.chol[0], 1,
		dThSlice(dTh, 3, 6), dLoc, dS, dz)
}

func dThSlice(dTh []float64, lo, hi int) []float64 {
	if dTh == nil {
		return nil
	}
	return dTh[lo:hi]
}

func radius3(th, loc []float64) float64 {
	dx := th[0] - loc[0]
	dy := th[1] - loc[1]
	dz := th[2] - loc[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// addRadial spreads a radial kernel gradient onto the position coordinates
// and the location.
func addRadial(dTh, th, loc []float64, r, dr float64, pg *popGrad) {
	if r == 0 {
		return
	}
	for j := 0; j < 3; j++ {
		g := dr * (th[j] - loc[j]) / r
		dTh[j] += g
		pg.loc[j] -= g
	}
}
