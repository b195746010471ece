// Public domain.

package model

import (
	"fmt"
	"math"

	"github.com/soniakeys/coord"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tzdwi/Kalkayotl/astrom"
	"github.com/tzdwi/Kalkayotl/prior"
)

// Stars returns the constrained phase-space coordinates of every star at
// the given point.
func (m *Model) Stars(x []float64) [][]float64 {
	p := m.unpack(x)
	theta := make([]float64, m.n*m.d)
	lp := 0.
	m.toTheta(x, p, theta, nil, nil, &lp)
	out := make([][]float64, m.n)
	for i := range out {
		out[i] = theta[i*m.d : (i+1)*m.d]
	}
	return out
}

// ParamNames lists the inferred population parameters in the order of
// Population.
func (m *Model) ParamNames() []string {
	var names []string
	if m.loc.has() {
		for j := 0; j < m.loc.n; j++ {
			names = append(names, fmt.Sprintf("loc[%d]", j))
		}
	}
	if m.scale.has() {
		for j := 0; j < m.scale.n; j++ {
			names = append(names, fmt.Sprintf("scl[%d]", j))
		}
	}
	if m.corr.has() {
		for j := 0; j < m.corr.n/3; j++ {
			for _, e := range []string{"21", "31", "32"} {
				names = append(names, fmt.Sprintf("corr%d[%s]", j, e))
			}
		}
	}
	if m.wt.has() {
		for k := 0; k < m.k; k++ {
			names = append(names, fmt.Sprintf("weights[%d]", k))
		}
	}
	if m.shape.has() {
		if m.cfg.Family == prior.King {
			names = append(names, "rt")
		} else {
			names = append(names, "gamma")
		}
	}
	return names
}

// Population returns the constrained values of the inferred population
// parameters.  Correlation entries come back as the coefficients of the
// correlation matrix itself.
func (m *Model) Population(x []float64) []float64 {
	p := m.unpack(x)
	var v []float64
	if m.loc.has() {
		v = append(v, p.loc...)
	}
	if m.scale.has() {
		v = append(v, p.scale...)
	}
	if m.corr.has() {
		for _, h := range p.chol {
			v = append(v, h.l21, h.l31, h.l21*h.l31+h.l22*h.l32)
		}
	}
	if m.wt.has() {
		v = append(v, p.wt...)
	}
	if m.shape.has() {
		if m.cfg.Family == prior.King {
			v = append(v, p.rt)
		} else {
			v = append(v, p.gamma)
		}
	}
	return v
}

// Init returns a starting point: population parameters near their
// hyperprior centers, stars near the positions their own measurements
// imply, all with a little jitter for chain diversity.  Star jitter is
// scaled by the measurement deviations so the starting likelihood stays
// moderate.
func (m *Model) Init(rnd *rand.Rand) []float64 {
	x := make([]float64, m.total)
	if m.loc.has() {
		for j, a := range m.cfg.Hyper.Alpha {
			x[m.loc.off+j] = a[0] + .1*a[1]*rnd.NormFloat64()
		}
	}
	if m.scale.has() {
		for j := 0; j < m.scale.n; j++ {
			x[m.scale.off+j] = math.Log(m.cfg.Hyper.Beta) + .1*rnd.NormFloat64()
		}
	}
	for j := 0; j < m.corr.n; j++ {
		x[m.corr.off+j] = .01 * rnd.NormFloat64()
	}
	for j := 0; j < m.wt.n; j++ {
		x[m.wt.off+j] = .01 * rnd.NormFloat64()
	}
	if m.shape.has() {
		x[m.shape.off] = .1 * rnd.NormFloat64()
	}

	p := m.unpack(x)
	full := make([]float64, m.n*m.d)
	for i := range full {
		full[i] = math.NaN()
	}
	for a, idx := range m.b.ObsIdx {
		full[idx] = m.b.Mean[a] +
			.3*math.Sqrt(m.b.Cov.At(a, a))*rnd.NormFloat64()
	}
	for i := 0; i < m.n; i++ {
		m.initStar(x, p, full[i*m.d:(i+1)*m.d], i)
	}
	return x
}

func (m *Model) initStar(x []float64, p pop, obs []float64, i int) {
	z := m.stars.in(x)[i*m.d : (i+1)*m.d]
	if m.d == 1 {
		if m.cfg.Unit == prior.Mas {
			th := obs[0]
			switch {
			case m.lat1D() == latInterval:
				z[0] = m.invInterval(p, th)
			case m.cfg.Parametrization == prior.NonCentral:
				z[0] = (th - p.loc[0]) / p.scale[0]
			default:
				z[0] = th
			}
			return
		}
		plx := obs[0]
		if plx < .05 {
			plx = .05
		}
		r := 1000 / plx
		switch m.lat1D() {
		case latExp:
			z[0] = math.Log(r)
		case latInterval:
			z[0] = m.invInterval(p, r)
		default: // non-central offset, diagonal approximation
			z[0] = (r - p.loc[0]) / p.scale[0]
		}
		return
	}

	ra := obs[0] / (radToMas)
	dec := obs[1] / (radToMas)
	plx := obs[2]
	if plx < .05 {
		plx = .05
	}
	dist := 1000 / plx
	sa, ca := math.Sincos(ra)
	sd, cd := math.Sincos(dec)
	th := make([]float64, m.d)
	th[0] = dist * cd * ca
	th[1] = dist * cd * sa
	th[2] = dist * sd
	if m.d == 6 {
		vr := obs[5]
		if math.IsNaN(vr) {
			vr = 0
		}
		va := TransverseK * obs[3] / plx
		vd := TransverseK * obs[4] / plx
		th[3] = vr*cd*ca - va*sa - vd*sd*ca
		th[4] = vr*cd*sa + va*ca - vd*sd*sa
		th[5] = vr*sd + vd*cd
	}
	if m.gal {
		g := astrom.ICRSToGalactic(coord.Cart{X: th[0], Y: th[1], Z: th[2]})
		th[0], th[1], th[2] = g.X, g.Y, g.Z
		if m.d == 6 {
			g = astrom.ICRSToGalactic(coord.Cart{X: th[3], Y: th[4], Z: th[5]})
			th[3], th[4], th[5] = g.X, g.Y, g.Z
		}
	}
	if m.cfg.Parametrization == prior.Central {
		copy(z, th)
		return
	}
	// non-central: invert with the identity correlation approximation.
	// Radial families carry one spatial scale, the core radius.
	for j := 0; j < 3; j++ {
		s := p.scale[0]
		if m.cfg.Family == prior.Gaussian {
			s = p.scale[j]
		}
		z[j] = (th[j] - p.loc[j]) / s
	}
	if m.d == 6 {
		for j := 3; j < 6; j++ {
			s := p.scale[j-2]
			if m.cfg.Family == prior.Gaussian {
				s = p.scale[j]
			}
			z[j] = (th[j] - p.loc[j]) / s
		}
	}
}

// invInterval inverts the interval transform, clamped away from the edges.
func (m *Model) invInterval(p pop, th float64) float64 {
	h := p.scale[0]
	if m.cfg.Family == prior.King {
		h = p.rt
	}
	t := (th - p.loc[0]) / h
	if t > .9 {
		t = .9
	}
	if t < -.9 {
		t = -.9
	}
	s := (t + 1) / 2
	return math.Log(s / (1 - s))
}

// SamplePredictive draws one new star from the population the point x
// describes, in constrained phase-space coordinates.
func (m *Model) SamplePredictive(x []float64, rnd *rand.Rand) []float64 {
	p := m.unpack(x)
	d := m.d
	th := make([]float64, d)
	switch m.cfg.Family {
	case prior.Uniform:
		th[0] = p.loc[0] + p.scale[0]*(2*rnd.Float64()-1)

	case prior.EDSD:
		g := distuv.Gamma{Alpha: 3, Beta: 1 / p.scale[0], Src: rnd}
		th[0] = p.loc[0] + g.Rand()

	case prior.Gaussian:
		if d == 1 {
			th[0] = p.loc[0] + p.scale[0]*rnd.NormFloat64()
			break
		}
		m.gaussDraw(p, th, 0, 0, 0, rnd)

	case prior.GMM:
		k := pickComp(p.wt, rnd)
		if d == 1 {
			th[0] = p.loc[k] + p.scale[k]*rnd.NormFloat64()
			break
		}
		perChol := 1
		if d == 6 {
			perChol = 2
		}
		m.gaussDraw(p, th, k*d, k*d, k*perChol, rnd)

	case prior.CGMM:
		k := pickComp(p.wt, rnd)
		for j := 0; j < d; j++ {
			th[j] = p.loc[j] + p.scale[k]*rnd.NormFloat64()
		}

	case prior.GUM:
		if pickComp(p.wt, rnd) == 0 {
			m.gaussDraw(p, th, 0, 0, 0, rnd)
		} else {
			r := p.scale[d] * math.Cbrt(rnd.Float64())
			dir := randDir(rnd)
			for j := 0; j < 3; j++ {
				th[j] = p.loc[j] + r*dir[j]
			}
			if d == 6 {
				m.velDraw(p, th, p.scale[3:6], 1, rnd)
			}
		}

	case prior.King:
		rc := p.scale[0]
		a := 1 / math.Sqrt(1+(p.rt/rc)*(p.rt/rc))
		lkMax := 2 * math.Log(1-a)
		for {
			var r float64
			if d == 1 {
				r = p.rt * (2*rnd.Float64() - 1)
			} else {
				r = p.rt * math.Cbrt(rnd.Float64())
			}
			lk, _, _, _, ok := kingLogKernel(math.Abs(r), rc, p.rt)
			if ok && math.Log(rnd.Float64()) <= lk-lkMax {
				if d == 1 {
					th[0] = p.loc[0] + r
				} else {
					dir := randDir(rnd)
					for j := 0; j < 3; j++ {
						th[j] = p.loc[j] + r*dir[j]
					}
				}
				break
			}
		}
		if d == 6 {
			m.velDraw(p, th, p.scale[1:4], 0, rnd)
		}

	case prior.EFF:
		// the EFF profile is a spherical Student-t
		rc := p.scale[0]
		nu := p.gamma - m.cfg.EFFGammaMin()
		w := distuv.ChiSquared{K: nu, Src: rnd}.Rand()
		if d == 1 {
			th[0] = p.loc[0] + rc*rnd.NormFloat64()/math.Sqrt(w)
		} else {
			for j := 0; j < 3; j++ {
				th[j] = p.loc[j] + rc*rnd.NormFloat64()/math.Sqrt(w)
			}
			if d == 6 {
				m.velDraw(p, th, p.scale[1:4], 0, rnd)
			}
		}
	}
	return th
}

// gaussDraw fills a full Gaussian draw, blockwise at 6D.
func (m *Model) gaussDraw(p pop, th []float64, locOff, sOff, cholOff int, rnd *rand.Rand) {
	e := [3]float64{rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64()}
	le := p.chol[cholOff].lower(e)
	for j := 0; j < 3; j++ {
		th[j] = p.loc[locOff+j] + p.scale[sOff+j]*le[j]
	}
	if m.d == 6 {
		e = [3]float64{rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64()}
		le = p.chol[cholOff+1].lower(e)
		for j := 0; j < 3; j++ {
			th[3+j] = p.loc[locOff+3+j] + p.scale[sOff+3+j]*le[j]
		}
	}
}

// velDraw fills the velocity part of a radial-family draw.
func (m *Model) velDraw(p pop, th []float64, s []float64, cholIdx int, rnd *rand.Rand) {
	e := [3]float64{rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64()}
	le := p.chol[cholIdx].lower(e)
	for j := 0; j < 3; j++ {
		th[3+j] = p.loc[3+j] + s[j]*le[j]
	}
}

func pickComp(wt []float64, rnd *rand.Rand) int {
	u := rnd.Float64()
	for k, w := range wt {
		u -= w
		if u < 0 {
			return k
		}
	}
	return len(wt) - 1
}

// SamplePrior draws the inferred population parameters from their
// hyperpriors, returning an unconstrained vector suitable for
// Population and SamplePredictive.  Star latents are left at zero;
// predictive draws never read them.
func (m *Model) SamplePrior(rnd *rand.Rand) []float64 {
	x := make([]float64, m.total)
	h := m.cfg.Hyper
	if m.loc.has() {
		for j, a := range h.Alpha {
			x[m.loc.off+j] = a[0] + a[1]*rnd.NormFloat64()
		}
	}
	if m.scale.has() {
		g := distuv.Gamma{Alpha: 2, Beta: 2 / h.Beta, Src: rnd}
		for j := 0; j < m.scale.n; j++ {
			x[m.scale.off+j] = math.Log(g.Rand())
		}
	}
	if m.corr.has() {
		sd := 1 / math.Sqrt(h.Eta)
		for j := 0; j < m.corr.n; j++ {
			x[m.corr.off+j] = sd * rnd.NormFloat64()
		}
	}
	if m.wt.has() {
		// Dirichlet weights via normalized gammas, pushed back
		// through the reduced softmax
		w := make([]float64, m.k)
		for k := range w {
			g := distuv.Gamma{Alpha: h.Delta[k], Beta: 1, Src: rnd}
			w[k] = g.Rand()
		}
		for j := 0; j < m.wt.n; j++ {
			x[m.wt.off+j] = math.Log(w[j] / w[m.k-1])
		}
	}
	if m.shape.has() {
		g := distuv.Gamma{Alpha: 2, Beta: 2 / h.Gamma, Src: rnd}
		x[m.shape.off] = math.Log(g.Rand())
	}
	return x
}

// CoordNames labels the components of a per-star latent vector.
func (m *Model) CoordNames() []string {
	if m.d == 1 {
		if m.cfg.Unit == prior.Mas {
			return []string{"parallax"}
		}
		return []string{"distance"}
	}
	return []string{"X", "Y", "Z", "U", "V", "W"}[:m.d]
}

func randDir(rnd *rand.Rand) [3]float64 {
	for {
		v := [3]float64{rnd.NormFloat64(), rnd.NormFloat64(), rnd.NormFloat64()}
		n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		if n > 0 {
			return [3]float64{v[0] / n, v[1] / n, v[2] / n}
		}
	}
}
