// Public domain.

// Package model builds the joint posterior density of a cluster model: one
// latent phase-space vector per star plus the population parameters of the
// chosen prior family, all packed into a single unconstrained vector.  The
// density and its analytic gradient are what the samplers consume.
package model

import (
	"fmt"
	"math"

	"github.com/soniakeys/coord"
	"gonum.org/v1/gonum/mat"

	"github.com/tzdwi/Kalkayotl/astrom"
	"github.com/tzdwi/Kalkayotl/block"
	"github.com/tzdwi/Kalkayotl/catalog"
	"github.com/tzdwi/Kalkayotl/prior"
)

// raPeriodMas is one full turn of right ascension on the mas scale.
// Residuals in right ascension are wrapped by this period so that clusters
// straddling the zero meridian do not produce spurious offsets.
const raPeriodMas = 360 * catalog.DegToMas

type span struct{ off, n int }

func (s span) has() bool                { return s.n > 0 }
func (s span) in(x []float64) []float64 { return x[s.off : s.off+s.n] }

// A Model is the posterior density over the unconstrained parameter vector.
// It is safe for concurrent use: evaluation keeps no state in the Model.
type Model struct {
	b   *block.Block
	cfg *prior.Config

	n, d, k int

	loc, scale, corr, wt, shape, stars span
	total                              int

	fixLoc, fixScale, fixWt []float64
	fixShape                float64
	inferShape              bool

	// gal marks latents declared on galactic-aligned axes; the
	// likelihood rotates them into ICRS before the astrometric
	// transform.
	gal bool
}

// corrCount is the number of unconstrained correlation entries: three per
// 3x3 factor.  Positions and velocities carry separate factors; isotropic
// families carry none; radial families carry only the velocity factor.
func corrCount(cfg *prior.Config) int {
	if cfg.Dim == 1 {
		return 0
	}
	per := 3
	if cfg.Dim == 6 {
		per = 6
	}
	switch cfg.Family {
	case prior.Gaussian, prior.GUM:
		return per
	case prior.GMM:
		return cfg.Components() * per
	case prior.King, prior.EFF:
		if cfg.Dim == 6 {
			return 3
		}
	}
	return 0
}

// New builds a model over the assembled data block under the given prior
// configuration.
func New(b *block.Block, cfg *prior.Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.Dim != cfg.Dim {
		return nil, fmt.Errorf("model: data dimension %d does not match prior dimension %d",
			b.Dim, cfg.Dim)
	}
	m := &Model{b: b, cfg: cfg, n: b.N, d: b.Dim, k: cfg.Components(),
		gal: cfg.Ref == astrom.Galactic && b.Dim > 1}

	off := 0
	add := func(sp *span, n int) {
		sp.off, sp.n = off, n
		off += n
	}
	if cfg.Params.Location == nil {
		add(&m.loc, cfg.LocLen())
	} else {
		m.fixLoc = cfg.Params.Location
	}
	if cfg.Params.Scale == nil {
		add(&m.scale, cfg.ScaleLen())
	} else {
		m.fixScale = cfg.Params.Scale
	}
	add(&m.corr, corrCount(cfg))
	if cfg.Family.IsMixture() {
		if cfg.Params.Weights == nil {
			add(&m.wt, m.k-1)
		} else {
			m.fixWt = cfg.Params.Weights
		}
	}
	switch {
	case cfg.Family == prior.King && cfg.Params.Rt == nil,
		cfg.Family == prior.EFF && cfg.Params.Gamma == nil:
		m.inferShape = true
		add(&m.shape, 1)
	case cfg.Family == prior.King:
		m.fixShape = *cfg.Params.Rt
	case cfg.Family == prior.EFF:
		m.fixShape = *cfg.Params.Gamma
	}
	add(&m.stars, m.n*m.d)
	m.total = off
	return m, nil
}

// Dim is the length of the unconstrained parameter vector.
func (m *Model) Dim() int { return m.total }

// N is the number of stars.
func (m *Model) N() int { return m.n }

// D is the phase-space dimension per star.
func (m *Model) D() int { return m.d }

// Block exposes the data block the model was built over.
func (m *Model) Block() *block.Block { return m.b }

// Config exposes the prior configuration.
func (m *Model) Config() *prior.Config { return m.cfg }

// pop is the constrained population parameter set of one evaluation point.
type pop struct {
	loc, scale, wt []float64
	chol           []cholCorr3
	x, rt, gamma   float64
}

func (m *Model) unpack(x []float64) pop {
	var p pop
	if m.loc.has() {
		p.loc = m.loc.in(x)
	} else {
		p.loc = m.fixLoc
	}
	if m.scale.has() {
		u := m.scale.in(x)
		p.scale = make([]float64, len(u))
		for j, v := range u {
			p.scale[j] = math.Exp(v)
		}
	} else {
		p.scale = m.fixScale
	}
	if m.corr.has() {
		z := m.corr.in(x)
		p.chol = make([]cholCorr3, len(z)/3)
		for j := range p.chol {
			p.chol[j] = newCholCorr3(z[3*j], z[3*j+1], z[3*j+2])
		}
	}
	if m.cfg.Family.IsMixture() {
		if m.wt.has() {
			y := m.wt.in(x)
			p.wt = make([]float64, m.k)
			mx := 0.
			for _, v := range y {
				if v > mx {
					mx = v
				}
			}
			sum := math.Exp(-mx)
			p.wt[m.k-1] = sum
			for j, v := range y {
				p.wt[j] = math.Exp(v - mx)
				sum += p.wt[j]
			}
			for j := range p.wt {
				p.wt[j] /= sum
			}
		} else {
			p.wt = m.fixWt
		}
	}
	switch m.cfg.Family {
	case prior.King:
		if m.inferShape {
			p.x = math.Exp(x[m.shape.off])
			p.rt = p.scale[0] * (1 + p.x)
		} else {
			p.rt = m.fixShape
		}
	case prior.EFF:
		if m.inferShape {
			p.x = math.Exp(x[m.shape.off])
			p.gamma = m.cfg.EFFGammaMin() + p.x
		} else {
			p.gamma = m.fixShape
		}
	}
	return p
}

// popGrad accumulates gradients with respect to constrained population
// parameters; finish chains them back to the unconstrained vector.
type popGrad struct {
	loc, scale, wt, corr []float64
	x, rt, gamma         float64
}

func (m *Model) newPopGrad() *popGrad {
	return &popGrad{
		loc:   make([]float64, m.cfg.LocLen()),
		scale: make([]float64, m.cfg.ScaleLen()),
		wt:    make([]float64, m.k),
		corr:  make([]float64, m.corr.n),
	}
}

// LogDensity evaluates the unnormalized log posterior.
func (m *Model) LogDensity(x []float64) float64 { return m.eval(x, nil) }

// Gradient evaluates the gradient into dst and returns the log density.
// A non-finite density comes back with a zero gradient.
func (m *Model) Gradient(dst, x []float64) float64 {
	for i := range dst {
		dst[i] = 0
	}
	return m.eval(x, dst)
}

func (m *Model) eval(x []float64, grad []float64) float64 {
	p := m.unpack(x)
	var pg *popGrad
	if grad != nil {
		pg = m.newPopGrad()
	}

	lp := m.hyperLogPrior(p, pg)

	theta := make([]float64, m.n*m.d)
	var dTheta []float64
	if grad != nil {
		dTheta = make([]float64, m.n*m.d)
	}
	aux := m.toTheta(x, p, theta, grad, pg, &lp)
	if !math.IsInf(lp, -1) {
		lp += m.starsLogPrior(x, p, theta, dTheta, pg, grad)
	}
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		if grad != nil {
			for i := range grad {
				grad[i] = 0
			}
		}
		return math.Inf(-1)
	}
	lp += m.likelihood(theta, dTheta)
	if grad != nil {
		m.backTheta(x, p, pg, dTheta, aux, grad)
		m.finish(x, p, pg, grad)
	}
	return lp
}

// hyperLogPrior adds the hyperprior terms of every inferred population
// parameter together with the log Jacobians of their transforms.
func (m *Model) hyperLogPrior(p pop, pg *popGrad) float64 {
	lp := 0.
	if m.loc.has() {
		for j, a := range m.cfg.Hyper.Alpha {
			l, dd, _ := gauss1(p.loc[j]-a[0], a[1])
			lp += l
			if pg != nil {
				pg.loc[j] += dd
			}
		}
	}
	if m.scale.has() {
		lam := 2 / m.cfg.Hyper.Beta
		for j, s := range p.scale {
			// Gamma(2, lam) density plus the exp-transform Jacobian
			lp += 2*math.Log(s) - lam*s + 2*math.Log(lam)
			if pg != nil {
				pg.scale[j] += 2/s - lam
			}
		}
	}
	if m.corr.has() {
		eta := m.cfg.Hyper.Eta
		// shrinkage toward the identity correlation matrix
		for j := 0; j < m.corr.n; j++ {
			z := p.cholEntry(j)
			lp += -.5*eta*z*z + .5*math.Log(eta) - .5*log2pi
			if pg != nil {
				pg.corr[j] += -eta * z
			}
		}
	}
	if m.wt.has() {
		// Dirichlet density with the softmax Jacobian folded in; the
		// gradient in softmax space is handled by finish.
		del := m.cfg.Hyper.Delta
		lnB := 0.
		sum := 0.
		for _, d := range del {
			lg, _ := math.Lgamma(d)
			lnB += lg
			sum += d
		}
		lgs, _ := math.Lgamma(sum)
		lnB -= lgs
		for j, d := range del {
			lp += d * math.Log(p.wt[j])
		}
		lp -= lnB
	}
	if m.shape.has() {
		lam := 2 / m.cfg.Hyper.Gamma
		lp += 2*math.Log(p.x) - lam*p.x + 2*math.Log(lam)
		if pg != nil {
			pg.x += 2/p.x - lam
		}
	}
	return lp
}

// cholEntry recovers the j-th unconstrained correlation entry from the
// factors.  Only used for the shrinkage term, which needs the raw entries;
// they are not stored, so invert the construction.
func (p pop) cholEntry(j int) float64 {
	h := p.chol[j/3]
	switch j % 3 {
	case 0:
		return h.l21 / h.l22
	case 1:
		return h.l31 / h.l33
	}
	return h.l32 / h.l33
}

// latKind selects the per-star latent transform at dimension 1.
type latKind int

const (
	latIdent latKind = iota
	latExp
	latInterval
)

func (m *Model) lat1D() latKind {
	switch m.cfg.Family {
	case prior.Uniform, prior.King:
		return latInterval
	}
	if m.cfg.Parametrization == prior.NonCentral {
		return latIdent
	}
	if m.cfg.Unit == prior.Pc {
		return latExp
	}
	return latIdent
}

// aux1D carries per-star transform state for the backward pass.
type aux1D struct {
	t, dthdz float64
}

// toTheta maps latent coordinates to constrained phase-space coordinates,
// adding transform Jacobian terms to lp and their direct gradients.
func (m *Model) toTheta(x []float64, p pop, theta []float64, grad []float64, pg *popGrad, lp *float64) []aux1D {
	z := m.stars.in(x)
	if m.d > 1 {
		if m.cfg.Parametrization == prior.Central {
			copy(theta, z)
			return nil
		}
		// non-central: theta = loc + A eps blockwise
		for i := 0; i < m.n; i++ {
			m.ncStar(z[i*m.d:(i+1)*m.d], p, theta[i*m.d:(i+1)*m.d])
		}
		return nil
	}

	kind := m.lat1D()
	var aux []aux1D
	if grad != nil {
		aux = make([]aux1D, m.n)
	}
	for i, zi := range z {
		switch kind {
		case latIdent:
			if m.cfg.Parametrization == prior.NonCentral {
				s := p.scale[0]
				theta[i] = p.loc[0] + s*zi
				if grad != nil {
					aux[i].dthdz = s
				}
			} else {
				theta[i] = zi
				if grad != nil {
					aux[i].dthdz = 1
				}
			}
		case latExp:
			theta[i] = math.Exp(zi)
			*lp += zi
			if grad != nil {
				grad[m.stars.off+i] += 1
				aux[i].dthdz = theta[i]
			}
		case latInterval:
			h := p.scale[0] // Uniform half width
			if m.cfg.Family == prior.King {
				h = p.rt
			}
			s := sigmoid(zi)
			t := 2*s - 1
			theta[i] = p.loc[0] + h*t
			*lp += math.Log(2 * h * s * (1 - s))
			if grad != nil {
				grad[m.stars.off+i] += 1 - 2*s
				if m.cfg.Family == prior.King {
					pg.rt += 1 / h
				} else {
					pg.scale[0] += 1 / h
				}
				aux[i] = aux1D{t: t, dthdz: 2 * h * s * (1 - s)}
			}
		}
	}
	return aux
}

// ncStar applies the non-central transform of one star.
func (m *Model) ncStar(eps []float64, p pop, th []float64) {
	switch m.cfg.Family {
	case prior.Gaussian:
		le := p.chol[0].lower([3]float64{eps[0], eps[1], eps[2]})
		for j := 0; j < 3; j++ {
			th[j] = p.loc[j] + p.scale[j]*le[j]
		}
		if m.d == 6 {
			le = p.chol[1].lower([3]float64{eps[3], eps[4], eps[5]})
			for j := 0; j < 3; j++ {
				th[3+j] = p.loc[3+j] + p.scale[3+j]*le[j]
			}
		}
	case prior.EFF, prior.King:
		rc := p.scale[0]
		for j := 0; j < 3; j++ {
			th[j] = p.loc[j] + rc*eps[j]
		}
		if m.d == 6 {
			le := p.chol[0].lower([3]float64{eps[3], eps[4], eps[5]})
			for j := 0; j < 3; j++ {
				th[3+j] = p.loc[3+j] + p.scale[1+j]*le[j]
			}
		}
	}
}

// likelihood is the precision-weighted measurement term.  With dTheta
// non-nil the gradient with respect to the constrained coordinates is
// accumulated into it.
func (m *Model) likelihood(theta []float64, dTheta []float64) float64 {
	nd := m.n * m.d
	pred := make([]float64, nd)
	var dpr []float64 // 1D: d pred / d theta
	var jx, jv [][6]coord.Cart
	switch m.d {
	case 1:
		if m.cfg.Unit == prior.Pc {
			dpr = make([]float64, m.n)
			for i, r := range theta {
				pred[i] = 1000 / r
				dpr[i] = -1000 / (r * r)
			}
		} else {
			copy(pred, theta)
		}
	case 3:
		jx = make([][6]coord.Cart, m.n)
		for i := 0; i < m.n; i++ {
			xc := coord.Cart{X: theta[i*3], Y: theta[i*3+1], Z: theta[i*3+2]}
			if m.gal {
				xc = astrom.GalacticToICRS(xc)
			}
			o, j := observe3(xc)
			copy(pred[i*3:], o[:])
			copy(jx[i][:3], j[:])
			if m.gal {
				for q := 0; q < 3; q++ {
					jx[i][q] = astrom.ICRSToGalactic(jx[i][q])
				}
			}
		}
	case 6:
		jx = make([][6]coord.Cart, m.n)
		jv = make([][6]coord.Cart, m.n)
		for i := 0; i < m.n; i++ {
			xc := coord.Cart{X: theta[i*6], Y: theta[i*6+1], Z: theta[i*6+2]}
			vc := coord.Cart{X: theta[i*6+3], Y: theta[i*6+4], Z: theta[i*6+5]}
			if m.gal {
				xc = astrom.GalacticToICRS(xc)
				vc = astrom.GalacticToICRS(vc)
			}
			o, gx, gv := observe6(xc, vc)
			copy(pred[i*6:], o[:])
			jx[i] = gx
			jv[i] = gv
			if m.gal {
				for q := 0; q < 6; q++ {
					jx[i][q] = astrom.ICRSToGalactic(jx[i][q])
					jv[i][q] = astrom.ICRSToGalactic(jv[i][q])
				}
			}
		}
	}

	no := m.b.Obs()
	res := mat.NewVecDense(no, nil)
	for a, idx := range m.b.ObsIdx {
		r := m.b.Mean[a] - pred[idx]
		if m.d > 1 && idx%m.d == 0 {
			r -= raPeriodMas * math.Round(r/raPeriodMas)
		}
		res.SetVec(a, r)
	}
	g := mat.NewVecDense(no, nil)
	g.MulVec(m.b.Prec, res)
	lp := -.5 * mat.Dot(res, g)

	if dTheta == nil {
		return lp
	}
	for a, idx := range m.b.ObsIdx {
		gv := g.AtVec(a)
		i, q := idx/m.d, idx%m.d
		switch m.d {
		case 1:
			if dpr != nil {
				dTheta[i] += gv * dpr[i]
			} else {
				dTheta[i] += gv
			}
		case 3:
			j := jx[i][q]
			dTheta[i*3] += gv * j.X
			dTheta[i*3+1] += gv * j.Y
			dTheta[i*3+2] += gv * j.Z
		case 6:
			j := jx[i][q]
			dTheta[i*6] += gv * j.X
			dTheta[i*6+1] += gv * j.Y
			dTheta[i*6+2] += gv * j.Z
			j = jv[i][q]
			dTheta[i*6+3] += gv * j.X
			dTheta[i*6+4] += gv * j.Y
			dTheta[i*6+5] += gv * j.Z
		}
	}
	return lp
}

// backTheta chains the accumulated coordinate gradients back onto the
// latent entries and the population parameters that enter the transforms.
func (m *Model) backTheta(x []float64, p pop, pg *popGrad, dTheta []float64, aux []aux1D, grad []float64) {
	z := m.stars.in(x)
	gz := grad[m.stars.off : m.stars.off+m.stars.n]
	if m.d > 1 {
		if m.cfg.Parametrization == prior.Central {
			for i, dv := range dTheta {
				gz[i] += dv
			}
			return
		}
		for i := 0; i < m.n; i++ {
			m.ncBack(z[i*m.d:(i+1)*m.d], p, pg,
				dTheta[i*m.d:(i+1)*m.d], gz[i*m.d:(i+1)*m.d])
		}
		return
	}

	kind := m.lat1D()
	for i := range z {
		dv := dTheta[i]
		switch kind {
		case latIdent:
			if m.cfg.Parametrization == prior.NonCentral {
				gz[i] += dv * aux[i].dthdz
				pg.loc[0] += dv
				pg.scale[0] += dv * z[i]
			} else {
				gz[i] += dv
			}
		case latExp:
			gz[i] += dv * aux[i].dthdz
		case latInterval:
			gz[i] += dv * aux[i].dthdz
			pg.loc[0] += dv
			if m.cfg.Family == prior.King {
				pg.rt += dv * aux[i].t
			} else {
				pg.scale[0] += dv * aux[i].t
			}
		}
	}
}

// ncBack propagates one star's coordinate gradient through the non-central
// transform.
func (m *Model) ncBack(eps []float64, p pop, pg *popGrad, dTh, gz []float64) {
	backGauss := func(cholIdx, sOff, locOff, epsOff int) {
		h := p.chol[cholIdx]
		e := [3]float64{eps[epsOff], eps[epsOff+1], eps[epsOff+2]}
		le := h.lower(e)
		s := p.scale[sOff : sOff+3]
		d := dTh[epsOff : epsOff+3]
		for j := 0; j < 3; j++ {
			pg.loc[locOff+j] += d[j]
			pg.scale[sOff+j] += d[j] * le[j]
		}
		gz[epsOff] += d[0]*s[0] + d[1]*s[1]*h.l21 + d[2]*s[2]*h.l31
		gz[epsOff+1] += d[1]*s[1]*h.l22 + d[2]*s[2]*h.l32
		gz[epsOff+2] += d[2] * s[2] * h.l33
		// d lp / d L_ij = dTh_i s_i eps_j
		d21 := d[1] * s[1] * e[0]
		d22 := d[1] * s[1] * e[1]
		d31 := d[2] * s[2] * e[0]
		d32 := d[2] * s[2] * e[1]
		d33 := d[2] * s[2] * e[2]
		pg.corr[cholIdx*3] += d21*h.d21a + d22*h.d22a
		pg.corr[cholIdx*3+1] += d31*h.d31b + d32*h.d32b + d33*h.d33b
		pg.corr[cholIdx*3+2] += d31*h.d31c + d32*h.d32c + d33*h.d33c
	}
	switch m.cfg.Family {
	case prior.Gaussian:
		backGauss(0, 0, 0, 0)
		if m.d == 6 {
			backGauss(1, 3, 3, 3)
		}
	case prior.EFF, prior.King:
		rc := p.scale[0]
		for j := 0; j < 3; j++ {
			pg.loc[j] += dTh[j]
			pg.scale[0] += dTh[j] * eps[j]
			gz[j] += dTh[j] * rc
		}
		if m.d == 6 {
			backGauss(0, 1, 3, 3)
		}
	}
}

// finish chains constrained population gradients onto the unconstrained
// vector.
func (m *Model) finish(x []float64, p pop, pg *popGrad, grad []float64) {
	switch m.cfg.Family {
	case prior.King:
		if m.inferShape {
			// rt = rc (1 + x)
			pg.scale[0] += pg.rt * (1 + p.x)
			pg.x += pg.rt * p.scale[0]
		}
	case prior.EFF:
		if m.inferShape {
			pg.x += pg.gamma
		}
	}
	if m.loc.has() {
		for j, g := range pg.loc {
			grad[m.loc.off+j] += g
		}
	}
	if m.scale.has() {
		for j, g := range pg.scale {
			grad[m.scale.off+j] += g * p.scale[j]
		}
	}
	if m.corr.has() {
		for j, g := range pg.corr {
			grad[m.corr.off+j] += g
		}
	}
	if m.wt.has() {
		del := m.cfg.Hyper.Delta
		dsum := 0.
		for _, d := range del {
			dsum += d
		}
		for j := 0; j < m.k-1; j++ {
			g := del[j] - dsum*p.wt[j]
			for kk, dw := range pg.wt {
				ind := 0.
				if kk == j {
					ind = 1
				}
				g += dw * p.wt[kk] * (ind - p.wt[j])
			}
			grad[m.wt.off+j] += g
		}
	}
	if m.shape.has() {
		grad[m.shape.off] += pg.x * p.x
	}
}
