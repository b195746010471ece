// Public domain.

package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tzdwi/Kalkayotl/prior"
)

// Mixture parses a population draw, in the layout of Population, into
// per-component weights, means and covariances.  It returns an error for
// families without Gaussian components.
func (m *Model) Mixture(pop []float64) (w []float64, mean [][]float64, cov []*mat.SymDense, err error) {
	// GUM's contamination member is a uniform ball, not a Gaussian,
	// so only GMM and CGMM decompose into Gaussian components.
	if m.cfg.Family != prior.GMM && m.cfg.Family != prior.CGMM {
		return nil, nil, nil, fmt.Errorf("model: %s prior has no Gaussian mixture components", m.cfg.Family)
	}
	k, d := m.k, m.d
	locOff := 0
	scaleOff := locOff + m.loc.n
	corrOff := scaleOff + m.scale.n
	wtOff := corrOff + m.corr.n

	w = append(w, pop[wtOff:wtOff+k]...)
	mean = make([][]float64, k)
	cov = make([]*mat.SymDense, k)
	for j := 0; j < k; j++ {
		cov[j] = mat.NewSymDense(d, nil)
		switch m.cfg.Family {
		case prior.CGMM:
			mean[j] = pop[locOff : locOff+d]
			s := pop[scaleOff+j]
			for a := 0; a < d; a++ {
				cov[j].SetSym(a, a, s*s)
			}
		default: // GMM
			mean[j] = pop[locOff+j*d : locOff+(j+1)*d]
			s := pop[scaleOff+j*d : scaleOff+(j+1)*d]
			if d == 1 {
				cov[j].SetSym(0, 0, s[0]*s[0])
				continue
			}
			per := d / 3 // correlation factors per component
			for f := 0; f < per; f++ {
				rho := pop[corrOff+(j*per+f)*3 : corrOff+(j*per+f)*3+3]
				fillCorrBlock(cov[j], f*3, s[f*3:f*3+3], rho)
			}
		}
	}
	return w, mean, cov, nil
}

// fillCorrBlock writes diag(s) R diag(s) into the 3x3 block of c at
// offset off, with R the correlation matrix of coefficients
// rho = (r21, r31, r32).
func fillCorrBlock(c *mat.SymDense, off int, s, rho []float64) {
	r := [3][3]float64{
		{1, rho[0], rho[1]},
		{rho[0], 1, rho[2]},
		{rho[1], rho[2], 1},
	}
	for a := 0; a < 3; a++ {
		for b := a; b < 3; b++ {
			c.SetSym(off+a, off+b, s[a]*s[b]*r[a][b])
		}
	}
}
