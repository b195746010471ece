// Public domain.

package model

import "math"

// cholCorr3 is the Cholesky factor of a 3x3 correlation matrix built from
// three unconstrained entries a, b, c by row normalization of
//
//	[ 1 0 0 ]
//	[ a 1 0 ]
//	[ b c 1 ]
//
// Every correlation matrix in the population model is 3x3: positions and
// velocities carry separate factors, so nothing larger is ever needed.
type cholCorr3 struct {
	l21, l22, l31, l32, l33 float64

	// partials of the factor entries with respect to a, b, c
	d21a, d22a             float64
	d31b, d31c, d32b, d32c float64
	d33b, d33c             float64
}

func newCholCorr3(a, b, c float64) cholCorr3 {
	n2 := math.Sqrt(1 + a*a)
	n3 := math.Sqrt(1 + b*b + c*c)
	n2c, n3c := n2*n2*n2, n3*n3*n3
	return cholCorr3{
		l21: a / n2, l22: 1 / n2,
		l31: b / n3, l32: c / n3, l33: 1 / n3,
		d21a: 1 / n2c, d22a: -a / n2c,
		d31b: (1 + c*c) / n3c, d31c: -b * c / n3c,
		d32b: -b * c / n3c, d32c: (1 + b*b) / n3c,
		d33b: -b / n3c, d33c: -c / n3c,
	}
}

// identCorr3 is the factor of the identity correlation matrix.
var identCorr3 = newCholCorr3(0, 0, 0)

// lower applies L to a vector.
func (h *cholCorr3) lower(e [3]float64) [3]float64 {
	return [3]float64{
		e[0],
		h.l21*e[0] + h.l22*e[1],
		h.l31*e[0] + h.l32*e[1] + h.l33*e[2],
	}
}

type gauss3Grad struct {
	dDiff      [3]float64 // with respect to x - mu
	dS         [3]float64
	dA, dB, dC float64 // with respect to the unconstrained correlation entries
}

const log2pi = 1.8378770664093453

// logpdf evaluates the trivariate Gaussian with standard deviations s and
// the correlation factor h at offset diff from the mean.  With g non-nil
// the gradients are stored as well.
func (h *cholCorr3) logpdf(diff, s [3]float64, g *gauss3Grad) float64 {
	var w [3]float64
	for d := 0; d < 3; d++ {
		w[d] = diff[d] / s[d]
	}
	// forward solve L u = w
	var u [3]float64
	u[0] = w[0]
	u[1] = (w[1] - h.l21*u[0]) / h.l22
	u[2] = (w[2] - h.l31*u[0] - h.l32*u[1]) / h.l33

	lp := -.5*(u[0]*u[0]+u[1]*u[1]+u[2]*u[2]) - 1.5*log2pi -
		math.Log(s[0]) - math.Log(s[1]) - math.Log(s[2]) -
		math.Log(h.l22) - math.Log(h.l33)
	if g == nil {
		return lp
	}

	// back solve L' q = u
	var q [3]float64
	q[2] = u[2] / h.l33
	q[1] = (u[1] - h.l32*q[2]) / h.l22
	q[0] = u[0] - h.l21*q[1] - h.l31*q[2]
	for d := 0; d < 3; d++ {
		g.dDiff[d] = -q[d] / s[d]
		g.dS[d] = (q[d]*w[d] - 1) / s[d]
	}
	// d lp / d L_ij = q_i u_j, minus 1/L_ii on the diagonal
	d21 := q[1] * u[0]
	d31 := q[2] * u[0]
	d32 := q[2] * u[1]
	d22 := q[1]*u[1] - 1/h.l22
	d33 := q[2]*u[2] - 1/h.l33
	g.dA = d21*h.d21a + d22*h.d22a
	g.dB = d31*h.d31b + d32*h.d32b + d33*h.d33b
	g.dC = d31*h.d31c + d32*h.d32c + d33*h.d33c
	return lp
}

// gauss1 is the scalar Gaussian log density at offset diff with deviation s,
// returning partials with respect to the offset and the deviation.
func gauss1(diff, s float64) (lp, dDiff, dS float64) {
	w := diff / s
	lp = -.5*w*w - math.Log(s) - .5*log2pi
	dDiff = -w / s
	dS = (w*w - 1) / s
	return
}

// logSumExp of a short slice.
func logSumExp(v []float64) float64 {
	mx := math.Inf(-1)
	for _, x := range v {
		if x > mx {
			mx = x
		}
	}
	if math.IsInf(mx, -1) {
		return mx
	}
	sum := 0.
	for _, x := range v {
		sum += math.Exp(x - mx)
	}
	return mx + math.Log(sum)
}
