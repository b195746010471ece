// Public domain.

package model

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// effLogKernel is the unnormalized EFF log density at radius r with core
// radius rc and index gamma, with partials.
func effLogKernel(r, rc, gamma float64) (lk, dr, drc, dgamma float64) {
	x := r / rc
	x2 := 1 + x*x
	lk = -.5 * gamma * math.Log(x2)
	dr = -gamma * x / (rc * x2)
	drc = gamma * x * x / (rc * x2)
	dgamma = -.5 * math.Log(x2)
	return
}

// effLogNorm is the log of the EFF normalization constant.  The closed
// forms follow from the Beta integral; the index partial brings in the
// digamma function.  The 1D constant normalizes over the whole line, the
// 3D one over space.
func effLogNorm(rc, gamma float64, dim int) (ln, drc, dgamma float64) {
	lg1, _ := math.Lgamma(gamma / 2)
	if dim == 1 {
		lg0, _ := math.Lgamma((gamma - 1) / 2)
		ln = math.Log(rc) + .5*math.Log(math.Pi) + lg0 - lg1
		drc = 1 / rc
		dgamma = .5 * (mathext.Digamma((gamma-1)/2) - mathext.Digamma(gamma/2))
		return
	}
	lg0, _ := math.Lgamma((gamma - 3) / 2)
	ln = math.Log(2*math.Pi) + 3*math.Log(rc) + .5*math.Log(math.Pi) - math.Ln2 + lg0 - lg1
	drc = 3 / rc
	dgamma = .5 * (mathext.Digamma((gamma-3)/2) - mathext.Digamma(gamma/2))
	return
}

// kingLogKernel is the unnormalized King log density at radius r inside the
// tidal radius rt, with partials.  ok is false outside the support.
func kingLogKernel(r, rc, rt float64) (lk, dr, drc, drt float64, ok bool) {
	if r >= rt {
		return math.Inf(-1), 0, 0, 0, false
	}
	s := 1 / math.Sqrt(1+(r/rc)*(r/rc))
	a := 1 / math.Sqrt(1+(rt/rc)*(rt/rc))
	u := s - a
	if u <= 0 {
		return math.Inf(-1), 0, 0, 0, false
	}
	lk = 2 * math.Log(u)
	dsdr := -(r / (rc * rc)) * s * s * s
	dsdrc := (r * r / (rc * rc * rc)) * s * s * s
	dadrt := -(rt / (rc * rc)) * a * a * a
	dadrc := (rt * rt / (rc * rc * rc)) * a * a * a
	dr = 2 * dsdr / u
	drc = 2 * (dsdrc - dadrc) / u
	drt = 2 * -dadrt / u
	return lk, dr, drc, drt, true
}

// kingNorm is the King normalization constant: the line integral over
// (-rt, rt) at 1D, the space integral over the tidal sphere at 3D.
func kingNorm(rc, rt float64, dim int) float64 {
	xt := rt / rc
	a := 1 / math.Sqrt(1+xt*xt)
	if dim == 1 {
		return 2 * (rc*math.Atan(xt) - 2*a*rc*math.Asinh(xt) + a*a*rt)
	}
	i2 := rc * rc * (rt - rc*math.Atan(xt))
	i1 := rc * rc * rc * (xt*math.Sqrt(1+xt*xt) - math.Asinh(xt)) / 2
	return 4 * math.Pi * (i2 - 2*a*i1 + a*a*rt*rt*rt/3)
}

// kingLogNorm returns the log normalization constant with partials.  The
// partials come from central differences of the closed-form constant; the
// constant is a cheap scalar, evaluated once per density call.
func kingLogNorm(rc, rt float64, dim int) (ln, drc, drt float64) {
	ln = math.Log(kingNorm(rc, rt, dim))
	drc = fdLog(func(v float64) float64 { return kingNorm(v, rt, dim) }, rc)
	drt = fdLog(func(v float64) float64 { return kingNorm(rc, v, dim) }, rt)
	return
}

func fdLog(f func(float64) float64, x float64) float64 {
	h := 1e-6 * math.Max(1, math.Abs(x))
	return (math.Log(f(x+h)) - math.Log(f(x-h))) / (2 * h)
}

// edsdLogDensity is the exponentially decreasing space density prior on
// distance r with length scale l, with partials.
func edsdLogDensity(r, l float64) (lp, dr, dl float64) {
	lp = 2*math.Log(r) - r/l - math.Ln2 - 3*math.Log(l)
	dr = 2/r - 1/l
	dl = r/(l*l) - 3/l
	return
}

// uniformBallLogDensity is the log density of the uniform ball of radius
// rad at radius r, with the partial with respect to the radius.  The
// density is flat inside, so there is no radial gradient.
func uniformBallLogDensity(r, rad float64) (lp, dRad float64) {
	if r > rad {
		return math.Inf(-1), 0
	}
	return -math.Log(4 * math.Pi / 3 * rad * rad * rad), -3 / rad
}
