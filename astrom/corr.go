// Public domain.

package astrom

import (
	"fmt"
	"math"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// Case names an empirical spatial-correlation calibration for the
// catalog release the observations came from.
type Case string

const (
	Lindegren2018 Case = "Lindegren+2018" // Gaia DR2 astrometry paper fits
	Vasiliev2019  Case = "Vasiliev+2019"  // DR2 refit with oscillatory term
	Lindegren2020 Case = "Lindegren+2020" // Gaia EDR3 astrometry paper fits
)

// Calibration constants.  Amplitudes are variances at zero separation
// (mas^2 for parallax, (mas/yr)^2 for proper motion), lengths are
// e-folding scales.  Each case decorrelates to below one percent of its
// zero-separation amplitude at DecorrelationScales e-folding lengths.
const DecorrelationScales = 5

type kernel struct {
	amp    float64    // exponential amplitude
	scale  unit.Angle // e-folding scale
	oscAmp float64    // damped-oscillation amplitude (Vasiliev fits)
	oscLen unit.Angle // oscillation half-period
}

func (k kernel) at(thetaRad float64) float64 {
	v := k.amp * math.Exp(-thetaRad/k.scale.Rad())
	if k.oscAmp != 0 {
		x := thetaRad / k.oscLen.Rad()
		v += k.oscAmp * sinc(x) * math.Exp(-thetaRad/k.scale.Rad())
	}
	return v
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

var plxKernels = map[Case]kernel{
	Lindegren2018: {amp: 285e-6, scale: unit.AngleFromMin(14)},
	Vasiliev2019: {amp: 300e-6, scale: unit.AngleFromMin(20),
		oscAmp: 120e-6, oscLen: unit.AngleFromDeg(.5)},
	Lindegren2020: {amp: 142e-6, scale: unit.AngleFromMin(16.8)},
}

var pmKernels = map[Case]kernel{
	Lindegren2018: {amp: 800e-6, scale: unit.AngleFromMin(20)},
	Vasiliev2019: {amp: 800e-6, scale: unit.AngleFromMin(20),
		oscAmp: 320e-6, oscLen: unit.AngleFromDeg(.5)},
	Lindegren2020: {amp: 292e-6, scale: unit.AngleFromMin(24)},
}

// MaxCov returns the zero-separation covariance of the named case, the
// value two coincident sources must receive.
func MaxCov(c Case, pm bool) (float64, error) {
	m := plxKernels
	if pm {
		m = pmKernels
	}
	k, ok := m[c]
	if !ok {
		return 0, fmt.Errorf("astrom: correlation case %q not recognized", c)
	}
	return k.at(0), nil
}

// Decorrelation returns the separation beyond which the named case's
// covariance has decayed below one percent of its zero-separation value.
func Decorrelation(c Case, pm bool) (unit.Angle, error) {
	m := plxKernels
	if pm {
		m = pmKernels
	}
	k, ok := m[c]
	if !ok {
		return 0, fmt.Errorf("astrom: correlation case %q not recognized", c)
	}
	return k.scale.Mul(DecorrelationScales), nil
}

// CovParallax builds the cross-star covariance of correlated parallax
// systematics from a separation matrix.  The result is symmetric; a result
// that fails the Cholesky positive-definiteness check is a fatal
// configuration error reported against the parallax correlation model.
func CovParallax(theta *mat.SymDense, c Case) (*mat.SymDense, error) {
	k, ok := plxKernels[c]
	if !ok {
		return nil, fmt.Errorf("astrom: correlation case %q not recognized", c)
	}
	return covKernel(theta, k, "parallax correlation")
}

// CovPM builds the cross-star covariance of correlated proper-motion
// systematics.  The same kernel applies to both proper-motion components.
func CovPM(theta *mat.SymDense, c Case) (*mat.SymDense, error) {
	k, ok := pmKernels[c]
	if !ok {
		return nil, fmt.Errorf("astrom: correlation case %q not recognized", c)
	}
	return covKernel(theta, k, "proper motion correlation")
}

func covKernel(theta *mat.SymDense, k kernel, role string) (*mat.SymDense, error) {
	n := theta.SymmetricDim()
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, k.at(theta.At(i, j)))
		}
	}
	var ch mat.Cholesky
	if !ch.Factorize(cov) {
		return nil, fmt.Errorf(
			"astrom: covariance matrix of %s is not positive definite", role)
	}
	return cov, nil
}
