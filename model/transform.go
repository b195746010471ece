// Public domain.

package model

import (
	"math"

	"github.com/soniakeys/coord"

	"github.com/tzdwi/Kalkayotl/catalog"
)

// TransverseK relates a transverse velocity in km/s to the product of a
// proper motion in mas/yr and a parallax in mas.
const TransverseK = 4.74047

const radToMas = 180 / math.Pi * catalog.DegToMas

// frame holds the local spherical basis at a position: the radial unit
// vector and the unit vectors toward increasing right ascension and
// declination.  The basis is singular at the origin and at the poles.
type frame struct {
	rhat, p, q coord.Cart
	d, cosd    float64
}

func newFrame(x coord.Cart) frame {
	d := math.Sqrt(x.Square())
	rho := math.Hypot(x.X, x.Y)
	sa, ca := x.Y/rho, x.X/rho
	sd, cd := x.Z/d, rho/d
	return frame{
		rhat: coord.Cart{X: cd * ca, Y: cd * sa, Z: sd},
		p:    coord.Cart{X: -sa, Y: ca},
		q:    coord.Cart{X: -sd * ca, Y: -sd * sa, Z: cd},
		d:    d,
		cosd: cd,
	}
}

// observe3 maps a position in pc to (ra, dec, parallax) in mas, with the
// gradient of each observable with respect to the position.  Right
// ascension is wrapped to [0, 360) degrees on the mas scale.
func observe3(x coord.Cart) (obs [3]float64, jac [3]coord.Cart) {
	f := newFrame(x)
	ra := math.Atan2(x.Y, x.X)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	obs[0] = ra * radToMas
	obs[1] = math.Asin(x.Z/f.d) * radToMas
	obs[2] = 1000 / f.d

	jac[0].MulScalar(&f.p, radToMas/(f.d*f.cosd))
	jac[1].MulScalar(&f.q, radToMas/f.d)
	jac[2].MulScalar(&f.rhat, -obs[2]/f.d)
	return
}

// observe6 maps a position in pc and a velocity in km/s to
// (ra, dec, parallax, pmra, pmdec, radial velocity), with the gradients of
// each observable with respect to position and velocity.
func observe6(x, v coord.Cart) (obs [6]float64, jx, jv [6]coord.Cart) {
	f := newFrame(x)
	o3, j3 := observe3(x)
	plx := o3[2]
	copy(obs[:3], o3[:])
	copy(jx[:3], j3[:])

	va := v.Dot(&f.p)
	vd := v.Dot(&f.q)
	vr := v.Dot(&f.rhat)

	obs[3] = va * plx / TransverseK
	obs[4] = vd * plx / TransverseK
	obs[5] = vr

	c := plx / (TransverseK * f.d)
	sind := x.Z / f.d
	var t coord.Cart
	jx[3].MulScalar(&f.p, c*(sind*vd-f.cosd*vr)/f.cosd)
	jx[3].Sub(&jx[3], t.MulScalar(&f.rhat, c*va))
	jx[4].MulScalar(&f.p, -c*sind*va/f.cosd)
	jx[4].Sub(&jx[4], t.MulScalar(&f.q, c*vr))
	jx[4].Sub(&jx[4], t.MulScalar(&f.rhat, c*vd))
	jx[5].MulScalar(&f.p, va/f.d)
	jx[5].Add(&jx[5], t.MulScalar(&f.q, vd/f.d))

	jv[3].MulScalar(&f.p, plx/TransverseK)
	jv[4].MulScalar(&f.q, plx/TransverseK)
	jv[5] = f.rhat
	return
}

// sigmoid and its derivative, used by latent interval transforms.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dsigmoid(z float64) float64 {
	s := sigmoid(z)
	return s * (1 - s)
}
