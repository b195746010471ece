// Public domain.

// Package astrom holds the geometry used to build joint astrometric
// covariances: angular separations, empirical spatial-correlation kernels
// for parallax and proper motion, reference-frame rotations, and the small
// statistical helpers shared by the analysis code.
package astrom

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SeparationMatrix returns the matrix of great-circle separations between
// all pairs of sky positions.  Entries are angles, the matrix is symmetric
// with a zero diagonal.
func SeparationMatrix(ra, dec []unit.Angle) *mat.SymDense {
	n := len(ra)
	th := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// haversine form, stable at the small separations the
			// correlation kernels operate on
			th.SetSym(i, j, angle.SepHav(ra[i], dec[i], ra[j], dec[j]).Rad())
		}
	}
	return th
}

// RefSystem selects the Cartesian axes of per-star latent positions and
// velocities.
type RefSystem string

const (
	ICRS     RefSystem = "ICRS"
	Galactic RefSystem = "Galactic"
)

// Valid reports whether s names a recognized reference system.
func (s RefSystem) Valid() bool { return s == ICRS || s == Galactic }

// Rotation from ICRS equatorial axes to galactic axes (ESA Hipparcos
// convention, frame fixed).
var galRot = [3][3]float64{
	{-0.0548755604162154, -0.8734370902348850, -0.4838350155487132},
	{+0.4941094278755837, -0.4448296299600112, +0.7469822444972189},
	{-0.8676661490190047, -0.1980763734312015, +0.4559837761750669},
}

// ICRSToGalactic rotates an ICRS-aligned Cartesian vector onto galactic axes.
func ICRSToGalactic(v coord.Cart) coord.Cart {
	return coord.Cart{
		X: galRot[0][0]*v.X + galRot[0][1]*v.Y + galRot[0][2]*v.Z,
		Y: galRot[1][0]*v.X + galRot[1][1]*v.Y + galRot[1][2]*v.Z,
		Z: galRot[2][0]*v.X + galRot[2][1]*v.Y + galRot[2][2]*v.Z,
	}
}

// GalacticToICRS is the inverse rotation (transpose, the matrix being
// orthonormal).
func GalacticToICRS(v coord.Cart) coord.Cart {
	return coord.Cart{
		X: galRot[0][0]*v.X + galRot[1][0]*v.Y + galRot[2][0]*v.Z,
		Y: galRot[0][1]*v.X + galRot[1][1]*v.Y + galRot[2][1]*v.Z,
		Z: galRot[0][2]*v.X + galRot[1][2]*v.Y + galRot[2][2]*v.Z,
	}
}

// Principal returns the marginal covariance ellipse of coordinate pair
// (i, j): full width and height along the principal axes and the rotation
// angle of the dominant axis in degrees.  For visualization use.
func Principal(cov mat.Symmetric, i, j int) (width, height, angleDeg float64) {
	m := mat.NewSymDense(2, []float64{
		cov.At(i, i), cov.At(i, j),
		cov.At(i, j), cov.At(j, j),
	})
	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return 0, 0, 0
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// gonum returns ascending eigenvalues; dominant axis is the second
	width = 2 * math.Sqrt(math.Max(vals[1], 0))
	height = 2 * math.Sqrt(math.Max(vals[0], 0))
	angleDeg = math.Atan2(vecs.At(1, 1), vecs.At(0, 1)) * 180 / math.Pi
	return
}

// Mode estimates the univariate mode of a sample by a Gaussian kernel
// density evaluated on a regular grid, matching the summary-statistic
// convention of the original analysis.  Robust to skewed posteriors where
// mean and median mislead.
func Mode(sample []float64) float64 {
	n := len(sample)
	switch n {
	case 0:
		return math.NaN()
	case 1:
		return sample[0]
	}
	lo, hi := sample[0], sample[0]
	for _, v := range sample[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return lo
	}
	// Silverman bandwidth
	sd := stat.StdDev(sample, nil)
	h := 1.06 * sd * math.Pow(float64(n), -.2)
	if h <= 0 {
		return sample[0]
	}
	const grid = 1000
	step := (hi - lo) / (grid - 1)
	best, bestDen := lo, math.Inf(-1)
	for g := 0; g < grid; g++ {
		x := lo + float64(g)*step
		den := 0.
		for _, v := range sample {
			u := (x - v) / h
			den += math.Exp(-.5 * u * u)
		}
		if den > bestDen {
			best, bestDen = x, den
		}
	}
	return best
}
