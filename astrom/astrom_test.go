// Public domain.

package astrom_test

import (
	"math"
	"testing"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"

	"github.com/tzdwi/Kalkayotl/astrom"
)

func TestSeparationMatrix(t *testing.T) {
	ra := []unit.Angle{unit.AngleFromDeg(10), unit.AngleFromDeg(10), unit.AngleFromDeg(10)}
	dec := []unit.Angle{unit.AngleFromDeg(20), unit.AngleFromDeg(20), unit.AngleFromDeg(21)}
	th := astrom.SeparationMatrix(ra, dec)
	for i := 0; i < 3; i++ {
		if th.At(i, i) != 0 {
			t.Errorf("diagonal (%d,%d) = %g, want 0", i, i, th.At(i, i))
		}
	}
	if th.At(0, 1) != 0 {
		t.Errorf("coincident positions separated by %g", th.At(0, 1))
	}
	want := unit.AngleFromDeg(1).Rad()
	if math.Abs(th.At(1, 2)-want) > 1e-9 {
		t.Errorf("one degree of declination = %g rad, want %g", th.At(1, 2), want)
	}
	if th.At(0, 2) != th.At(2, 0) {
		t.Error("separation matrix not symmetric")
	}
}

func TestKernelLimits(t *testing.T) {
	for _, c := range []astrom.Case{
		astrom.Lindegren2018, astrom.Vasiliev2019, astrom.Lindegren2020,
	} {
		for _, pm := range []bool{false, true} {
			max, err := astrom.MaxCov(c, pm)
			if err != nil {
				t.Fatal(err)
			}
			dec, err := astrom.Decorrelation(c, pm)
			if err != nil {
				t.Fatal(err)
			}
			// two stars: coincident pair and a pair at the documented
			// decorrelation distance
			th := mat.NewSymDense(2, nil)
			th.SetSym(0, 1, dec.Rad())
			cov, err := astrom.CovParallax(th, c)
			if pm {
				cov, err = astrom.CovPM(th, c)
			}
			if err != nil {
				t.Fatalf("%s pm=%t: %v", c, pm, err)
			}
			if got := cov.At(0, 0); got != max {
				t.Errorf("%s pm=%t: zero separation cov = %g, want max %g",
					c, pm, got, max)
			}
			if got := math.Abs(cov.At(0, 1)); got > .01*max {
				t.Errorf("%s pm=%t: cov at decorrelation distance = %g, want < 1%% of %g",
					c, pm, got, max)
			}
		}
	}
}

func TestCovParallaxNotPD(t *testing.T) {
	// Coincident stars make the kernel matrix rank deficient: the
	// correlation model is inconsistent with the data's angular scale and
	// must fail loudly, never proceed regularized.
	th := mat.NewSymDense(3, nil) // three coincident sources
	if _, err := astrom.CovParallax(th, astrom.Lindegren2018); err == nil {
		t.Fatal("rank-deficient parallax correlation must be rejected")
	}
	if _, err := astrom.CovPM(th, astrom.Lindegren2018); err == nil {
		t.Fatal("rank-deficient proper motion correlation must be rejected")
	}
}

func TestUnknownCase(t *testing.T) {
	th := mat.NewSymDense(1, nil)
	if _, err := astrom.CovParallax(th, astrom.Case("DR1")); err == nil {
		t.Fatal("unrecognized correlation case must be rejected")
	}
}

func TestPrincipal(t *testing.T) {
	// diagonal covariance: axes aligned with coordinates
	cov := mat.NewSymDense(2, []float64{4, 0, 0, 1})
	w, h, ang := astrom.Principal(cov, 0, 1)
	if math.Abs(w-4) > 1e-12 || math.Abs(h-2) > 1e-12 {
		t.Errorf("width, height = %g, %g, want 4, 2", w, h)
	}
	if c := math.Abs(math.Cos(ang * math.Pi / 180)); math.Abs(c-1) > 1e-12 {
		t.Errorf("angle = %g deg, want axis-aligned", ang)
	}
}

func TestGalacticRotationOrthonormal(t *testing.T) {
	v := coord.Cart{X: 1, Y: -2, Z: .5}
	g := astrom.ICRSToGalactic(v)
	back := astrom.GalacticToICRS(g)
	if math.Abs(back.X-v.X)+math.Abs(back.Y-v.Y)+math.Abs(back.Z-v.Z) > 1e-12 {
		t.Errorf("rotation does not invert: %+v -> %+v", v, back)
	}
	if math.Abs(g.Square()-v.Square()) > 1e-12 {
		t.Error("rotation does not preserve length")
	}
	// galactic north pole: dec +27.13 deg at ra 192.86 deg
	sd, cd := math.Sincos(unit.AngleFromDeg(27.12825).Rad())
	sr, cr := math.Sincos(unit.AngleFromDeg(192.85948).Rad())
	ngp := astrom.ICRSToGalactic(coord.Cart{X: cd * cr, Y: cd * sr, Z: sd})
	if math.Abs(ngp.Z-1) > 1e-6 {
		t.Errorf("north galactic pole maps to %+v, want +Z", ngp)
	}
}

func TestMode(t *testing.T) {
	// skewed sample: heavy cluster at 1 with a tail
	sample := make([]float64, 0, 120)
	for i := 0; i < 100; i++ {
		sample = append(sample, 1+.01*float64(i%10))
	}
	for i := 0; i < 20; i++ {
		sample = append(sample, 5+float64(i))
	}
	m := astrom.Mode(sample)
	if m < 0 || m > 2 {
		t.Errorf("mode = %g, want near the dense cluster at 1", m)
	}
	if got := astrom.Mode([]float64{7}); got != 7 {
		t.Errorf("single-sample mode = %g", got)
	}
}
