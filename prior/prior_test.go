// Public domain.

package prior_test

import (
	"strings"
	"testing"

	"github.com/tzdwi/Kalkayotl/prior"
)

func valid1D() prior.Config {
	return prior.Config{
		Family:          prior.Gaussian,
		Dim:             1,
		Hyper:           prior.Hyper{Alpha: [][2]float64{{300, 50}}, Beta: 20},
		Parametrization: prior.Central,
		Unit:            prior.Pc,
	}
}

func valid3D() prior.Config {
	c := prior.Config{
		Family: prior.Gaussian,
		Dim:    3,
		Hyper: prior.Hyper{
			Alpha: [][2]float64{{-50, 20}, {190, 20}, {-30, 20}},
			Beta:  20,
			Eta:   10,
		},
		Parametrization: prior.NonCentral,
		Unit:            prior.Pc,
	}
	return c
}

func TestValidConfigurations(t *testing.T) {
	for _, c := range []prior.Config{valid1D(), valid3D()} {
		if err := c.Validate(); err != nil {
			t.Errorf("%s %dD: %v", c.Family, c.Dim, err)
		}
	}
}

func TestDimensionRestrictions(t *testing.T) {
	c := valid3D()
	c.Family = prior.EDSD
	if err := c.Validate(); err == nil {
		t.Fatal("EDSD accepted at 3D")
	}
	c = valid1D()
	c.Family = prior.CGMM
	c.Hyper.Delta = []float64{1, 1}
	if err := c.Validate(); err == nil {
		t.Fatal("CGMM accepted at 1D")
	}
}

func TestUnitRestriction(t *testing.T) {
	c := valid3D()
	c.Unit = prior.Mas
	if err := c.Validate(); err == nil {
		t.Fatal("mas accepted at 3D")
	}
	c = valid1D()
	c.Unit = prior.Mas
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMixtureRules(t *testing.T) {
	c := valid3D()
	c.Family = prior.GMM
	c.Hyper.Delta = []float64{1, 1}
	c.Hyper.Alpha = [][2]float64{
		{-50, 20}, {190, 20}, {-30, 20},
		{-50, 20}, {190, 20}, {-30, 20},
	}
	c.Parametrization = prior.NonCentral
	if err := c.Validate(); err == nil {
		t.Fatal("non-central mixture accepted")
	}
	c.Parametrization = prior.Central
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if k := c.Components(); k != 2 {
		t.Fatalf("components = %d, want 2", k)
	}

	// explicit weights below the floor
	c.Params.Weights = []float64{.97, .03}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "5%") {
		t.Fatalf("weight floor not enforced: %v", err)
	}
	c.Params.Weights = []float64{.6, .3}
	if err := c.Validate(); err == nil {
		t.Fatal("weights not summing to 1 accepted")
	}
	c.Params.Weights = []float64{.6, .4}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestMissingHypers(t *testing.T) {
	c := valid3D()
	c.Hyper.Eta = 0
	if err := c.Validate(); err == nil {
		t.Fatal("missing eta accepted at 3D")
	}

	c = valid1D()
	c.Hyper.Beta = 0
	if err := c.Validate(); err == nil {
		t.Fatal("missing beta accepted with inferred scale")
	}
	c.Params.Scale = []float64{15}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	c = valid1D()
	c.Hyper.Alpha = nil
	if err := c.Validate(); err == nil {
		t.Fatal("missing alpha accepted with inferred location")
	}
	c.Params.Location = []float64{300}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestShapeParameters(t *testing.T) {
	c := valid3D()
	c.Family = prior.EFF
	c.Hyper.Gamma = 0
	if err := c.Validate(); err == nil {
		t.Fatal("EFF with no index and no hyper gamma accepted")
	}
	g := 2.5 // below the 3D bound
	c.Params.Gamma = &g
	if err := c.Validate(); err == nil {
		t.Fatal("EFF gamma below the 3D bound accepted")
	}
	g = 3.5
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	c = valid3D()
	c.Family = prior.King
	c.Hyper.Gamma = 0
	if err := c.Validate(); err == nil {
		t.Fatal("King with no rt and no hyper gamma accepted")
	}
	rt := 40.
	c.Params.Rt = &rt
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestScaleLen(t *testing.T) {
	for _, tc := range []struct {
		f    prior.Family
		dim  int
		k    int
		want int
	}{
		{prior.Gaussian, 3, 1, 3},
		{prior.King, 3, 1, 1},
		{prior.King, 6, 1, 4},
		{prior.GMM, 3, 2, 6},
		{prior.CGMM, 3, 3, 3},
		{prior.GUM, 3, 2, 4},
		{prior.Uniform, 1, 1, 1},
	} {
		c := prior.Config{Family: tc.f, Dim: tc.dim}
		if tc.f.IsMixture() {
			c.Hyper.Delta = make([]float64, tc.k)
		}
		if got := c.ScaleLen(); got != tc.want {
			t.Errorf("%s %dD: ScaleLen = %d, want %d", tc.f, tc.dim, got, tc.want)
		}
	}
}

func TestParseFamily(t *testing.T) {
	f, err := prior.ParseFamily("EFF")
	if err != nil || f != prior.EFF {
		t.Fatalf("ParseFamily(EFF) = %v, %v", f, err)
	}
	if _, err = prior.ParseFamily("Cauchy"); err == nil {
		t.Fatal("unknown family accepted")
	}
}
