// Public domain.

package catalog_test

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tzdwi/Kalkayotl/catalog"
)

func ExampleColumns() {
	cols, _ := catalog.Columns(1, "source_id")
	fmt.Println(cols)
	// Output:
	// [source_id ra dec parallax parallax_error]
}

const csv3D = `source_id,ra,dec,parallax,ra_error,dec_error,parallax_error,ra_dec_corr,ra_parallax_corr,dec_parallax_corr,extra
a,10,20,5,.1,.1,.05,.1,.2,.3,ignored
b,11,21,4.5,.1,.1,.05,0,0,0,ignored
c,12,22,,,,.05,0,0,0,ignored
`

func TestRead3D(t *testing.T) {
	c, err := catalog.Read(strings.NewReader(csv3D), 3, "source_id",
		[]float64{0, 0, -.017})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2 (record c lacks required fields)", got)
	}
	if c.IDs[0] != "a" || c.IDs[1] != "b" {
		t.Fatalf("IDs = %v, want encounter order [a b]", c.IDs)
	}
	mu, cov := c.Block(0)
	if mu[2] != 5+.017 {
		t.Errorf("zero point not subtracted: parallax mean = %g", mu[2])
	}
	if mu[0] != 10*catalog.DegToMas {
		t.Errorf("ra mean = %g, want it on the mas scale", mu[0])
	}
	// covariance from sd and mirrored correlations
	want01 := .1 * .1 * .1
	if math.Abs(cov.At(0, 1)-want01) > 1e-15 {
		t.Errorf("cov(ra,dec) = %g, want %g", cov.At(0, 1), want01)
	}
	if cov.At(0, 1) != cov.At(1, 0) {
		t.Error("per-star covariance not symmetric")
	}
	if math.Abs(cov.At(2, 2)-.05*.05) > 1e-15 {
		t.Errorf("cov(plx,plx) = %g", cov.At(2, 2))
	}
}

const csv6D = `source_id,ra,dec,parallax,pmra,pmdec,radial_velocity,ra_error,dec_error,parallax_error,pmra_error,pmdec_error,radial_velocity_error,ra_dec_corr,ra_parallax_corr,ra_pmra_corr,ra_pmdec_corr,dec_parallax_corr,dec_pmra_corr,dec_pmdec_corr,parallax_pmra_corr,parallax_pmdec_corr,pmra_pmdec_corr
a,10,20,5,1,2,30,.1,.1,.05,.1,.1,2,0,0,0,0,0,0,0,0,0,0
b,11,21,4.5,1,2,,.1,.1,.05,.1,.1,,0,0,0,0,0,0,0,0,0,0
`

func TestRead6DMissingRV(t *testing.T) {
	c, err := catalog.Read(strings.NewReader(csv6D), 6, "source_id",
		make([]float64, 6))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2: missing rv must not drop the record", c.Len())
	}
	if c.RVMissing[0] || !c.RVMissing[1] {
		t.Fatalf("RVMissing = %v, want [false true]", c.RVMissing)
	}
	mu, cov := c.Block(1)
	if !math.IsNaN(mu[5]) || !math.IsNaN(cov.At(5, 5)) {
		t.Error("missing rv must be NaN in mean and covariance diagonal")
	}
	// rv must not correlate with the astrometric block
	if cov.At(5, 0) != 0 || cov.At(2, 5) != 0 {
		t.Error("rv row of per-star covariance must be zero off-diagonal")
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	c, err := catalog.Read(strings.NewReader(csv3D), 3, "source_id",
		make([]float64, 3))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "Identifiers.csv")
	if err := c.SaveIdentifiers(path); err != nil {
		t.Fatal(err)
	}
	name, ids, err := catalog.LoadIdentifiers(path)
	if err != nil {
		t.Fatal(err)
	}
	if name != "source_id" {
		t.Errorf("id column = %q", name)
	}
	if len(ids) != c.Len() {
		t.Fatalf("round trip length %d != %d", len(ids), c.Len())
	}
	for i, id := range ids {
		if id != c.IDs[i] {
			t.Fatalf("ids[%d] = %q, want %q", i, id, c.IDs[i])
		}
	}
	_ = os.Remove(path)
}

func TestInvalidDimension(t *testing.T) {
	_, err := catalog.Read(strings.NewReader(csv3D), 2, "source_id", nil)
	if err == nil {
		t.Fatal("dimension 2 must be rejected")
	}
}
