// Public domain.

package evidence_test

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/tzdwi/Kalkayotl/block"
	"github.com/tzdwi/Kalkayotl/catalog"
	"github.com/tzdwi/Kalkayotl/evidence"
	"github.com/tzdwi/Kalkayotl/model"
	"github.com/tzdwi/Kalkayotl/prior"
)

func cat1D(t *testing.T, plx []float64, sd float64) *block.Block {
	t.Helper()
	c := &catalog.Catalog{Dim: 1, IDName: "source_id"}
	for i, p := range plx {
		c.IDs = append(c.IDs, string(rune('a'+i)))
		c.RADeg = append(c.RADeg, 10)
		c.DecDeg = append(c.DecDeg, 10)
		c.Mu = append(c.Mu, []float64{p})
		c.Sd = append(c.Sd, []float64{sd})
		c.Corr = append(c.Corr, nil)
	}
	b, err := block.Assemble(c, block.Options{IndepMeasures: true})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// One star, fixed Gaussian population, parallax unit: the evidence is
// the analytic convolution of two Gaussians.
func TestEvidenceAnalytic(t *testing.T) {
	b := cat1D(t, []float64{10}, .5)
	m, err := model.New(b, &prior.Config{
		Family:          prior.Gaussian,
		Dim:             1,
		Unit:            prior.Mas,
		Params:          prior.Params{Location: []float64{10.4}, Scale: []float64{1}},
		Parametrization: prior.Central,
	})
	if err != nil {
		t.Fatal(err)
	}
	names, tr, ll, err := evidence.ForModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "parallax[a]" {
		t.Fatalf("names %v", names)
	}
	r, err := evidence.Sample(1, names, tr, ll, evidence.Config{Live: 300},
		rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatal(err)
	}
	s := math.Hypot(.5, 1)
	d := 10.4 - 10
	want := -.5*math.Log(2*math.Pi*s*s) - d*d/(2*s*s)
	if math.Abs(r.LogZ-want) > 3*r.LogZErr+.05 {
		t.Errorf("logZ = %g +- %g, analytic %g", r.LogZ, r.LogZErr, want)
	}
	med := r.Quantile(0, .5)
	// posterior precision-weighted mean of data and prior
	post := (10/(.5*.5) + 10.4/1) / (1/(.5*.5) + 1)
	if math.Abs(med-post) > .15 {
		t.Errorf("median parallax %g, want near %g", med, post)
	}
}

// The evidence must prefer a prior centered on the data over one far
// from it.
func TestEvidenceDiscriminates(t *testing.T) {
	b := cat1D(t, []float64{9.9, 10, 10.1}, .2)
	logZ := func(center float64) float64 {
		m, err := model.New(b, &prior.Config{
			Family:          prior.Gaussian,
			Dim:             1,
			Unit:            prior.Mas,
			Params:          prior.Params{Location: []float64{center}, Scale: []float64{.5}},
			Parametrization: prior.Central,
		})
		if err != nil {
			t.Fatal(err)
		}
		names, tr, ll, err := evidence.ForModel(m)
		if err != nil {
			t.Fatal(err)
		}
		r, err := evidence.Sample(len(names), names, tr, ll,
			evidence.Config{Live: 200}, rand.New(rand.NewSource(7)))
		if err != nil {
			t.Fatal(err)
		}
		return r.LogZ
	}
	if good, bad := logZ(10), logZ(12); good < bad+3 {
		t.Errorf("logZ %g for a matched prior, %g for a displaced one", good, bad)
	}
}

func TestEvidenceRejectsHigherDimensions(t *testing.T) {
	c := &catalog.Catalog{Dim: 3, IDName: "source_id",
		IDs:   []string{"a"},
		RADeg: []float64{10}, DecDeg: []float64{10},
		Mu:   [][]float64{{10 * catalog.DegToMas, 10 * catalog.DegToMas, 10}},
		Sd:   [][]float64{{1, 1, .1}},
		Corr: [][]float64{{0, 0, 0}},
	}
	b, err := block.Assemble(c, block.Options{IndepMeasures: true})
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.New(b, &prior.Config{
		Family: prior.Gaussian,
		Dim:    3,
		Unit:   prior.Pc,
		Hyper: prior.Hyper{
			Alpha: [][2]float64{{96, 20}, {17, 20}, {17, 20}},
			Beta:  10,
			Eta:   3,
		},
		Parametrization: prior.Central,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, err = evidence.ForModel(m); err == nil ||
		!strings.Contains(err.Error(), "1D") {
		t.Errorf("3D model accepted for evidence: %v", err)
	}
}

func TestEvidenceCSV(t *testing.T) {
	b := cat1D(t, []float64{10}, .5)
	m, err := model.New(b, &prior.Config{
		Family:          prior.Gaussian,
		Dim:             1,
		Unit:            prior.Mas,
		Params:          prior.Params{Location: []float64{10}, Scale: []float64{1}},
		Parametrization: prior.Central,
	})
	if err != nil {
		t.Fatal(err)
	}
	names, tr, ll, err := evidence.ForModel(m)
	if err != nil {
		t.Fatal(err)
	}
	r, err := evidence.Sample(len(names), names, tr, ll,
		evidence.Config{Live: 150}, rand.New(rand.NewSource(9)))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := r.WriteCSV(&buf, .025, .975); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("%d csv lines, want header, logZ and one parameter", len(lines))
	}
	if !strings.HasPrefix(lines[0], "quantity,2.5%,median,97.5%") {
		t.Errorf("header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "logZ,") {
		t.Errorf("row %q", lines[1])
	}
}
