// Public domain.

package trace_test

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/tzdwi/Kalkayotl/trace"
)

// gaussVar builds a variable of independent draws, column c distributed
// N(mean[c], 1), identically across chains.
func gaussVar(cols []string, perStar bool, chains, draws int, mean []float64, rnd *rand.Rand) *trace.Var {
	v := trace.NewVar(cols, perStar, chains)
	for ch := 0; ch < chains; ch++ {
		for t := 0; t < draws; t++ {
			row := make([]float64, len(mean))
			for c := range row {
				row[c] = mean[c] + rnd.NormFloat64()
			}
			v.Data[ch] = append(v.Data[ch], row)
		}
	}
	return v
}

func TestRhatMixed(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	v := gaussVar([]string{"a", "b"}, false, 4, 500, []float64{0, 10}, rnd)
	cols, mean := trace.Rhat(v)
	for c, r := range cols {
		if r < .99 || r > 1.05 {
			t.Errorf("rhat[%d] = %g for well mixed chains", c, r)
		}
	}
	if math.Abs(mean-(cols[0]+cols[1])/2) > 1e-12 {
		t.Errorf("mean = %g, want mean of columns", mean)
	}
}

func TestRhatDisagreeingChains(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	v := trace.NewVar([]string{"a"}, false, 2)
	for ch := 0; ch < 2; ch++ {
		off := float64(ch) * 5 // chains sampling different modes
		for i := 0; i < 300; i++ {
			v.Data[ch] = append(v.Data[ch], []float64{off + rnd.NormFloat64()})
		}
	}
	if _, r := trace.Rhat(v); r < 1.5 {
		t.Errorf("rhat = %g for disagreeing chains, want well above 1", r)
	}
}

func TestESS(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	iid := gaussVar([]string{"a"}, false, 2, 1000, []float64{0}, rnd)
	_, essIID := trace.ESS(iid)
	if essIID < 1000 || essIID > 3000 {
		t.Errorf("iid ess = %g over 2000 draws", essIID)
	}

	// strongly autocorrelated AR(1) chains
	ar := trace.NewVar([]string{"a"}, false, 2)
	for ch := 0; ch < 2; ch++ {
		x := 0.
		for i := 0; i < 1000; i++ {
			x = .95*x + rnd.NormFloat64()
			ar.Data[ch] = append(ar.Data[ch], []float64{x})
		}
	}
	_, essAR := trace.ESS(ar)
	if essAR > essIID/4 {
		t.Errorf("autocorrelated ess = %g, iid ess = %g", essAR, essIID)
	}
}

func TestHDI(t *testing.T) {
	s := make([]float64, 101)
	for i := range s {
		s[i] = float64(i)
	}
	lo, hi := trace.HDI(s, .5)
	if hi-lo > 51 || hi-lo < 49 {
		t.Errorf("hdi [%g, %g] of uniform 0..100", lo, hi)
	}
	rnd := rand.New(rand.NewSource(4))
	n := make([]float64, 20000)
	for i := range n {
		n[i] = rnd.NormFloat64()
	}
	st := trace.Describe(n, .95)
	if math.Abs(st.Lo+1.96) > .1 || math.Abs(st.Hi-1.96) > .1 {
		t.Errorf("normal hdi [%g, %g], want near [-1.96, 1.96]", st.Lo, st.Hi)
	}
	if math.Abs(st.Median) > .05 || math.Abs(st.SD-1) > .05 {
		t.Errorf("median %g sd %g", st.Median, st.SD)
	}
}

func testEnsemble(rnd *rand.Rand) *trace.Ensemble {
	return &trace.Ensemble{
		Dim:    1,
		Family: "Gaussian",
		IDName: "source_id",
		IDs:    []string{"a", "b", "c"},
		Posterior: map[string]*trace.Var{
			trace.Source: gaussVar([]string{"distance"}, true, 2, 200,
				[]float64{300, 310, 290}, rnd),
			trace.Population: gaussVar([]string{"loc[0]", "scl[0]"}, false, 2, 200,
				[]float64{300, 10}, rnd),
		},
	}
}

func TestEnsembleRoundTrip(t *testing.T) {
	e := testEnsemble(rand.New(rand.NewSource(5)))
	path := filepath.Join(t.TempDir(), "chains.dat")
	if err := e.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := trace.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasPrior() || got.HasPredictive() {
		t.Error("optional groups reported present after posterior-only save")
	}
	if len(got.IDs) != 3 || got.IDs[1] != "b" {
		t.Errorf("identifiers %v after round trip", got.IDs)
	}
	_, r0 := trace.Rhat(e.Posterior[trace.Source])
	_, r1 := trace.Rhat(got.Posterior[trace.Source])
	if math.Abs(r0-r1) > 1e-12 {
		t.Errorf("rhat %g before save, %g after load", r0, r1)
	}
}

func TestLoadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.dat")
	if err := os.WriteFile(path, []byte("not a dataset"), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := trace.Load(path); err == nil {
		t.Error("loaded a file that is not an ensemble dataset")
	}
}

func TestStarIndex(t *testing.T) {
	e := testEnsemble(rand.New(rand.NewSource(6)))
	i, err := e.StarIndex("b")
	if err != nil || i != 1 {
		t.Errorf("StarIndex(b) = %d, %v", i, err)
	}
	if _, err = e.StarIndex("zzz"); err == nil ||
		!strings.Contains(err.Error(), "zzz") {
		t.Errorf("missing identifier error %v does not name the identifier", err)
	}
}

// twoComp is a 1D two-component mixture layout: loc0, loc1, scl0, scl1,
// w0, w1.
func twoComp(pop []float64) ([]float64, [][]float64, []*mat.SymDense, error) {
	c0 := mat.NewSymDense(1, []float64{pop[2] * pop[2]})
	c1 := mat.NewSymDense(1, []float64{pop[3] * pop[3]})
	return pop[4:6], [][]float64{{pop[0]}, {pop[1]}}, []*mat.SymDense{c0, c1}, nil
}

func mixtureEnsemble(rnd *rand.Rand) *trace.Ensemble {
	// stars a, b near 100; star c near 500
	src := gaussVar([]string{"distance"}, true, 2, 300, []float64{100, 102, 500}, rnd)
	pop := trace.NewVar([]string{"loc[0]", "loc[1]", "scl[0]", "scl[1]",
		"weights[0]", "weights[1]"}, false, 2)
	for ch := 0; ch < 2; ch++ {
		for i := 0; i < 300; i++ {
			pop.Data[ch] = append(pop.Data[ch], []float64{
				100 + rnd.NormFloat64(), 500 + rnd.NormFloat64(),
				10, 10, .6, .4})
		}
	}
	return &trace.Ensemble{
		Dim: 1, Family: "GMM", IDName: "source_id",
		IDs: []string{"a", "b", "c"},
		Posterior: map[string]*trace.Var{
			trace.Source: src, trace.Population: pop,
		},
	}
}

func TestClassify(t *testing.T) {
	e := mixtureEnsemble(rand.New(rand.NewSource(7)))
	labels, err := trace.Classify(e, twoComp, trace.ClassifyOpt{}, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 0, 1}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label[%d] = %d, want %d", i, labels[i], want[i])
		}
	}
	// same seed, same labels
	again, err := trace.Classify(e, twoComp, trace.ClassifyOpt{}, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatal(err)
	}
	for i := range labels {
		if labels[i] != again[i] {
			t.Fatalf("labels differ between identically seeded calls")
		}
	}
}

func TestClassifyIgnoresWeights(t *testing.T) {
	// the vote compares unweighted component densities, so a lopsided
	// weight must not pull a star toward the heavy component
	src := trace.NewVar([]string{"distance"}, true, 1)
	pop := trace.NewVar([]string{"loc[0]", "loc[1]", "scl[0]", "scl[1]",
		"weights[0]", "weights[1]"}, false, 1)
	for i := 0; i < 50; i++ {
		src.Data[0] = append(src.Data[0], []float64{320})
		pop.Data[0] = append(pop.Data[0], []float64{100, 500, 100, 100, .999, .001})
	}
	e := &trace.Ensemble{
		Dim: 1, Family: "GMM", IDName: "source_id",
		IDs: []string{"a"},
		Posterior: map[string]*trace.Var{
			trace.Source: src, trace.Population: pop,
		},
	}
	labels, err := trace.Classify(e, twoComp, trace.ClassifyOpt{}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if labels[0] != 1 {
		t.Errorf("label = %d, want 1 (the nearer component)", labels[0])
	}
}

func TestSourceCSV(t *testing.T) {
	e := testEnsemble(rand.New(rand.NewSource(9)))
	var buf bytes.Buffer
	if err := trace.WriteSourceCSV(&buf, e, nil, trace.SummaryOpt{}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("%d csv lines, want header + 3 stars", len(lines))
	}
	if !strings.HasPrefix(lines[0], "source_id,group,distance_median") {
		t.Errorf("header %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "b,0,") {
		t.Errorf("row %q, want star b group 0", lines[2])
	}
}

func TestClusterCSV(t *testing.T) {
	e := testEnsemble(rand.New(rand.NewSource(10)))
	var buf bytes.Buffer
	if err := trace.WriteClusterCSV(&buf, e, trace.SummaryOpt{Chains: []int{0}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("%d csv lines, want header + 2 parameters", len(lines))
	}
	if !strings.HasPrefix(lines[1], "loc[0],") {
		t.Errorf("row %q", lines[1])
	}
}

func TestBulk(t *testing.T) {
	e := testEnsemble(rand.New(rand.NewSource(11)))
	path := filepath.Join(t.TempDir(), "samples.dat")
	if err := trace.WriteBulk(path, e, false); err != nil {
		t.Fatal(err)
	}
	b, err := trace.ReadBulk(path)
	if err != nil {
		t.Fatal(err)
	}
	if b.Merged {
		t.Error("merged flag set on unmerged container")
	}
	ds, ok := b.Sources["a"]
	if !ok {
		t.Fatal("no dataset for star a")
	}
	if len(ds.Shape) != 3 || ds.Shape[0] != 200 || ds.Shape[1] != 2 || ds.Shape[2] != 1 {
		t.Errorf("source shape %v, want [200 2 1]", ds.Shape)
	}
	if _, ok = b.Cluster["loc[0]"]; !ok {
		t.Error("no dataset for loc[0]")
	}

	if err = trace.WriteBulk(path, e, true); err != nil {
		t.Fatal(err)
	}
	if b, err = trace.ReadBulk(path); err != nil {
		t.Fatal(err)
	}
	ds = b.Sources["a"]
	if len(ds.Shape) != 2 || ds.Shape[0] != 400 || ds.Shape[1] != 1 {
		t.Errorf("merged shape %v, want [400 1]", ds.Shape)
	}
}
