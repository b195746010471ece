// Public domain.

package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/tzdwi/Kalkayotl/astrom"
)

// SummaryOpt controls summary statistics.
type SummaryOpt struct {
	// Prob is the credible mass of the highest density interval.
	// Zero selects .95.
	Prob float64
	// Chains restricts the pooled draws to a chain subset.  Nil pools
	// all chains.  Mixture-family statistics should restrict to a
	// single chain; label switching makes cross-chain pooling
	// unreliable.
	Chains []int
}

func (o *SummaryOpt) prob() float64 {
	if o.Prob == 0 {
		return .95
	}
	return o.Prob
}

// Stats is the summary of one pooled scalar sample.
type Stats struct {
	Median, Mode, Mean, SD float64
	// Lo, Hi bound the highest density interval.
	Lo, Hi float64
}

// Describe summarizes a pooled sample.
func Describe(sample []float64, prob float64) Stats {
	s := make([]float64, len(sample))
	copy(s, sample)
	sort.Float64s(s)
	mean, sd := stat.MeanStdDev(s, nil)
	lo, hi := HDI(s, prob)
	return Stats{
		Median: stat.Quantile(.5, stat.Empirical, s, nil),
		Mode:   astrom.Mode(s),
		Mean:   mean,
		SD:     sd,
		Lo:     lo,
		Hi:     hi,
	}
}

// HDI returns the bounds of the shortest interval holding the given
// probability mass of a sorted sample.
func HDI(sorted []float64, prob float64) (lo, hi float64) {
	n := len(sorted)
	if n == 0 {
		return math.NaN(), math.NaN()
	}
	k := int(math.Ceil(prob * float64(n)))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	best := 0
	for i := 0; i+k <= n; i++ {
		if sorted[i+k-1]-sorted[i] < sorted[best+k-1]-sorted[best] {
			best = i
		}
	}
	return sorted[best], sorted[best+k-1]
}

// statCols is the column suffix order of every statistics export.
var statCols = []string{"median", "mode", "mean", "sd", "lo", "hi"}

func (s Stats) row() []float64 {
	return []float64{s.Median, s.Mode, s.Mean, s.SD, s.Lo, s.Hi}
}

// WriteClusterCSV writes one row per population-level parameter with
// the full statistic set.
func WriteClusterCSV(w io.Writer, e *Ensemble, opt SummaryOpt) error {
	v, ok := e.Posterior[Population]
	if !ok {
		return fmt.Errorf("trace: dataset has no posterior %s group", Population)
	}
	cw := csv.NewWriter(w)
	head := append([]string{"parameter"}, statCols...)
	if err := cw.Write(head); err != nil {
		return err
	}
	for c, name := range v.Cols {
		s := Describe(v.Pooled(c, opt.Chains), opt.prob())
		if err := cw.Write(numRow(name, s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSourceCSV writes one row per star: its identifier, group label,
// per-coordinate statistics and, for 3D and 6D models, the statistics
// of the distance from the origin.  groups may be nil for non-mixture
// runs; every star then carries label 0.
func WriteSourceCSV(w io.Writer, e *Ensemble, groups []int, opt SummaryOpt) error {
	v, ok := e.Posterior[Source]
	if !ok {
		return fmt.Errorf("trace: dataset has no posterior %s group", Source)
	}
	d := len(v.Cols)
	cw := csv.NewWriter(w)
	head := []string{e.IDName, "group"}
	for _, c := range v.Cols {
		for _, s := range statCols {
			head = append(head, c+"_"+s)
		}
	}
	dist := d >= 3
	if dist {
		for _, s := range statCols {
			head = append(head, "distance_"+s)
		}
	}
	if err := cw.Write(head); err != nil {
		return err
	}
	for i, id := range e.IDs {
		g := 0
		if groups != nil {
			g = groups[i]
		}
		row := []string{id, fmt.Sprint(g)}
		for c := 0; c < d; c++ {
			s := Describe(v.Pooled(i*d+c, opt.Chains), opt.prob())
			row = appendStats(row, s)
		}
		if dist {
			s := Describe(distances(v, i, d, opt.Chains), opt.prob())
			row = appendStats(row, s)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// distances pools the per-draw Euclidean norm of star i's first three
// coordinates, so each statistic of the distance is computed from the
// distance sample itself rather than from other statistics.
func distances(v *Var, i, d int, chains []int) []float64 {
	x := v.Pooled(i*d, chains)
	y := v.Pooled(i*d+1, chains)
	z := v.Pooled(i*d+2, chains)
	out := make([]float64, len(x))
	for k := range out {
		out[k] = math.Sqrt(x[k]*x[k] + y[k]*y[k] + z[k]*z[k])
	}
	return out
}

func appendStats(row []string, s Stats) []string {
	for _, v := range s.row() {
		row = append(row, fmt.Sprintf("%.6g", v))
	}
	return row
}

func numRow(name string, s Stats) []string {
	return appendStats([]string{name}, s)
}
