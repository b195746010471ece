// Public domain.

// Package catalog reads tabular astrometric catalogs in the Gaia column
// convention and prepares per-star means and uncertainty blocks for the
// joint data assembly.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/mat"
)

// Observables in Gaia column order.  The correlation columns cover the
// upper triangle of the astrometric quantities only: Gaia publishes no
// correlation between radial velocity and any astrometric quantity, and
// that absence is reproduced here as a hard invariant.
var observables = []string{
	"ra", "dec", "parallax", "pmra", "pmdec", "radial_velocity",
	"ra_error", "dec_error", "parallax_error",
	"pmra_error", "pmdec_error", "radial_velocity_error",
	"ra_dec_corr", "ra_parallax_corr", "ra_pmra_corr", "ra_pmdec_corr",
	"dec_parallax_corr", "dec_pmra_corr", "dec_pmdec_corr",
	"parallax_pmra_corr", "parallax_pmdec_corr",
	"pmra_pmdec_corr",
}

// index sets into observables, by dimension.  See Spec.
var (
	idx1D = spec{
		obs:  []int{0, 1, 2, 8},
		mu:   []int{2},
		sd:   []int{8},
		corr: nil,
		nan:  []int{0, 1, 2, 8},
		plx:  0,
	}
	idx3D = spec{
		obs:  []int{0, 1, 2, 6, 7, 8, 12, 13, 16},
		mu:   []int{0, 1, 2},
		sd:   []int{6, 7, 8},
		corr: []int{12, 13, 16},
		nan:  []int{0, 1, 2, 6, 7, 8, 12, 13, 16},
		plx:  2,
	}
	idx6D = spec{
		obs:  seq(0, 22),
		mu:   []int{0, 1, 2, 3, 4, 5},
		sd:   []int{6, 7, 8, 9, 10, 11},
		corr: []int{12, 13, 14, 15, 16, 17, 18, 19, 20, 21},
		// missing radial velocity is permitted
		nan: []int{0, 1, 2, 3, 4, 6, 7, 8, 9, 10,
			12, 13, 14, 15, 16, 17, 18, 19, 20, 21},
		plx: 2,
	}
)

type spec struct {
	obs, mu, sd, corr, nan []int
	plx                    int
}

func seq(lo, hi int) []int {
	s := make([]int, hi-lo)
	for i := range s {
		s[i] = lo + i
	}
	return s
}

func dimSpec(dim int) (spec, error) {
	switch dim {
	case 1:
		return idx1D, nil
	case 3:
		return idx3D, nil
	case 6:
		return idx6D, nil
	}
	return spec{}, fmt.Errorf("catalog: dimension %d not valid, must be 1, 3 or 6", dim)
}

// Columns returns the catalog columns required for the given dimension,
// identifier column first.  Additional catalog columns are ignored on read.
func Columns(dim int, idName string) ([]string, error) {
	sp, err := dimSpec(dim)
	if err != nil {
		return nil, err
	}
	cols := []string{idName}
	for _, i := range sp.obs {
		cols = append(cols, observables[i])
	}
	return cols, nil
}

// DegToMas converts degrees to milliarcseconds.
const DegToMas = 3.6e6

// PlxIndex returns the per-star offset of the parallax coordinate for the
// given dimension.
func PlxIndex(dim int) int {
	sp, _ := dimSpec(dim)
	return sp.plx
}

// A Catalog is the immutable result of reading an observation table.
// Records keep the encounter order of the input.
type Catalog struct {
	Dim    int
	IDName string
	IDs    []string

	// Per-star sky position in degrees, as read (before zero point).
	RADeg, DecDeg []float64

	// Per-star observed means after zero-point subtraction, length Dim.
	// Right ascension and declination are converted to mas so that every
	// astrometric coordinate shares the scale of its uncertainty column.
	// A missing radial velocity (6D only) is NaN.
	Mu [][]float64

	// Per-star standard deviations and upper-triangle correlation
	// coefficients, in the column order of Columns.
	Sd   [][]float64
	Corr [][]float64

	// RVMissing marks 6D records whose radial velocity is absent.
	RVMissing []bool
}

// Len returns the number of surviving records.
func (c *Catalog) Len() int { return len(c.IDs) }

// Positions returns the sky positions as angles for separation computations.
func (c *Catalog) Positions() (ra, dec []unit.Angle) {
	ra = make([]unit.Angle, c.Len())
	dec = make([]unit.Angle, c.Len())
	for i := range ra {
		ra[i] = unit.AngleFromDeg(c.RADeg[i])
		dec[i] = unit.AngleFromDeg(c.DecDeg[i])
	}
	return
}

// corrPairs lists the (row, col) pairs of the upper triangle covered by the
// correlation columns, in column order.  For 6D the radial velocity row and
// column are excluded.
func corrPairs(dim int) [][2]int {
	n := dim
	if dim == 6 {
		n = 5
	}
	var p [][2]int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			p = append(p, [2]int{i, j})
		}
	}
	return p
}

// Block returns the mean vector and covariance matrix of record i.
// The covariance combines the stored standard deviations with the mirrored
// upper-triangle correlation matrix (unit diagonal).  Missing coordinates
// carry NaN in both mean and covariance diagonal; off-diagonal terms with a
// missing coordinate are zero by construction.
func (c *Catalog) Block(i int) (mu []float64, cov *mat.SymDense) {
	d := c.Dim
	mu = make([]float64, d)
	copy(mu, c.Mu[i])
	rho := mat.NewSymDense(d, nil)
	for k := 0; k < d; k++ {
		rho.SetSym(k, k, 1)
	}
	for k, p := range corrPairs(d) {
		rho.SetSym(p[0], p[1], c.Corr[i][k])
	}
	cov = mat.NewSymDense(d, nil)
	for r := 0; r < d; r++ {
		for s := r; s < d; s++ {
			v := c.Sd[i][r] * rho.At(r, s) * c.Sd[i][s]
			if r != s && (math.IsNaN(c.Sd[i][r]) || math.IsNaN(c.Sd[i][s])) {
				v = 0
			}
			cov.SetSym(r, s, v)
		}
	}
	return
}

// Read reads a catalog from CSV.  Records missing any required field are
// dropped; at dimension 6 a missing radial velocity is tolerated and the
// record retained.  The zero point has one entry per observed quantity and
// is subtracted from the raw means.
func Read(r io.Reader, dim int, idName string, zeroPoint []float64) (*Catalog, error) {
	sp, err := dimSpec(dim)
	if err != nil {
		return nil, err
	}
	if len(zeroPoint) != dim {
		return nil, fmt.Errorf("catalog: zero point has %d entries, want %d",
			len(zeroPoint), dim)
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: reading header: %w", err)
	}
	colOf := make(map[string]int, len(header))
	for i, h := range header {
		colOf[h] = i
	}
	cols, _ := Columns(dim, idName)
	for _, name := range cols {
		if _, ok := colOf[name]; !ok {
			return nil, fmt.Errorf("catalog: required column %q not present", name)
		}
	}

	nanSet := make(map[int]bool, len(sp.nan))
	for _, i := range sp.nan {
		nanSet[i] = true
	}

	c := &Catalog{Dim: dim, IDName: idName}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		row := make([]float64, len(observables))
		for i := range row {
			row[i] = math.NaN()
		}
		drop := false
		for _, oi := range sp.obs {
			f := rec[colOf[observables[oi]]]
			v, perr := strconv.ParseFloat(f, 64)
			if perr != nil || math.IsNaN(v) {
				v = math.NaN()
				if nanSet[oi] {
					drop = true
					break
				}
			}
			row[oi] = v
		}
		if drop {
			continue
		}
		mu := make([]float64, dim)
		for k, oi := range sp.mu {
			mu[k] = row[oi] - zeroPoint[k]
		}
		if dim != 1 {
			// ra, dec to mas
			mu[0] *= DegToMas
			mu[1] *= DegToMas
		}
		sd := make([]float64, dim)
		for k, oi := range sp.sd {
			sd[k] = row[oi]
		}
		corr := make([]float64, len(sp.corr))
		for k, oi := range sp.corr {
			corr[k] = row[oi]
		}
		rvMissing := false
		if dim == 6 && (math.IsNaN(mu[5]) || math.IsNaN(sd[5])) {
			mu[5] = math.NaN()
			sd[5] = math.NaN()
			rvMissing = true
		}
		c.IDs = append(c.IDs, rec[colOf[idName]])
		c.RADeg = append(c.RADeg, row[0])
		c.DecDeg = append(c.DecDeg, row[1])
		c.Mu = append(c.Mu, mu)
		c.Sd = append(c.Sd, sd)
		c.Corr = append(c.Corr, corr)
		c.RVMissing = append(c.RVMissing, rvMissing)
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("catalog: no records survive the required-field filter")
	}
	return c, nil
}

// ReadFile reads a catalog from a CSV file.
func ReadFile(path string, dim int, idName string, zeroPoint []float64) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, dim, idName, zeroPoint)
}

// SaveIdentifiers writes the ordered identifier list.  The written order is
// the only source of truth for re-associating saved samples with stars.
func (c *Catalog) SaveIdentifiers(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{c.IDName})
	for _, id := range c.IDs {
		w.Write([]string{id})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadIdentifiers reads back an identifier list written by SaveIdentifiers.
func LoadIdentifiers(path string) (idName string, ids []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	cr := csv.NewReader(f)
	rows, err := cr.ReadAll()
	if err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, fmt.Errorf("catalog: identifier file %s is empty", path)
	}
	idName = rows[0][0]
	for _, row := range rows[1:] {
		ids = append(ids, row[0])
	}
	return idName, ids, nil
}
