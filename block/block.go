// Public domain.

// Package block assembles the joint mean vector, covariance matrix and
// precision matrix over all stars and all observed dimensions of a catalog.
// Per-star uncertainty blocks go in block-diagonal; correlated parallax and
// proper-motion systematics couple the same quantity across stars as a
// function of angular separation; missing coordinates are projected out
// rather than imputed.
package block

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tzdwi/Kalkayotl/astrom"
	"github.com/tzdwi/Kalkayotl/catalog"
)

// Options controls assembly.
type Options struct {
	// IndepMeasures skips the cross-star correlation terms, treating
	// measurements of different stars as independent.
	IndepMeasures bool

	// CorrCase names the spatial-correlation calibration to fold in.
	CorrCase astrom.Case
}

// A Block is the immutable joint data representation consumed by model
// construction.
type Block struct {
	Dim    int
	N      int
	IDName string
	IDs    []string

	// Mean, Cov and Prec cover the observed coordinates only.
	Mean []float64
	Cov  *mat.SymDense
	Prec *mat.SymDense

	// ObsIdx maps each observed coordinate to its index in the full
	// N*Dim grid (star-major).
	ObsIdx []int

	RVMissing []bool
}

// Obs returns the number of observed coordinates (N*Dim minus missing).
func (b *Block) Obs() int { return len(b.ObsIdx) }

// Assemble builds the joint matrices from a catalog.
func Assemble(c *catalog.Catalog, opt Options) (*Block, error) {
	d := c.Dim
	n := c.Len()
	nd := n * d

	mean := make([]float64, nd)
	cov := mat.NewSymDense(nd, nil)
	for i := 0; i < n; i++ {
		mu, sg := c.Block(i)
		if len(mu) != d {
			return nil, fmt.Errorf("block: record %s has %d mean entries, want %d",
				c.IDs[i], len(mu), d)
		}
		base := i * d
		copy(mean[base:base+d], mu)
		for r := 0; r < d; r++ {
			for s := r; s < d; s++ {
				cov.SetSym(base+r, base+s, sg.At(r, s))
			}
		}
	}

	if !opt.IndepMeasures {
		ra, dec := c.Positions()
		theta := astrom.SeparationMatrix(ra, dec)

		plx, err := astrom.CovParallax(theta, opt.CorrCase)
		if err != nil {
			return nil, err
		}
		addQuantity(cov, plx, d, catalog.PlxIndex(d))

		if d == 6 {
			// same kernel for both proper-motion components
			pm, err := astrom.CovPM(theta, opt.CorrCase)
			if err != nil {
				return nil, err
			}
			addQuantity(cov, pm, d, 3)
			addQuantity(cov, pm, d, 4)
		}
	}

	// restrict to the finite coordinates
	var obsIdx []int
	for i, v := range mean {
		if !math.IsNaN(v) {
			obsIdx = append(obsIdx, i)
		}
	}
	no := len(obsIdx)
	omean := make([]float64, no)
	ocov := mat.NewSymDense(no, nil)
	for a, i := range obsIdx {
		omean[a] = mean[i]
		for b := a; b < no; b++ {
			ocov.SetSym(a, b, cov.At(i, obsIdx[b]))
		}
	}

	var ch mat.Cholesky
	if !ch.Factorize(ocov) {
		return nil, fmt.Errorf(
			"block: joint covariance matrix is not positive definite")
	}
	prec := mat.NewSymDense(no, nil)
	if err := ch.InverseTo(prec); err != nil {
		return nil, fmt.Errorf("block: inverting joint covariance: %w", err)
	}

	ids := make([]string, n)
	copy(ids, c.IDs)
	rvm := make([]bool, n)
	copy(rvm, c.RVMissing)
	return &Block{
		Dim:       d,
		N:         n,
		IDName:    c.IDName,
		IDs:       ids,
		Mean:      omean,
		Cov:       ocov,
		Prec:      prec,
		ObsIdx:    obsIdx,
		RVMissing: rvm,
	}, nil
}

// addQuantity adds a cross-star covariance for one observed quantity:
// q is the per-star offset of the quantity in the star-major grid.
func addQuantity(cov, add *mat.SymDense, d, q int) {
	n := add.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			r, s := i*d+q, j*d+q
			cov.SetSym(r, s, cov.At(r, s)+add.At(i, j))
		}
	}
}
