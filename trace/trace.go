// Public domain.

// Package trace holds sampled ensembles and their posterior analysis:
// convergence diagnostics, classification, summary statistics and
// exports.
package trace

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Standard variable names within an ensemble group.
const (
	// Source holds per-star latent draws, star-major.
	Source = "source"
	// Population holds the population-level parameter draws.
	Population = "population"
)

// A Var is one named ensemble variable: chains of draws of a flat row of
// values.  A population row holds one value per column name.  A per-star
// row is star-major, len(Cols) values per star.
type Var struct {
	Cols    []string
	PerStar bool
	Data    [][][]float64 // chain, draw, row
}

// NewVar allocates a variable with the given chain count and no draws.
func NewVar(cols []string, perStar bool, chains int) *Var {
	return &Var{Cols: cols, PerStar: perStar, Data: make([][][]float64, chains)}
}

func (v *Var) NumChains() int { return len(v.Data) }

// Draws returns the retained draw count of the shortest chain.
func (v *Var) Draws() int {
	if len(v.Data) == 0 {
		return 0
	}
	n := len(v.Data[0])
	for _, c := range v.Data[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	return n
}

// Width returns the flat row length.
func (v *Var) Width() int {
	for _, c := range v.Data {
		if len(c) > 0 {
			return len(c[0])
		}
	}
	return 0
}

// Pooled concatenates column c over the draws of the selected chains.
// A nil selection pools all chains.
func (v *Var) Pooled(c int, chains []int) []float64 {
	if chains == nil {
		chains = make([]int, len(v.Data))
		for i := range chains {
			chains[i] = i
		}
	}
	var out []float64
	for _, ch := range chains {
		for _, row := range v.Data[ch] {
			out = append(out, row[c])
		}
	}
	return out
}

// An Ensemble is the persisted result of one inference run: prior,
// posterior and posterior-predictive sample groups plus the identifier
// order established at data load.  Groups other than Posterior may be
// nil.
type Ensemble struct {
	Dim    int
	Family string
	IDName string
	IDs    []string

	Prior      map[string]*Var
	Posterior  map[string]*Var
	Predictive map[string]*Var
}

// HasPrior reports whether a prior-predictive group was sampled.
func (e *Ensemble) HasPrior() bool { return len(e.Prior) > 0 }

// HasPredictive reports whether a posterior-predictive group was sampled.
func (e *Ensemble) HasPredictive() bool { return len(e.Predictive) > 0 }

// StarIndex returns the source index of an identifier.
func (e *Ensemble) StarIndex(id string) (int, error) {
	for i, s := range e.IDs {
		if s == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("trace: identifier %q not in the loaded set", id)
}

// file magic guarding against truncated or foreign files
const ensembleMagic = "kalkayotl ensemble 1"

// Save writes the ensemble to path.  The file is written to a scratch
// name and renamed into place so an aborted run never leaves a partial
// dataset behind.
func (e *Ensemble) Save(path string) error {
	scratch := path + ".tmp"
	f, err := os.Create(scratch)
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(f)
	err = enc.Encode(ensembleMagic)
	if err == nil {
		err = enc.Encode(e)
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(scratch)
		return err
	}
	return os.Rename(scratch, path)
}

// Load reads an ensemble written by Save.  Absent groups load as nil;
// only the identifier header is required.
func Load(path string) (*Ensemble, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	var magic string
	if err = dec.Decode(&magic); err != nil || magic != ensembleMagic {
		return nil, fmt.Errorf("trace: %s is not a complete ensemble dataset", path)
	}
	var e Ensemble
	if err = dec.Decode(&e); err != nil {
		return nil, fmt.Errorf("trace: %s: %v", path, err)
	}
	return &e, nil
}
