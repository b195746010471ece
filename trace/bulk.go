// Public domain.

package trace

import (
	"encoding/gob"
	"fmt"
	"os"
)

// A Dataset is one variable of a bulk export, row-major over Shape.
type Dataset struct {
	// Shape is draws x chains x dim, or pooled-draws x dim when the
	// container was written merged.
	Shape []int
	Data  []float64
}

// A Bulk is the raw-sample container: population chains under Cluster,
// one dataset per parameter, and per-star chains under Sources, one
// dataset per identifier.
type Bulk struct {
	Merged  bool
	Cluster map[string]Dataset
	Sources map[string]Dataset
}

// NewBulk collects the posterior group of an ensemble into a bulk
// container.  With merge true the chain axis is folded into the draw
// axis.
func NewBulk(e *Ensemble, merge bool) (*Bulk, error) {
	pop, ok := e.Posterior[Population]
	if !ok {
		return nil, fmt.Errorf("trace: dataset has no posterior %s group", Population)
	}
	src, ok := e.Posterior[Source]
	if !ok {
		return nil, fmt.Errorf("trace: dataset has no posterior %s group", Source)
	}
	b := &Bulk{
		Merged:  merge,
		Cluster: make(map[string]Dataset),
		Sources: make(map[string]Dataset),
	}
	for c, name := range pop.Cols {
		b.Cluster[name] = extract(pop, c, 1, merge)
	}
	d := len(src.Cols)
	for i, id := range e.IDs {
		b.Sources[id] = extract(src, i*d, d, merge)
	}
	return b, nil
}

// extract pulls dim consecutive columns starting at c0 from v.
func extract(v *Var, c0, dim int, merge bool) Dataset {
	chains := v.NumChains()
	draws := v.Draws()
	var ds Dataset
	if merge {
		ds.Shape = []int{draws * chains, dim}
		ds.Data = make([]float64, 0, draws*chains*dim)
		for ch := 0; ch < chains; ch++ {
			for t := 0; t < draws; t++ {
				ds.Data = append(ds.Data, v.Data[ch][t][c0:c0+dim]...)
			}
		}
		return ds
	}
	ds.Shape = []int{draws, chains, dim}
	ds.Data = make([]float64, 0, draws*chains*dim)
	for t := 0; t < draws; t++ {
		for ch := 0; ch < chains; ch++ {
			ds.Data = append(ds.Data, v.Data[ch][t][c0:c0+dim]...)
		}
	}
	return ds
}

// WriteBulk writes the posterior samples of e as a bulk container.
func WriteBulk(path string, e *Ensemble, merge bool) error {
	b, err := NewBulk(e, merge)
	if err != nil {
		return err
	}
	scratch := path + ".tmp"
	f, err := os.Create(scratch)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(b)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(scratch)
		return err
	}
	return os.Rename(scratch, path)
}

// ReadBulk reads a container written by WriteBulk.
func ReadBulk(path string) (*Bulk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var b Bulk
	if err = gob.NewDecoder(f).Decode(&b); err != nil {
		return nil, fmt.Errorf("trace: %s: %v", path, err)
	}
	return &b, nil
}
