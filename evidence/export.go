// Public domain.

package evidence

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the log evidence and per-parameter summaries, one
// row per quantity.  qlo and qhi are the credible-interval quantiles
// reported beside the median.
func (r *Result) WriteCSV(w io.Writer, qlo, qhi float64) error {
	cw := csv.NewWriter(w)
	head := []string{"quantity",
		fmt.Sprintf("%g%%", qlo*100), "median", fmt.Sprintf("%g%%", qhi*100)}
	if err := cw.Write(head); err != nil {
		return err
	}
	logZ := []string{"logZ",
		fmt.Sprintf("%.6g", r.LogZ-r.LogZErr),
		fmt.Sprintf("%.6g", r.LogZ),
		fmt.Sprintf("%.6g", r.LogZ+r.LogZErr)}
	if err := cw.Write(logZ); err != nil {
		return err
	}
	for p, name := range r.Names {
		row := []string{name,
			fmt.Sprintf("%.6g", r.Quantile(p, qlo)),
			fmt.Sprintf("%.6g", r.Quantile(p, .5)),
			fmt.Sprintf("%.6g", r.Quantile(p, qhi))}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
