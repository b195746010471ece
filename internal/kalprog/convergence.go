// Public domain.

package kalprog

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tzdwi/Kalkayotl/trace"
)

func convergenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convergence",
		Short: "Report split-Rhat and effective sample size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			e, err := trace.Load(cfg.chainsPath())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "variable\trhat\tess")
			if v, ok := e.Posterior[trace.Population]; ok {
				rs, _ := trace.Rhat(v)
				ns, _ := trace.ESS(v)
				for c, name := range v.Cols {
					fmt.Fprintf(w, "%s\t%.3f\t%.0f\n", name, rs[c], ns[c])
				}
			}
			if v, ok := e.Posterior[trace.Source]; ok {
				_, r := trace.Rhat(v)
				_, n := trace.ESS(v)
				fmt.Fprintf(w, "%s\t%.3f\t%.0f\n", trace.Source, r, n)
			}
			if e.HasPrior() {
				fmt.Fprintln(w, "prior predictive group present")
			}
			if e.HasPredictive() {
				fmt.Fprintln(w, "posterior predictive group present")
			}
			return w.Flush()
		},
	}
}
