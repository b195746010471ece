// Public domain.

package kalprog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/tzdwi/Kalkayotl/evidence"
)

func evidenceCmd() *cobra.Command {
	var live int
	var qlo, qhi float64
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Estimate the 1D model evidence by nested sampling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			_, m, err := cfg.BuildModel()
			if err != nil {
				return err
			}
			names, tr, ll, err := evidence.ForModel(m)
			if err != nil {
				return err
			}
			r, err := evidence.Sample(len(names), names, tr, ll,
				evidence.Config{Live: live},
				rand.New(rand.NewSource(cfg.Sampling.Seed+2)))
			if err != nil {
				return err
			}
			fmt.Printf("logZ = %.4f +- %.4f\n", r.LogZ, r.LogZErr)
			path := filepath.Join(cfg.Output, "Evidence.csv")
			return writeCSV(path, func(f *os.File) error {
				return r.WriteCSV(f, qlo, qhi)
			})
		},
	}
	cmd.Flags().IntVar(&live, "live", 400, "number of live points")
	cmd.Flags().Float64Var(&qlo, "qlo", .025, "lower summary quantile")
	cmd.Flags().Float64Var(&qhi, "qhi", .975, "upper summary quantile")
	return cmd
}
