// Public domain.

package kalprog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"

	"github.com/tzdwi/Kalkayotl/prior"
	"github.com/tzdwi/Kalkayotl/trace"
)

func statsCmd() *cobra.Command {
	var prob float64
	var chains []int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Write per-star and per-cluster summary statistics",
		Long: `Stats summarizes the persisted posterior: one CSV row per star with
coordinate and distance statistics plus its group label, and one row
per population parameter.  Mixture-family statistics pool a chain
subset, the first chain when none is given; label switching makes
cross-chain mixture statistics unreliable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			e, err := trace.Load(cfg.chainsPath())
			if err != nil {
				return err
			}
			opt := trace.SummaryOpt{Prob: prob}

			// GUM is a mixture but its contamination member is not
			// Gaussian; it keeps the constant zero label.
			var groups []int
			mixture := false
			if _, m, err := cfg.BuildModel(); err == nil &&
				(m.Config().Family == prior.GMM || m.Config().Family == prior.CGMM) {
				mixture = true
				groups, err = trace.Classify(e, m.Mixture, trace.ClassifyOpt{},
					rand.New(rand.NewSource(cfg.Sampling.Seed+1)))
				if err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			if mixture {
				opt.Chains = chains
				if opt.Chains == nil {
					opt.Chains = []int{0}
				}
			}

			if err := writeCSV(filepath.Join(cfg.Output, "Sources.csv"), func(f *os.File) error {
				return trace.WriteSourceCSV(f, e, groups, opt)
			}); err != nil {
				return err
			}
			return writeCSV(filepath.Join(cfg.Output, "Cluster.csv"), func(f *os.File) error {
				return trace.WriteClusterCSV(f, e, opt)
			})
		},
	}
	cmd.Flags().Float64Var(&prob, "hdi", .95, "credible mass of the highest density interval")
	cmd.Flags().IntSliceVar(&chains, "chains", nil, "chain subset for mixture statistics")
	return cmd
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}
