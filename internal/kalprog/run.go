// Public domain.

package kalprog

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tzdwi/Kalkayotl/infer"
	"github.com/tzdwi/Kalkayotl/sampler"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fit the model and persist the sample dataset",
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
			s := cfg.Sampling
			o := cfg.Optimization
			_, err = infer.Run(context.Background(), m, infer.Config{
				Chains:       s.Chains,
				Draws:        s.Draws,
				Tune:         s.Tune,
				Cores:        s.Cores,
				TargetAccept: s.TargetAccept,
				Seed:         s.Seed,
				Opt: sampler.VIConfig{
					Trials:     o.Trials,
					Iterations: o.Iterations,
					Samples:    o.Samples,
					Step:       o.Step,
					RelTol:     o.RelTol,
					AbsTol:     o.AbsTol,
					CheckEvery: o.CheckEvery,
				},
				SkipOptimize:        o.Skip,
				PriorPredictive:     s.PriorPredictive,
				PosteriorPredictive: s.PosteriorPredictive,
				Path:                cfg.chainsPath(),
			})
			return err
		},
	}
}
