// Public domain.

package kalprog

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tzdwi/Kalkayotl/trace"
)

func samplesCmd() *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Export raw posterior samples as a bulk container",
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
			path := filepath.Join(cfg.Output, "Samples.dat")
			if err := trace.WriteBulk(path, e, merge); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "fold the chain axis into the draw axis")
	return cmd
}
