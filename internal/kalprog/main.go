// Public domain.

// Package kalprog implements the kalkayotl command: YAML-configured
// inference runs over astrometric catalogs and the analysis of their
// persisted sample datasets.
package kalprog

import (
	"github.com/spf13/cobra"

	"github.com/soniakeys/exit"
)

const versionString = "kalkayotl version 1.0 Go source."

var configPath string

// Main is the whole command.  Errors terminate through the exit
// handler with a descriptive message.
func Main() {
	defer exit.Handler()
	root := &cobra.Command{
		Use:           "kalkayotl",
		Short:         "Hierarchical Bayesian distances for stellar clusters",
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "kalkayotl.yml",
		"run configuration file")
	root.AddCommand(runCmd(), statsCmd(), samplesCmd(), convergenceCmd(), evidenceCmd())
	if err := root.Execute(); err != nil {
		exit.Log(err)
	}
}
