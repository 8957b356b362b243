// conductd is the Conduct job orchestration daemon. It serves the HTTP
// API backed by a durable job store and runs the admission scheduler.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "conductd",
		Short:   "Conduct job orchestration daemon",
		Version: "0.3.0",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "conductd.yaml", "config file path")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	return root
}
