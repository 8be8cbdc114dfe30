package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled tracking sweep and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getRuntime().Run(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued synthesis jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getRuntime().Worker(cmd.Context())
	},
}
