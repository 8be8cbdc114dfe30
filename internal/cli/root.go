package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"skywatch/internal/app"
	"skywatch/internal/config"
	"skywatch/internal/logging"
)

var (
	cfgFile    string
	logLevel   string
	appRuntime *app.Runtime
)

var rootCmd = &cobra.Command{
	Use:           "skywatch",
	Short:         "Track solar, lunar and transit state per user and trigger synthesis",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appRuntime != nil || cmd.Annotations["runtime"] == "none" {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		rt, err := app.NewRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		appRuntime = rt
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appRuntime != nil {
			appRuntime.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(upcomingCmd)
	rootCmd.AddCommand(auroraCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getRuntime() *app.Runtime {
	if appRuntime == nil {
		panic("runtime not initialized; PersistentPreRunE not executed")
	}
	return appRuntime
}
