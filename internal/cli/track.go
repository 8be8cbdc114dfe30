package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	trackUser   string
	trackModule string

	upcomingUser string
	upcomingDays int

	auroraLat float64
	auroraLon float64

	synthUser       string
	synthTrigger    string
	synthBackground bool

	chartUser string
	chartFile string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run one tracking update for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getRuntime().Track(cmd.Context(), trackUser, trackModule)
	},
}

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List upcoming sky events for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if upcomingDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		return getRuntime().Upcoming(cmd.Context(), upcomingUser, upcomingDays)
	},
}

var auroraCmd = &cobra.Command{
	Use:   "aurora",
	Short: "Show the aurora outlook for a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getRuntime().Aurora(cmd.Context(), auroraLat, auroraLon)
	},
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Trigger a synthesis for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getRuntime().Synthesize(cmd.Context(), synthUser, synthTrigger, synthBackground)
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Manage reference charts",
}

var chartImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Store a reference chart from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if chartFile == "" {
			return fmt.Errorf("--file must be provided")
		}
		return getRuntime().ImportChart(cmd.Context(), chartUser, chartFile)
	},
}

func init() {
	trackCmd.Flags().StringVar(&trackUser, "user", "", "User id")
	trackCmd.Flags().StringVar(&trackModule, "module", "", "Module to update (solar, lunar, transit); all when empty")

	upcomingCmd.Flags().StringVar(&upcomingUser, "user", "", "User id; natal alignments need a stored chart")
	upcomingCmd.Flags().IntVar(&upcomingDays, "days", 0, "Days ahead to scan (defaults to config)")

	auroraCmd.Flags().Float64Var(&auroraLat, "lat", 0, "Latitude in degrees")
	auroraCmd.Flags().Float64Var(&auroraLon, "lon", 0, "Longitude in degrees")

	synthesizeCmd.Flags().StringVar(&synthUser, "user", "", "User id")
	synthesizeCmd.Flags().StringVar(&synthTrigger, "trigger", "user_requested", "Trigger name")
	synthesizeCmd.Flags().BoolVar(&synthBackground, "background", false, "Dispatch to the queue instead of running inline")

	chartImportCmd.Flags().StringVar(&chartUser, "user", "", "User id")
	chartImportCmd.Flags().StringVar(&chartFile, "file", "", "Path to a chart JSON file keyed by body")
	chartCmd.AddCommand(chartImportCmd)
}
