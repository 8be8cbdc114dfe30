package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"skywatch/internal/app"
)

var (
	simulateUser     string
	simulateBaseline float64
	simulateKp       float64
	simulateFlare    string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-storm",
	Short: "Simulate a geomagnetic storm and run the synthesis trigger path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateKp < 0 || simulateBaseline < 0 {
			return errors.New("--kp and --baseline must not be negative")
		}

		_, err := getRuntime().SimulateStorm(cmd.Context(), app.SimulateOptions{
			UserID:     simulateUser,
			BaselineKp: decimal.NewFromFloat(simulateBaseline),
			StormKp:    decimal.NewFromFloat(simulateKp),
			FlareClass: simulateFlare,
		})
		return err
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateUser, "user", "", "User id")
	simulateCmd.Flags().Float64Var(&simulateBaseline, "baseline", 2, "Kp before the storm")
	simulateCmd.Flags().Float64Var(&simulateKp, "kp", 8, "Kp during the storm")
	simulateCmd.Flags().StringVar(&simulateFlare, "flare", "", "Optional flare class, e.g. X1.2")
}
