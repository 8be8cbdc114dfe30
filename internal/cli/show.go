package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"skywatch/internal/app"
)

var (
	showUser   string
	showModule string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent tracked history for a user and module",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			UserID: showUser,
			Module: showModule,
			Limit:  showLimit,
		}

		return getRuntime().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showUser, "user", "", "User id")
	showCmd.Flags().StringVar(&showModule, "module", "solar", "Module name")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of entries to display")
}
