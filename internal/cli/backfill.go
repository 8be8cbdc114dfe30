package cli

import (
	"time"

	"github.com/spf13/cobra"

	"skywatch/internal/app"
)

var (
	backfillUser    string
	backfillModule  string
	backfillFrom    string
	backfillTo      string
	backfillStep    time.Duration
	backfillDryRun  bool
	backfillWorkers int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Reconstruct lunar or transit history for a past window",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := requireWindow(backfillFrom, backfillTo)
		if err != nil {
			return err
		}

		return getRuntime().Backfill(cmd.Context(), app.BackfillOptions{
			UserID:  backfillUser,
			Module:  backfillModule,
			From:    from,
			To:      to,
			Step:    backfillStep,
			DryRun:  backfillDryRun,
			Workers: backfillWorkers,
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillUser, "user", "", "User id")
	backfillCmd.Flags().StringVar(&backfillModule, "module", "lunar", "Module name (lunar or transit)")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "End timestamp (RFC3339, exclusive)")
	backfillCmd.Flags().DurationVar(&backfillStep, "step", 0, "Sampling step (defaults to the module interval)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Compute without writing history")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Number of concurrent workers")
}
