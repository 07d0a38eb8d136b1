package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store counts and recent correlation health",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		lookback, _ := cmd.Flags().GetInt("lookback")
		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		fmt.Printf("Hypotheses:       %d (%d active)\n", snap.TotalHypotheses, snap.ActiveHypotheses)
		fmt.Printf("Content versions: %d\n", snap.ContentVersions)
		fmt.Printf("Correlations:     %d\n", snap.Correlations)
		fmt.Printf("Conflict queue:   %d\n", snap.ConflictDepth)
		fmt.Printf("Last %dh:         %d events, %d paid, %d failed (%.1f%% fail), %d overrides\n",
			snap.LookbackHours, snap.WindowEvents, snap.WindowPaid, snap.WindowFailed,
			snap.WindowFailRate*100, snap.WindowOverrides)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback", 24, "window in hours for recent-event stats")
	rootCmd.AddCommand(statusCmd)
}
