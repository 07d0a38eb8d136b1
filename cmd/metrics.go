package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/correlate"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute conversion metrics from correlations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var clientID *int64
		if cmd.Flags().Changed("client") {
			id, _ := cmd.Flags().GetInt64("client")
			clientID = &id
		}

		var since time.Time
		if raw, _ := cmd.Flags().GetString("since"); raw != "" {
			since, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				return eris.Wrapf(err, "parse --since %q", raw)
			}
		}

		m, err := correlate.New(st).MetricsFor(ctx, clientID, since, time.Time{})
		if err != nil {
			return eris.Wrap(err, "metrics")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		}

		fmt.Printf("Events:          %d\n", m.TotalEvents)
		fmt.Printf("Conversions:     %d (%.1f%%)\n", m.Conversions, m.SuccessRate*100)
		fmt.Printf("Overrides:       %d\n", m.Overrides)
		if m.MeasuredPaid > 0 {
			fmt.Printf("Avg conversion:  %s (over %d measured)\n",
				m.AvgConversion.Round(time.Second), m.MeasuredPaid)
		}
		for cur, amount := range m.RevenueByCur {
			fmt.Printf("Revenue %s:     %d\n", cur, amount)
		}
		return nil
	},
}

func init() {
	metricsCmd.Flags().Int64("client", 0, "restrict to one client")
	metricsCmd.Flags().String("since", "", "only count events correlated after this RFC3339 time")
	metricsCmd.Flags().Bool("json", false, "emit JSON")
	rootCmd.AddCommand(metricsCmd)
}
