package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/export"
	"github.com/sells-group/activation-core/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export correlations and metrics to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		filter := store.CorrelationFilter{Limit: limit}
		if cmd.Flags().Changed("client") {
			id, _ := cmd.Flags().GetInt64("client")
			filter.ClientID = &id
		}

		rows, err := export.New(st, cfg.Export.Locale).Correlations(ctx, filter, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}

		fmt.Printf("Wrote %d correlations to %s\n", rows, args[0])
		return nil
	},
}

func init() {
	exportCmd.Flags().Int("limit", 10000, "maximum rows")
	exportCmd.Flags().Int64("client", 0, "restrict to one client")
	rootCmd.AddCommand(exportCmd)
}
