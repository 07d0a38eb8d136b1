package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/outcome"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record and inspect journey outcomes",
}

var outcomeRecordCmd = &cobra.Command{
	Use:   "record <client-id> <outcome>",
	Short: "Record the final outcome of a client's journey",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		clientID, err := parseClientID(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		notes, _ := cmd.Flags().GetString("notes")
		var revenue *int64
		if cmd.Flags().Changed("revenue") {
			v, _ := cmd.Flags().GetInt64("revenue")
			revenue = &v
		}

		o, err := outcome.New(st).Record(ctx, clientID, model.JourneyOutcome(args[1]), notes, revenue)
		if err != nil {
			return eris.Wrap(err, "outcome record")
		}

		fmt.Printf("Recorded %s for client %d\n", o.JourneyOutcome, o.ClientID)
		return nil
	},
}

var outcomeShowCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Show a client's recorded outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		clientID, err := parseClientID(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		o, err := outcome.New(st).Get(ctx, clientID)
		if err != nil {
			return eris.Wrap(err, "outcome show")
		}
		if o == nil {
			fmt.Fprintln(os.Stderr, "No outcome recorded.")
			return nil
		}

		fmt.Printf("Client %d: %s (recorded %s)\n", o.ClientID, o.JourneyOutcome, o.RecordedAt.Format("2006-01-02 15:04"))
		if o.RevenueAmount != nil {
			fmt.Printf("Revenue: %d minor units\n", *o.RevenueAmount)
		}
		if o.Notes != "" {
			fmt.Printf("Notes: %s\n", o.Notes)
		}
		return nil
	},
}

var outcomeAccuracyCmd = &cobra.Command{
	Use:   "accuracy <page-id>",
	Short: "Compare a page's hypothesis predictions with recorded outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		acc, err := outcome.New(st).PageAccuracy(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "outcome accuracy")
		}

		fmt.Printf("Predictions: %d (matched %d, missed %d, open %d)\n",
			acc.Total, acc.Matched, acc.Missed, acc.Open)
		return nil
	},
}

func init() {
	outcomeRecordCmd.Flags().String("notes", "", "free-form notes")
	outcomeRecordCmd.Flags().Int64("revenue", 0, "revenue in minor units")

	outcomeCmd.AddCommand(outcomeRecordCmd, outcomeShowCmd, outcomeAccuracyCmd)
	rootCmd.AddCommand(outcomeCmd)
}
