package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/correlate"
	"github.com/sells-group/activation-core/internal/model"
	"github.com/sells-group/activation-core/internal/store"
)

var correlationsCmd = &cobra.Command{
	Use:   "correlations",
	Short: "Inspect payment correlations",
}

var correlationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List correlations, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
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

		correlations, err := correlate.New(st).List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "correlations list")
		}
		if len(correlations) == 0 {
			fmt.Fprintln(os.Stderr, "No correlations found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tCLIENT\tOUTCOME\tAMOUNT\tOVERRIDE\tCONVERSION\tCORRELATED")
		for _, c := range correlations {
			conversion := "-"
			if c.ConversionDuration != nil {
				conversion = c.ConversionDuration.Round(time.Second).String()
			}
			override := ""
			if c.ManualOverride {
				override = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%d %s\t%s\t%s\t%s\n",
				c.PaymentEventID, c.ClientID, c.OutcomeType, c.Amount, c.Currency,
				override, conversion, c.CorrelatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var correlationsAuditCmd = &cobra.Command{
	Use:   "audit <correlation-id>",
	Short: "Show the override history of a correlation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		audit, err := correlate.New(st).Audit(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "correlations audit")
		}
		if len(audit) == 0 {
			fmt.Fprintln(os.Stderr, "No overrides recorded.")
			return nil
		}

		for _, a := range audit {
			fmt.Printf("%s  %s -> %s  by %s: %s\n",
				a.CreatedAt.Format(time.RFC3339), a.OldOutcome, a.NewOutcome, a.ActorID, a.Reason)
		}
		return nil
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override <correlation-id> <outcome>",
	Short: "Manually reclassify a correlation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reason, _ := cmd.Flags().GetString("reason")
		actor, _ := cmd.Flags().GetString("actor")

		c, err := correlate.New(st).Override(ctx, args[0], model.OutcomeType(args[1]), reason, actor)
		if err != nil {
			return eris.Wrap(err, "override")
		}

		fmt.Printf("Correlation %s is now %s\n", c.ID, c.OutcomeType)
		return nil
	},
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicting payment deliveries awaiting review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		conflicts, err := correlate.New(st).Conflicts(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "conflicts")
		}
		if len(conflicts) == 0 {
			fmt.Fprintln(os.Stderr, "No conflicts queued.")
			return nil
		}

		for _, c := range conflicts {
			fmt.Printf("%s  event %s  received %s\n  %s\n",
				c.ID, c.EventID, c.ReceivedAt.Format(time.RFC3339), c.Payload)
		}
		return nil
	},
}

func init() {
	correlationsListCmd.Flags().Int("limit", 50, "maximum rows")
	correlationsListCmd.Flags().Int64("client", 0, "filter by client id")
	correlationsCmd.AddCommand(correlationsListCmd, correlationsAuditCmd)

	overrideCmd.Flags().String("reason", "", "why the classification is being corrected")
	overrideCmd.Flags().String("actor", "", "who is making the correction")
	_ = overrideCmd.MarkFlagRequired("reason")

	conflictsCmd.Flags().Int("limit", 50, "maximum rows")

	rootCmd.AddCommand(correlationsCmd, overrideCmd, conflictsCmd)
}
