package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/hypothesis"
	"github.com/sells-group/activation-core/internal/model"
)

var hypothesisCmd = &cobra.Command{
	Use:   "hypothesis",
	Short: "Manage editing hypotheses",
	Long:  "Commands for creating, completing and listing the hypotheses that gate page edits.",
}

var hypothesisCreateCmd = &cobra.Command{
	Use:   "create <page-id>",
	Short: "Create a hypothesis for a page, superseding any active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		statement, _ := cmd.Flags().GetString("statement")
		changeType, _ := cmd.Flags().GetString("change-type")
		confidence, _ := cmd.Flags().GetInt("confidence")
		predicted, _ := cmd.Flags().GetString("predicted")

		h, err := hypothesis.New(st).Create(ctx, args[0], hypothesis.Input{
			Statement:        statement,
			ChangeType:       model.ChangeType(changeType),
			ConfidenceLevel:  confidence,
			PredictedOutcome: predicted,
		})
		if err != nil {
			return eris.Wrap(err, "hypothesis create")
		}

		fmt.Printf("Created hypothesis %s (confidence %d/10)\n", h.ID, h.ConfidenceLevel)
		return nil
	},
}

var hypothesisListCmd = &cobra.Command{
	Use:   "list <page-id>",
	Short: "List a page's hypotheses, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hypotheses, err := hypothesis.New(st).ListByPage(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "hypothesis list")
		}
		if len(hypotheses) == 0 {
			fmt.Fprintln(os.Stderr, "No hypotheses found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCONF\tPREDICTED\tACTUAL\tSTATEMENT")
		for _, h := range hypotheses {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
				h.ID, h.Status, h.ConfidenceLevel, h.PredictedOutcome, h.ActualOutcome, truncate(h.Statement, 60))
		}
		return w.Flush()
	},
}

var hypothesisOutcomeCmd = &cobra.Command{
	Use:   "outcome <hypothesis-id> <actual-outcome>",
	Short: "Record what actually happened for a hypothesis",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		h, err := hypothesis.New(st).RecordOutcome(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "hypothesis outcome")
		}

		match := "differs from"
		if h.PredictedOutcome == h.ActualOutcome {
			match = "matches"
		}
		fmt.Printf("Recorded %q, %s predicted %q\n", h.ActualOutcome, match, h.PredictedOutcome)
		return nil
	},
}

var hypothesisCancelCmd = &cobra.Command{
	Use:   "cancel <hypothesis-id>",
	Short: "Cancel an active hypothesis without recording an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := hypothesis.New(st).Cancel(ctx, args[0]); err != nil {
			return eris.Wrap(err, "hypothesis cancel")
		}
		fmt.Println("Cancelled.")
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	hypothesisCreateCmd.Flags().String("statement", "", "falsifiable statement about the change")
	hypothesisCreateCmd.Flags().String("change-type", "content", "content, title, structure or both")
	hypothesisCreateCmd.Flags().Int("confidence", 5, "confidence level 1-10")
	hypothesisCreateCmd.Flags().String("predicted", "", "predicted journey outcome")

	hypothesisCmd.AddCommand(hypothesisCreateCmd, hypothesisListCmd, hypothesisOutcomeCmd, hypothesisCancelCmd)
	rootCmd.AddCommand(hypothesisCmd)
}
