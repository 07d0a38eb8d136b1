package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/journey"
	"github.com/sells-group/activation-core/internal/model"
)

var journeyCmd = &cobra.Command{
	Use:   "journey",
	Short: "Manage client activation journeys",
}

var journeySeedCmd = &cobra.Command{
	Use:   "seed <client-id>",
	Short: "Seed the page flow for a client",
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

		rawPages, _ := cmd.Flags().GetStringSlice("pages")
		pages := make([]model.PageType, len(rawPages))
		for i, p := range rawPages {
			pages[i] = model.PageType(p)
		}

		seeded, err := journey.New(st).Seed(ctx, clientID, pages)
		if err != nil {
			return eris.Wrap(err, "journey seed")
		}

		fmt.Printf("Seeded %d pages for client %d:\n", len(seeded), clientID)
		for _, p := range seeded {
			fmt.Printf("  %d. %s (%s) %s\n", p.PageOrder, p.PageType, p.Status, p.ID)
		}
		return nil
	},
}

var journeyAdvanceCmd = &cobra.Command{
	Use:   "advance <client-id>",
	Short: "Complete the active page and activate the next",
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

		skip, _ := cmd.Flags().GetBool("skip")
		next, err := journey.New(st).Advance(ctx, clientID, skip)
		if err != nil {
			return eris.Wrap(err, "journey advance")
		}

		if next == nil {
			fmt.Println("Journey complete.")
			return nil
		}
		fmt.Printf("Now on page %d: %s (%s)\n", next.PageOrder, next.PageType, next.ID)
		return nil
	},
}

var journeyShowCmd = &cobra.Command{
	Use:   "show <client-id>",
	Short: "Show a client's page flow",
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

		pages, err := journey.New(st).Pages(ctx, clientID)
		if err != nil {
			return eris.Wrap(err, "journey show")
		}
		if len(pages) == 0 {
			fmt.Fprintln(os.Stderr, "No journey found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tPAGE\tSTATUS\tID")
		for _, p := range pages {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.PageOrder, p.PageType, p.Status, p.ID)
		}
		return w.Flush()
	},
}

func parseClientID(raw string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, eris.Errorf("invalid client id %q", raw)
	}
	return id, nil
}

func init() {
	journeySeedCmd.Flags().StringSlice("pages", nil, "page types in order (default activation flow)")
	journeyAdvanceCmd.Flags().Bool("skip", false, "mark the current page skipped instead of completed")

	journeyCmd.AddCommand(journeySeedCmd, journeyAdvanceCmd, journeyShowCmd)
	rootCmd.AddCommand(journeyCmd)
}
