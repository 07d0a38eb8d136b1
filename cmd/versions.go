package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/activation-core/internal/hypothesis"
	"github.com/sells-group/activation-core/internal/ledger"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect and append page content versions",
}

var versionsSaveCmd = &cobra.Command{
	Use:   "save <page-id>",
	Short: "Append a content version bound to the page's active hypothesis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pageID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		title, _ := cmd.Flags().GetString("title")
		bodyFile, _ := cmd.Flags().GetString("body-file")
		body, err := os.ReadFile(bodyFile)
		if err != nil {
			return eris.Wrapf(err, "read body file %s", bodyFile)
		}

		active, err := hypothesis.New(st).Active(ctx, pageID)
		if err != nil {
			return eris.Wrap(err, "versions save")
		}
		if active == nil {
			return eris.New("page has no active hypothesis; create one before saving")
		}

		v, err := ledger.New(st).Append(ctx, pageID, title, string(body), active.ID)
		if err != nil {
			return eris.Wrap(err, "versions save")
		}

		fmt.Printf("Saved version %s under hypothesis %s\n", v.ID, v.HypothesisID)
		return nil
	},
}

var versionsListCmd = &cobra.Command{
	Use:   "list <page-id>",
	Short: "List a page's version history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSAVED\tHYPOTHESIS\tTITLE")
		count := 0
		for v, err := range ledger.New(st).History(ctx, args[0]) {
			if err != nil {
				return eris.Wrap(err, "versions list")
			}
			count++
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				v.ID, v.SavedAt.Format(time.RFC3339), v.HypothesisID, truncate(v.Title, 50))
		}
		if count == 0 {
			fmt.Fprintln(os.Stderr, "No versions found.")
			return nil
		}
		return w.Flush()
	},
}

var versionsLatestCmd = &cobra.Command{
	Use:   "latest <page-id>",
	Short: "Print the latest saved content for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		v, err := ledger.New(st).Latest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "versions latest")
		}
		if v == nil {
			fmt.Fprintln(os.Stderr, "No versions found.")
			return nil
		}

		fmt.Printf("# %s\n\n%s\n", v.Title, v.Body)
		return nil
	},
}

func init() {
	versionsSaveCmd.Flags().String("title", "", "page title")
	versionsSaveCmd.Flags().String("body-file", "", "file containing the page body")
	_ = versionsSaveCmd.MarkFlagRequired("body-file")

	versionsCmd.AddCommand(versionsSaveCmd, versionsListCmd, versionsLatestCmd)
	rootCmd.AddCommand(versionsCmd)
}
