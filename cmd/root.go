package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/activation-core/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "activation-core",
	Short: "Hypothesis-gated editing and payment correlation engine",
	Long:  "Tracks editing hypotheses per journey page, keeps an append-only content version ledger, and correlates payment webhook events with client activation journeys.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
