package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zoning-cli",
	Short: "Multi-tier ordinance cache and extraction pipeline",
	Long:  "Resolves zoning facts for jurisdictions and parcels through a tiered cache, scraping and extracting municipal ordinance text only on a miss.",
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
