package main

import (
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/seed"
)

var (
	seedRosterURL string
	seedPrewarm   bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import the jurisdiction roster and optionally pre-warm the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		seedCfg := cfg.Seed
		if seedRosterURL != "" {
			seedCfg.RosterURL = seedRosterURL
		}

		entries, err := seed.Import(cmd.Context(), http.DefaultClient, seedCfg)
		if err != nil {
			return err
		}

		if !seedPrewarm {
			zap.L().Info("roster imported; skipping prewarm",
				zap.Int("jurisdictions", len(entries)),
			)
			return nil
		}

		env, err := initEnv(cmd.Context(), seed.Overrides(entries))
		if err != nil {
			return err
		}
		defer env.Close()

		warmed, failed := seed.Prewarm(cmd.Context(), env.Coordinator, entries)
		zap.L().Info("seed complete",
			zap.Int("jurisdictions", len(entries)),
			zap.Int("warmed", warmed),
			zap.Int("failed", failed),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedRosterURL, "roster", "", "roster source (xlsx path, http(s) or ftp URL; default from config)")
	seedCmd.Flags().BoolVar(&seedPrewarm, "prewarm", false, "resolve every roster jurisdiction after import")
	rootCmd.AddCommand(seedCmd)
}
