package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/parcelscope/zoning-cli/internal/refresh"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal refresh worker",
	Long:  "Hosts the sweep workflow that re-scrapes jurisdictions approaching expiry and prunes aged-out rows on a schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		retention := time.Duration(cfg.Cache.AuditRetentionDays) * 24 * time.Hour
		acts := refresh.NewActivities(env.Store, env.Coordinator, cfg.Refresh, retention)

		return refresh.Run(cmd.Context(), cfg.Refresh, acts)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
