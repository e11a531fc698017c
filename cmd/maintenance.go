package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop expired or stale entity rows and audit entries past retention",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entities, err := st.PurgeExpiredEntities(cmd.Context())
		if err != nil {
			return err
		}

		cutoff := time.Now().AddDate(0, 0, -cfg.Cache.AuditRetentionDays)
		entries, err := st.PurgeLookupsBefore(cmd.Context(), cutoff)
		if err != nil {
			return err
		}

		zap.L().Info("purge complete",
			zap.Int("entities", entities),
			zap.Int("log_entries", entries),
			zap.Time("log_cutoff", cutoff),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(purgeCmd)
}
