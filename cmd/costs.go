package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parcelscope/zoning-cli/internal/cost"
	"github.com/parcelscope/zoning-cli/internal/store"
)

var costsDays int

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Roll up lookup volume, hit rate, and fetch spend from the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -costsDays)

		sum, err := cost.GetSummary(cmd.Context(), st, from, to)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

func init() {
	costsCmd.Flags().IntVar(&costsDays, "days", 30, "lookback window in days")
	rootCmd.AddCommand(costsCmd)
}
