package main

import (
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/geo"
	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/store"
)

var (
	districtsJurisdiction string
	districtsSource       string
	districtsCodeField    string
)

var districtsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Manage zoning district boundary shapes",
}

var districtsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a municipal zoning shapefile for parcel resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		if districtsJurisdiction == "" || districtsSource == "" {
			return eris.New("--jurisdiction and --source are required")
		}

		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := geo.ImportDistricts(cmd.Context(), st, http.DefaultClient, geo.ImportOptions{
			JurisdictionID: model.CacheKey(districtsJurisdiction),
			CodeField:      districtsCodeField,
			Source:         districtsSource,
			TempDir:        cfg.Seed.TempDir,
		})
		if err != nil {
			return err
		}

		zap.L().Info("district shapes loaded",
			zap.String("jurisdiction", model.CacheKey(districtsJurisdiction)),
			zap.Int("shapes", n),
		)
		return nil
	},
}

func init() {
	districtsLoadCmd.Flags().StringVar(&districtsJurisdiction, "jurisdiction", "", "jurisdiction locator, e.g. \"Melbourne, FL\"")
	districtsLoadCmd.Flags().StringVar(&districtsSource, "source", "", "shapefile source (.shp/.zip path or http(s) URL)")
	districtsLoadCmd.Flags().StringVar(&districtsCodeField, "field", "ZONING", "shapefile attribute holding the district code")

	districtsCmd.AddCommand(districtsLoadCmd)
	rootCmd.AddCommand(districtsCmd)
}
