package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/model"
)

var (
	resolveJurisdiction string
	resolveLon          float64
	resolveLat          float64
	resolveCaller       string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve zoning facts through the tiered cache",
}

var resolveJurisdictionCmd = &cobra.Command{
	Use:   "jurisdiction <locator>",
	Short: "Resolve a jurisdiction's zoning code, e.g. \"Melbourne, FL\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		return runResolve(cmd, env, model.Query{
			Type:   model.LookupJurisdiction,
			ID:     args[0],
			Caller: resolveCaller,
		})
	},
}

var resolveEntityCmd = &cobra.Command{
	Use:   "entity <parcel-id>",
	Short: "Resolve a parcel's governing district and standards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if resolveJurisdiction == "" {
			return eris.New("--jurisdiction is required for entity lookups")
		}

		env, err := initEnv(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer env.Close()

		q := model.Query{
			Type:           model.LookupEntity,
			ID:             args[0],
			JurisdictionID: resolveJurisdiction,
			Caller:         resolveCaller,
		}
		if cmd.Flags().Changed("lon") && cmd.Flags().Changed("lat") {
			q.Lon, q.Lat = resolveLon, resolveLat
			q.HasPoint = true
		}

		return runResolve(cmd, env, q)
	},
}

func runResolve(cmd *cobra.Command, env *appEnv, q model.Query) error {
	res, err := env.Coordinator.Resolve(cmd.Context(), q)
	if err != nil {
		return err
	}

	reportRejections(cmd, env, q, res)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// reportRejections pushes validator rejections to the QA review database
// when one is configured. Review failures never fail the lookup.
func reportRejections(cmd *cobra.Command, env *appEnv, q model.Query, res *model.Result) {
	if env.Reviewer == nil || len(res.Rejections) == 0 {
		return
	}

	jurisdiction := q.JurisdictionID
	if jurisdiction == "" {
		jurisdiction = q.ID
	}

	sourceURL := ""
	if res.Jurisdiction != nil {
		sourceURL = res.Jurisdiction.SourceURL
	}

	if err := env.Reviewer.Report(cmd.Context(), model.CacheKey(jurisdiction), sourceURL, res.Rejections); err != nil {
		zap.L().Warn("failed to report rejections for review", zap.Error(err))
	}
}

func init() {
	resolveEntityCmd.Flags().StringVar(&resolveJurisdiction, "jurisdiction", "", "governing jurisdiction locator, e.g. \"Melbourne, FL\"")
	resolveEntityCmd.Flags().Float64Var(&resolveLon, "lon", 0, "parcel centroid longitude")
	resolveEntityCmd.Flags().Float64Var(&resolveLat, "lat", 0, "parcel centroid latitude")
	resolveCmd.PersistentFlags().StringVar(&resolveCaller, "caller", "cli", "caller recorded in the audit log")

	resolveCmd.AddCommand(resolveJurisdictionCmd)
	resolveCmd.AddCommand(resolveEntityCmd)
	rootCmd.AddCommand(resolveCmd)
}
