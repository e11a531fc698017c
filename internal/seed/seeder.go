package seed

import (
	"context"
	"net/http"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/model"
)

// Resolver is the slice of the lookup coordinator used for cache warming.
type Resolver interface {
	Resolve(ctx context.Context, q model.Query) (*model.Result, error)
}

// Import fetches and parses the configured jurisdiction roster.
func Import(ctx context.Context, client *http.Client, cfg config.SeedConfig) ([]Entry, error) {
	if cfg.RosterURL == "" {
		return nil, eris.New("seed: roster URL not configured")
	}
	if client == nil {
		client = http.DefaultClient
	}
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	log := zap.L().With(zap.String("component", "seed"))
	log.Info("importing jurisdiction roster", zap.String("source", cfg.RosterURL))

	path, err := fetchRoster(ctx, client, cfg.RosterURL, tempDir)
	if err != nil {
		return nil, err
	}

	entries, err := ParseRoster(path, RosterOptions{
		SheetName: cfg.SheetName,
		SkipRows:  cfg.SkipRows,
	})
	if err != nil {
		return nil, err
	}

	log.Info("jurisdiction roster imported",
		zap.Int("jurisdictions", len(entries)),
		zap.Int("known_urls", len(Overrides(entries))),
	)
	return entries, nil
}

// Prewarm resolves every roster jurisdiction through the coordinator,
// populating Tier 1 before live traffic arrives. Failures are logged and
// counted, not fatal; the warm continues.
func Prewarm(ctx context.Context, r Resolver, entries []Entry) (warmed, failed int) {
	log := zap.L().With(zap.String("component", "seed"))

	for _, e := range entries {
		if ctx.Err() != nil {
			log.Warn("prewarm cancelled", zap.Int("warmed", warmed), zap.Int("remaining", len(entries)-warmed-failed))
			return warmed, failed
		}

		res, err := r.Resolve(ctx, model.Query{
			Type:   model.LookupJurisdiction,
			ID:     e.Locator(),
			Caller: "seed.prewarm",
		})
		if err != nil {
			failed++
			log.Warn("prewarm resolve failed", zap.String("jurisdiction", e.ID), zap.Error(err))
			continue
		}
		if res.Outcome == model.OutcomeFetchFailed || res.Outcome == model.OutcomeNoContentFound {
			failed++
			log.Warn("prewarm resolve unproductive",
				zap.String("jurisdiction", e.ID),
				zap.String("outcome", string(res.Outcome)),
			)
			continue
		}
		warmed++
	}

	log.Info("prewarm complete", zap.Int("warmed", warmed), zap.Int("failed", failed))
	return warmed, failed
}
