package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/cost"
	"github.com/parcelscope/zoning-cli/internal/extract"
	"github.com/parcelscope/zoning-cli/internal/geo"
	"github.com/parcelscope/zoning-cli/internal/qa"
	"github.com/parcelscope/zoning-cli/internal/resilience"
	"github.com/parcelscope/zoning-cli/internal/resolver"
	"github.com/parcelscope/zoning-cli/internal/scrape"
	"github.com/parcelscope/zoning-cli/internal/store"
	"github.com/parcelscope/zoning-cli/internal/validate"
	anthropicpkg "github.com/parcelscope/zoning-cli/pkg/anthropic"
	"github.com/parcelscope/zoning-cli/pkg/firecrawl"
	notionpkg "github.com/parcelscope/zoning-cli/pkg/notion"
)

// appEnv holds the initialized store, scrape chain, and coordinator shared
// by the resolve/seed/serve/worker commands.
type appEnv struct {
	Store       store.Store
	Coordinator *resolver.Coordinator
	Breakers    *resilience.ServiceBreakers
	Calc        *cost.Calculator
	Locator     *geo.Locator
	Reviewer    *qa.Reviewer // nil unless Notion is configured
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the full lookup environment. Overrides map jurisdiction
// locators to known ordinance URLs, on top of any roster the deployment
// seeded. Callers should defer env.Close().
func initEnv(ctx context.Context, overrides map[string]string) (*appEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	rates, err := cost.LoadRates(cfg.Monitoring.RatesPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	calc := cost.NewCalculator(rates)

	var fcClient firecrawl.Client
	if cfg.Firecrawl.Key != "" {
		fcClient = firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	} else {
		zap.L().Debug("ZONING_FIRECRAWL_KEY not set, firecrawl fallback disabled")
	}

	var searcher scrape.Searcher
	if fcClient != nil {
		searcher = fcClient
	}
	registry := scrape.NewRegistry(overrides, searcher, zap.L())

	breakers := resilience.NewServiceBreakers(resilience.Config{}, zap.L())
	sources := []scrape.Source{scrape.NewLocalSource(cfg.Fetch.RatePerSecond, cfg.Fetch.RateBurst, cfg.Fetch.UserAgent)}
	if fcClient != nil {
		sources = append(sources, scrape.NewFirecrawlSource(fcClient, calc))
	}
	chain := scrape.NewChain(registry, breakers, zap.L(), sources...)

	if cfg.Anthropic.Key == "" {
		_ = st.Close()
		return nil, eris.New("anthropic API key is required (ZONING_ANTHROPIC_KEY)")
	}
	extractor := extract.NewClaudeExtractor(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		calc,
		cfg.Anthropic.Model,
		zap.L(),
	)

	locator := geo.NewLocator(st)

	coord := resolver.New(st, chain, extractor, validate.New(validate.Thresholds{}), resolver.Options{
		JurisdictionTTL: cfg.Cache.JurisdictionTTL(),
		EntityTTL:       cfg.Cache.EntityTTL(),
		FetchTimeout:    cfg.Fetch.Timeout(),
		Locator:         locator,
		Logger:          zap.L(),
	})

	env := &appEnv{
		Store:       st,
		Coordinator: coord,
		Breakers:    breakers,
		Calc:        calc,
		Locator:     locator,
	}

	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		env.Reviewer = qa.NewReviewer(notionpkg.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)
	}

	return env, nil
}
