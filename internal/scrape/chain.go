package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/resilience"
	"github.com/parcelscope/zoning-cli/internal/resolver"
)

// Chain resolves a jurisdiction locator to its code URL and tries sources
// in priority order, returning the first success. Each source sits behind
// a circuit breaker so a persistently failing host is backed off rather
// than retried on every miss.
type Chain struct {
	registry *Registry
	sources  []Source
	breakers *resilience.ServiceBreakers
	log      *zap.Logger
}

// NewChain creates a Chain. Sources are tried in the order given.
func NewChain(registry *Registry, breakers *resilience.ServiceBreakers, log *zap.Logger, sources ...Source) *Chain {
	if log == nil {
		log = zap.L()
	}
	return &Chain{
		registry: registry,
		sources:  sources,
		breakers: breakers,
		log:      log,
	}
}

func (c *Chain) Name() string { return "scrape_chain" }

// Fetch retrieves the ordinance document for a jurisdiction locator.
func (c *Chain) Fetch(ctx context.Context, locator string) (*resolver.RawContent, error) {
	targetURL, err := c.registry.ResolveURL(ctx, locator)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, s := range c.sources {
		if !s.Supports(targetURL) {
			continue
		}
		page, err := resilience.ExecuteVal(ctx, c.breakers.Get(s.Name()), func(ctx context.Context) (*Page, error) {
			return s.Scrape(ctx, targetURL)
		})
		if err != nil {
			c.log.Debug("source failed, trying next",
				zap.String("source", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err))
			lastErr = err
			continue
		}
		return &resolver.RawContent{
			URL:      page.URL,
			Markdown: page.Markdown,
			CostUSD:  page.CostUSD,
		}, nil
	}

	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "scrape: all sources failed for %s", targetURL)
	}
	return nil, eris.Errorf("scrape: no suitable source for url: %s", targetURL)
}
