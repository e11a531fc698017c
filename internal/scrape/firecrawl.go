package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/parcelscope/zoning-cli/internal/cost"
	"github.com/parcelscope/zoning-cli/pkg/firecrawl"
)

// FirecrawlSource wraps a Firecrawl client as a Source. It handles the
// JS-rendered code hosts the local fetch cannot, at a per-scrape cost.
type FirecrawlSource struct {
	client firecrawl.Client
	calc   *cost.Calculator
}

// NewFirecrawlSource creates a FirecrawlSource. calc prices each scrape
// credit; a nil calc records zero cost.
func NewFirecrawlSource(client firecrawl.Client, calc *cost.Calculator) *FirecrawlSource {
	return &FirecrawlSource{client: client, calc: calc}
}

func (f *FirecrawlSource) Name() string           { return "firecrawl" }
func (f *FirecrawlSource) Supports(_ string) bool { return true }

func (f *FirecrawlSource) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:             targetURL,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, eris.New("firecrawl: scrape not successful")
	}

	var scrapeCost float64
	if f.calc != nil {
		scrapeCost = f.calc.FirecrawlScrape(1)
	}
	return &Page{
		URL:        resp.Data.URL,
		Title:      resp.Data.Title,
		Markdown:   resp.Data.Markdown,
		StatusCode: resp.Data.StatusCode,
		CostUSD:    scrapeCost,
	}, nil
}
