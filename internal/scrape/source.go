// Package scrape fetches municipal code documents. Sources are tried in
// priority order: a plain HTTP fetch first (free), then Firecrawl for
// hosts that block direct requests.
package scrape

import "context"

// Page holds one fetched ordinance document.
type Page struct {
	URL        string
	Title      string
	Markdown   string
	StatusCode int
	CostUSD    float64
}

// Source fetches a single URL and returns its content.
type Source interface {
	Name() string
	Supports(url string) bool
	Scrape(ctx context.Context, url string) (*Page, error)
}
