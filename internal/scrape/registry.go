package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/pkg/firecrawl"
)

// Searcher is the slice of the Firecrawl client used for URL discovery.
type Searcher interface {
	Search(ctx context.Context, req firecrawl.SearchRequest) (*firecrawl.SearchResponse, error)
}

// Registry resolves a jurisdiction locator ("Melbourne, FL") to the URL of
// its published code of ordinances. Known URLs are configured as overrides;
// otherwise the Municode URL convention is tried, with web search as a
// final fallback for jurisdictions hosted elsewhere.
type Registry struct {
	overrides map[string]string
	searcher  Searcher
	log       *zap.Logger
}

func NewRegistry(overrides map[string]string, searcher Searcher, log *zap.Logger) *Registry {
	norm := make(map[string]string, len(overrides))
	for k, v := range overrides {
		norm[model.CacheKey(k)] = v
	}
	if log == nil {
		log = zap.L()
	}
	return &Registry{overrides: norm, searcher: searcher, log: log}
}

// ResolveURL returns the ordinance document URL for the locator.
func (r *Registry) ResolveURL(ctx context.Context, locator string) (string, error) {
	key := model.CacheKey(locator)
	if u, ok := r.overrides[key]; ok {
		return u, nil
	}

	if u := municodeURL(locator); u != "" {
		return u, nil
	}

	if r.searcher != nil {
		u, err := r.searchURL(ctx, locator)
		if err != nil {
			return "", err
		}
		if u != "" {
			return u, nil
		}
	}
	return "", eris.Errorf("scrape: no code source known for %q", locator)
}

func (r *Registry) searchURL(ctx context.Context, locator string) (string, error) {
	resp, err := r.searcher.Search(ctx, firecrawl.SearchRequest{
		Query: fmt.Sprintf("%s zoning code of ordinances", locator),
		Limit: 5,
	})
	if err != nil {
		return "", eris.Wrapf(err, "scrape: search code source for %q", locator)
	}
	for _, hit := range resp.Data.Web {
		if isCodeHost(hit.URL) {
			r.log.Info("discovered code source via search",
				zap.String("locator", locator), zap.String("url", hit.URL))
			return hit.URL, nil
		}
	}
	return "", nil
}

// municodeURL builds the conventional Municode path for a "Name, ST"
// locator. Returns "" when the locator carries no state suffix.
func municodeURL(locator string) string {
	parts := strings.Split(locator, ",")
	if len(parts) != 2 {
		return ""
	}
	name := strings.TrimSpace(parts[0])
	state := strings.ToLower(strings.TrimSpace(parts[1]))
	if name == "" || len(state) != 2 {
		return ""
	}
	slug := strings.ToLower(strings.Join(strings.Fields(name), "_"))
	return fmt.Sprintf("https://library.municode.com/%s/%s/codes/code_of_ordinances", state, slug)
}

var codeHosts = []string{
	"municode.com",
	"amlegal.com",
	"codepublishing.com",
	"ecode360.com",
	"qcode.us",
}

func isCodeHost(url string) bool {
	for _, h := range codeHosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}
