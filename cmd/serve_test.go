package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/resilience"
	"github.com/parcelscope/zoning-cli/internal/resolver"
	"github.com/parcelscope/zoning-cli/internal/store"
	"github.com/parcelscope/zoning-cli/internal/validate"
)

type staticFetcher struct{}

func (staticFetcher) Name() string { return "static" }

func (staticFetcher) Fetch(_ context.Context, _ string) (*resolver.RawContent, error) {
	return &resolver.RawContent{
		URL:      "https://library.municode.com/fl/melbourne/codes/code_of_ordinances?nodeId=APXBZO",
		Markdown: "# Zoning",
		CostUSD:  0.01,
	}, nil
}

type staticExtractor struct{}

func (staticExtractor) Extract(_ context.Context, c *resolver.RawContent) ([]model.CandidateRecord, error) {
	return []model.CandidateRecord{{
		Number:       "30-28",
		Title:        "Establishment of Zoning Districts",
		Body:         strings.Repeat("The R-1 single-family residential district. ", 10),
		DistrictCode: "R-1",
		DistrictName: "Single-Family Residential",
		Category:     model.CategoryResidential,
		Standards:    model.DimensionalStandards{FrontSetbackFt: 25},
		SourceURL:    c.URL,
	}}, nil
}

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	coord := resolver.New(st, staticFetcher{}, staticExtractor{}, validate.New(validate.Thresholds{}), resolver.Options{
		Logger: zap.NewNop(),
	})

	return &appEnv{
		Store:       st,
		Coordinator: coord,
		Breakers:    resilience.NewServiceBreakers(resilience.Config{}, zap.NewNop()),
	}
}

func withTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{}
	t.Cleanup(func() { cfg = prev })
}

func TestServeHealth(t *testing.T) {
	withTestConfig(t)
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServeResolveJurisdiction(t *testing.T) {
	withTestConfig(t)
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	body := strings.NewReader(`{"type":"jurisdiction","id":"Melbourne, FL"}`)
	resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res model.Result
	require.NoError(t, jsonDecode(resp, &res))
	assert.Equal(t, model.OutcomeMiss, res.Outcome)
	require.NotNil(t, res.Jurisdiction)
	assert.Equal(t, "melbourne-fl", res.Jurisdiction.ID)

	// Second call is served from Tier 1.
	resp2, err := http.Post(srv.URL+"/v1/resolve", "application/json",
		strings.NewReader(`{"type":"jurisdiction","id":"Melbourne, FL"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()

	var res2 model.Result
	require.NoError(t, jsonDecode(resp2, &res2))
	assert.Equal(t, model.OutcomeL1Hit, res2.Outcome)
}

func TestServeResolveRejectsBadRequest(t *testing.T) {
	withTestConfig(t)
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/resolve", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, err := http.Post(srv.URL+"/v1/resolve", "application/json", strings.NewReader(`{"type":"jurisdiction"}`))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestServeCosts(t *testing.T) {
	withTestConfig(t)
	env := newTestEnv(t)

	require.NoError(t, env.Store.AppendLookup(context.Background(), &model.LookupLogEntry{
		LookupType:     model.LookupJurisdiction,
		Tier:           model.TierMiss,
		FetchPerformed: true,
		FetchCostUSD:   0.02,
		Success:        true,
		CreatedAt:      time.Now().UTC(),
	}))

	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/costs?days=7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sum struct {
		TotalLookups int     `json:"total_lookups"`
		TotalCostUSD float64 `json:"total_cost_usd"`
	}
	require.NoError(t, jsonDecode(resp, &sum))
	assert.Equal(t, 1, sum.TotalLookups)
	assert.InDelta(t, 0.02, sum.TotalCostUSD, 1e-9)
}

func TestServeCostsRejectsBadDays(t *testing.T) {
	withTestConfig(t)
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/costs?days=zero")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeBreakers(t *testing.T) {
	withTestConfig(t)
	env := newTestEnv(t)
	env.Breakers.Get("local_http")

	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/breakers")
	require.NoError(t, err)
	defer resp.Body.Close()

	var states map[string]string
	require.NoError(t, jsonDecode(resp, &states))
	assert.Equal(t, "closed", states["local_http"])
}
