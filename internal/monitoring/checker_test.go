package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/model"
)

type stubLister struct {
	entries []model.LookupLogEntry
}

func (s *stubLister) ListLookups(_ context.Context, _, _ time.Time) ([]model.LookupLogEntry, error) {
	return s.entries, nil
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
	}))
	defer srv.Close()

	now := time.Now().UTC()
	lister := &stubLister{entries: []model.LookupLogEntry{
		{Tier: model.TierMiss, FetchPerformed: true, FetchCostUSD: 9.99, Success: false, CreatedAt: now},
	}}

	cfg := config.MonitoringConfig{
		WebhookURL:       srv.URL,
		CostThresholdUSD: 1.0,
		LookbackHours:    1,
	}
	c := NewChecker(lister, NewAlerter(cfg), cfg)
	c.check(context.Background(), zap.NewNop())

	// Cost overrun plus the failed fetch.
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CheckQuietWhenHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no alert expected")
	}))
	defer srv.Close()

	cfg := config.MonitoringConfig{WebhookURL: srv.URL, CostThresholdUSD: 100.0}
	c := NewChecker(&stubLister{}, NewAlerter(cfg), cfg)
	c.check(context.Background(), zap.NewNop())
}
