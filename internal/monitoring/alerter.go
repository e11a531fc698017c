// Package monitoring evaluates lookup cost summaries against budget
// thresholds and raises webhook alerts when spend runs hot or the cache
// stops earning its keep.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/cost"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCostOverrun   AlertType = "cost_overrun"
	AlertLowHitRate    AlertType = "low_hit_rate"
	AlertFetchFailures AlertType = "fetch_failures"
)

// minLookupsForHitRate avoids hit-rate alerts on a cold cache.
const minLookupsForHitRate = 20

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a cost.Summary against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the summary against thresholds and returns any alerts.
func (a *Alerter) Evaluate(sum *cost.Summary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	window := sum.To.Sub(sum.From)

	if a.cfg.CostThresholdUSD > 0 && sum.TotalCostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Fetch spend $%.2f exceeds threshold $%.2f over %s (%d misses)",
				sum.TotalCostUSD, a.cfg.CostThresholdUSD, window, sum.Misses,
			),
			Details: map[string]any{
				"cost_usd":      sum.TotalCostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"misses":        sum.Misses,
				"lookups":       sum.TotalLookups,
			},
			Timestamp: now,
		})
	}

	if a.cfg.HitRateFloorPct > 0 && sum.TotalLookups >= minLookupsForHitRate && sum.HitRate < a.cfg.HitRateFloorPct {
		alerts = append(alerts, Alert{
			Type:     AlertLowHitRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Cache hit rate %.1f%% below floor %.1f%% (%d lookups over %s)",
				sum.HitRate, a.cfg.HitRateFloorPct, sum.TotalLookups, window,
			),
			Details: map[string]any{
				"hit_rate":  sum.HitRate,
				"floor_pct": a.cfg.HitRateFloorPct,
				"l1_hits":   sum.L1Hits,
				"l2_hits":   sum.L2Hits,
				"lookups":   sum.TotalLookups,
			},
			Timestamp: now,
		})
	}

	if sum.Failures > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertFetchFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d failed fetch(es) over %s",
				sum.Failures, window,
			),
			Details: map[string]any{
				"failures": sum.Failures,
				"lookups":  sum.TotalLookups,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
