package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/cost"
)

// Checker runs periodic budget checks in the background.
type Checker struct {
	lister  cost.LookupLister
	alerter *Alerter
	cfg     config.MonitoringConfig
}

// NewChecker creates a background budget checker over the audit log.
func NewChecker(lister cost.LookupLister, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		lister:  lister,
		alerter: alerter,
		cfg:     cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting budget checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.lookbackHours()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("budget checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) lookbackHours() int {
	if c.cfg.LookbackHours <= 0 {
		return 24
	}
	return c.cfg.LookbackHours
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	to := time.Now().UTC()
	from := to.Add(-time.Duration(c.lookbackHours()) * time.Hour)

	sum, err := cost.GetSummary(ctx, c.lister, from, to)
	if err != nil {
		log.Error("monitoring: failed to summarize lookups", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(&sum)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: budget check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
}
