package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/config"
	"github.com/parcelscope/zoning-cli/internal/store"
)

const defaultTaskQueue = "zoning-refresh"

// NewActivities wires the worker activities from configuration.
func NewActivities(st store.Store, r Resolver, cfg config.RefreshConfig, retention time.Duration) *Activities {
	horizon := time.Duration(cfg.HorizonDays) * 24 * time.Hour
	if horizon <= 0 {
		horizon = 3 * 24 * time.Hour
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Activities{
		Store:          st,
		Resolver:       r,
		Horizon:        horizon,
		BatchSize:      batch,
		AuditRetention: retention,
	}
}

// Run starts a Temporal worker hosting the sweep workflow and its
// activities, and schedules the recurring sweep. Blocks until the worker
// is interrupted.
func Run(ctx context.Context, cfg config.RefreshConfig, acts *Activities) error {
	taskQueue := cfg.TaskQueue
	if taskQueue == "" {
		taskQueue = defaultTaskQueue
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return eris.Wrap(err, "refresh: dial temporal")
	}
	defer c.Close()

	if err := schedule(ctx, c, cfg, taskQueue); err != nil {
		return err
	}

	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(SweepWorkflow)
	w.RegisterActivity(acts)

	zap.L().Info("refresh worker starting",
		zap.String("task_queue", taskQueue),
		zap.Int("interval_hours", cfg.IntervalHours),
	)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return eris.Wrap(err, "refresh: run worker")
	}
	return nil
}

// schedule starts the recurring sweep as a cron workflow. An
// already-running cron from a previous worker is left in place.
func schedule(ctx context.Context, c client.Client, cfg config.RefreshConfig, taskQueue string) error {
	interval := cfg.IntervalHours
	if interval <= 0 {
		interval = 24
	}

	_, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    "zoning-refresh-sweep",
		TaskQueue:             taskQueue,
		CronSchedule:          fmt.Sprintf("@every %dh", interval),
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
	}, SweepWorkflow)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			zap.L().Debug("refresh sweep cron already running")
			return nil
		}
		return eris.Wrap(err, "refresh: schedule sweep")
	}
	return nil
}
