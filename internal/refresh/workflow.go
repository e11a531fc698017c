package refresh

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SweepResult summarizes one refresh sweep.
type SweepResult struct {
	Refreshed     int         `json:"refreshed"`
	Failed        int         `json:"failed"`
	Purged        PurgeReport `json:"purged"`
	Jurisdictions []string    `json:"jurisdictions"`
}

// SweepWorkflow refreshes every jurisdiction approaching expiry, then runs
// the maintenance purge. Individual jurisdiction failures are counted and
// skipped so one broken upstream cannot stall the sweep.
func SweepWorkflow(ctx workflow.Context) (*SweepResult, error) {
	log := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	})

	var a *Activities

	var ids []string
	if err := workflow.ExecuteActivity(ctx, a.ListExpiring).Get(ctx, &ids); err != nil {
		return nil, err
	}

	result := &SweepResult{Jurisdictions: ids}
	for _, id := range ids {
		var outcome string
		if err := workflow.ExecuteActivity(ctx, a.RefreshJurisdiction, id).Get(ctx, &outcome); err != nil {
			log.Warn("jurisdiction refresh failed", "jurisdiction", id, "error", err)
			result.Failed++
			continue
		}
		result.Refreshed++
	}

	if err := workflow.ExecuteActivity(ctx, a.Purge).Get(ctx, &result.Purged); err != nil {
		log.Warn("maintenance purge failed", "error", err)
	}

	log.Info("refresh sweep complete",
		"refreshed", result.Refreshed,
		"failed", result.Failed,
		"purged_entities", result.Purged.Entities,
	)
	return result, nil
}
