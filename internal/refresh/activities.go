// Package refresh re-scrapes jurisdictions approaching expiry and prunes
// aged-out rows, as a Temporal workflow. It is a warm-cache optimization
// only: read-time validity never depends on the worker having run.
package refresh

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/store"
)

// Resolver is the slice of the lookup coordinator the worker drives.
type Resolver interface {
	Resolve(ctx context.Context, q model.Query) (*model.Result, error)
}

// Activities holds the worker's side-effecting operations.
type Activities struct {
	Store          store.Store
	Resolver       Resolver
	Horizon        time.Duration // refresh records expiring within this window
	BatchSize      int           // max jurisdictions per sweep
	AuditRetention time.Duration // lookup log retention
}

// PurgeReport summarizes one maintenance pass.
type PurgeReport struct {
	Entities   int `json:"entities"`
	LogEntries int `json:"log_entries"`
}

// ListExpiring returns jurisdiction IDs whose Tier 1 records expire within
// the horizon.
func (a *Activities) ListExpiring(ctx context.Context) ([]string, error) {
	ids, err := a.Store.ListExpiringJurisdictions(ctx, a.Horizon, a.BatchSize)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: list expiring jurisdictions")
	}
	return ids, nil
}

// RefreshJurisdiction deletes the expiring Tier 1 record and resolves the
// jurisdiction again, returning the resolve outcome. Deleting first forces
// the coordinator down the miss path instead of serving the old record.
func (a *Activities) RefreshJurisdiction(ctx context.Context, id string) (string, error) {
	if err := a.Store.DeleteJurisdiction(ctx, id); err != nil {
		return "", eris.Wrapf(err, "refresh: evict jurisdiction %s", id)
	}

	res, err := a.Resolver.Resolve(ctx, model.Query{
		Type:   model.LookupJurisdiction,
		ID:     id,
		Caller: "refresh.worker",
	})
	if err != nil {
		return "", eris.Wrapf(err, "refresh: resolve jurisdiction %s", id)
	}

	zap.L().Info("jurisdiction refreshed",
		zap.String("jurisdiction", id),
		zap.String("outcome", string(res.Outcome)),
	)
	return string(res.Outcome), nil
}

// Purge drops expired or stale Tier 2 rows and audit entries past the
// retention window.
func (a *Activities) Purge(ctx context.Context) (*PurgeReport, error) {
	entities, err := a.Store.PurgeExpiredEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: purge entities")
	}

	cutoff := time.Now().Add(-a.AuditRetention)
	entries, err := a.Store.PurgeLookupsBefore(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: purge lookup log")
	}

	return &PurgeReport{Entities: entities, LogEntries: entries}, nil
}
