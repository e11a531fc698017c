package store

import (
	"context"
	"time"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// Store defines the persistence interface for the tiered ordinance cache.
//
// Tier 1 holds jurisdiction-level facts (long TTL), Tier 2 holds resolved
// entity/parcel facts (medium TTL), Tier 3 is the append-only lookup audit
// log. expires_at is always computed at write time; validity at read time
// is a pure function of now and the stored expires_at/is_stale fields.
type Store interface {
	// Tier 1 — jurisdiction facts.
	// GetJurisdiction returns nil when the record is absent or expired.
	// GetJurisdictionAny ignores TTL and serves the last known record for
	// callers that explicitly opt in to staleness.
	GetJurisdiction(ctx context.Context, id string) (*model.JurisdictionRecord, error)
	GetJurisdictionAny(ctx context.Context, id string) (*model.JurisdictionRecord, error)
	PutJurisdiction(ctx context.Context, rec *model.JurisdictionRecord, ttl time.Duration) error
	ListExpiringJurisdictions(ctx context.Context, within time.Duration, limit int) ([]string, error)
	DeleteJurisdiction(ctx context.Context, id string) error

	// Tier 2 — entity resolutions.
	// GetEntity returns nil when the record is absent, expired, or stale.
	GetEntity(ctx context.Context, id string) (*model.EntityRecord, error)
	GetEntityAny(ctx context.Context, id string) (*model.EntityRecord, error)
	PutEntity(ctx context.Context, rec *model.EntityRecord, ttl time.Duration) error
	MarkEntityStale(ctx context.Context, id string) error
	// MarkEntitiesStaleExcept marks every entity governed by the
	// jurisdiction whose zoning code is no longer among validCodes.
	// Used when a Tier 1 refresh changes the district roster.
	MarkEntitiesStaleExcept(ctx context.Context, jurisdictionID string, validCodes []string) (int, error)

	// Tier 3 — append-only audit log.
	AppendLookup(ctx context.Context, entry *model.LookupLogEntry) error
	ListLookups(ctx context.Context, from, to time.Time) ([]model.LookupLogEntry, error)
	PurgeLookupsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Hit accounting, off the read path.
	RecordHit(ctx context.Context, tier model.Tier, id string) error

	// District boundary shapes for parcel resolution.
	PutDistrictShapes(ctx context.Context, shapes []model.DistrictShape) (int, error)
	ListDistrictShapes(ctx context.Context, jurisdictionID string) ([]model.DistrictShape, error)

	// Maintenance.
	PurgeExpiredEntities(ctx context.Context) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}
