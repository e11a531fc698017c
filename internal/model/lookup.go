package model

import "time"

// LookupType identifies the scope of a resolve query.
type LookupType string

const (
	LookupJurisdiction LookupType = "jurisdiction"
	LookupEntity       LookupType = "entity"
)

// Tier identifies which cache tier satisfied a lookup.
type Tier string

const (
	TierL1   Tier = "L1"
	TierL2   Tier = "L2"
	TierMiss Tier = "MISS"
)

// Outcome is the caller-visible result classification of a resolve call.
type Outcome string

const (
	OutcomeL1Hit          Outcome = "L1_HIT"
	OutcomeL2Hit          Outcome = "L2_HIT"
	OutcomeMiss           Outcome = "MISS"
	OutcomeFetchFailed    Outcome = "FETCH_FAILED"
	OutcomeNoContentFound Outcome = "NO_CONTENT_FOUND"
)

// Query is the input to the lookup coordinator.
type Query struct {
	Type LookupType `json:"type"`
	ID   string     `json:"id"`

	// JurisdictionID names the governing jurisdiction for entity-scoped
	// queries. Required when Type is LookupEntity.
	JurisdictionID string `json:"jurisdiction_id,omitempty"`

	// Lon/Lat is the parcel centroid. When set on an entity-scoped query,
	// the coordinator resolves the governing district by point-in-polygon
	// against loaded district boundaries.
	Lon      float64 `json:"lon,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	HasPoint bool    `json:"has_point,omitempty"`

	Caller string `json:"caller,omitempty"`
}

// Result is the output of a resolve call. At most one of Jurisdiction and
// Entity is set, depending on the query scope; both are nil for FETCH_FAILED
// and NO_CONTENT_FOUND outcomes.
type Result struct {
	Outcome        Outcome             `json:"outcome"`
	Jurisdiction   *JurisdictionRecord `json:"jurisdiction,omitempty"`
	Entity         *EntityRecord       `json:"entity,omitempty"`
	FetchPerformed bool                `json:"fetch_performed"`
	Rejections     []string            `json:"rejections,omitempty"`
}

// LookupLogEntry is the Tier 3 append-only audit record. Entries are
// immutable once written and purged in bulk by age.
type LookupLogEntry struct {
	ID              string     `json:"id"`
	LookupType      LookupType `json:"lookup_type"`
	Query           string     `json:"query"`
	Tier            Tier       `json:"tier"`
	FetchPerformed  bool       `json:"fetch_performed"`
	FetchCostUSD    float64    `json:"fetch_cost_usd"`
	FetchDurationMs int64      `json:"fetch_duration_ms"`
	Success         bool       `json:"success"`
	Error           string     `json:"error,omitempty"`
	Caller          string     `json:"caller,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
