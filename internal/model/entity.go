package model

import "time"

// EntityRecord is the Tier 2 cache record: a specific parcel resolved to its
// governing jurisdiction and zoning district, with dimensional fields
// denormalized from the JurisdictionRecord at resolution time for fast reads.
//
// Denormalized fields may drift from the current JurisdictionRecord until the
// next refresh. A record whose ResolvedAt predates the governing
// jurisdiction's LastScraped is superseded and must be treated as stale
// regardless of its own ExpiresAt.
type EntityRecord struct {
	ID             string               `json:"id"`
	JurisdictionID string               `json:"jurisdiction_id"`
	ZoningCode     string               `json:"zoning_code"`
	Standards      DimensionalStandards `json:"standards"`
	Uses           UseRules             `json:"uses"`
	ProvenanceURLs []string             `json:"provenance_urls,omitempty"`
	CacheHits      int                  `json:"cache_hits"`
	LastHitAt      *time.Time           `json:"last_hit_at,omitempty"`
	IsStale        bool                 `json:"is_stale"`
	ResolvedAt     time.Time            `json:"resolved_at"`
	ExpiresAt      time.Time            `json:"expires_at"`
}

// Valid reports whether the record may satisfy a validated cache hit at the
// given instant. Stale records only serve explicit last-known fallback reads.
func (e *EntityRecord) Valid(now time.Time) bool {
	return !e.IsStale && now.Before(e.ExpiresAt)
}

// SupersededBy reports whether a Tier 1 refresh at jurisdictionLastScraped
// postdates this record's resolution.
func (e *EntityRecord) SupersededBy(jurisdictionLastScraped time.Time) bool {
	return e.ResolvedAt.Before(jurisdictionLastScraped)
}
