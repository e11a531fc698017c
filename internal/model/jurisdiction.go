package model

import "time"

// DistrictCategory groups zoning districts into broad land-use families.
type DistrictCategory string

const (
	CategoryResidential  DistrictCategory = "residential"
	CategoryCommercial   DistrictCategory = "commercial"
	CategoryIndustrial   DistrictCategory = "industrial"
	CategoryMixedUse     DistrictCategory = "mixed_use"
	CategoryAgricultural DistrictCategory = "agricultural"
	CategoryOverlay      DistrictCategory = "overlay"
	CategoryOther        DistrictCategory = "other"
)

// District is a single zoning district within a jurisdiction's code.
type District struct {
	Code     string           `json:"code"`
	Name     string           `json:"name"`
	Category DistrictCategory `json:"category"`
}

// DimensionalStandards holds the bulk/dimensional rules for one district.
// Zero values mean the code does not specify the standard.
type DimensionalStandards struct {
	MinLotAreaSqFt    float64 `json:"min_lot_area_sqft,omitempty"`
	MinLotWidthFt     float64 `json:"min_lot_width_ft,omitempty"`
	FrontSetbackFt    float64 `json:"front_setback_ft,omitempty"`
	SideSetbackFt     float64 `json:"side_setback_ft,omitempty"`
	RearSetbackFt     float64 `json:"rear_setback_ft,omitempty"`
	MaxHeightFt       float64 `json:"max_height_ft,omitempty"`
	MaxStories        int     `json:"max_stories,omitempty"`
	MaxLotCoveragePct float64 `json:"max_lot_coverage_pct,omitempty"`
	MaxDensityDUAcre  float64 `json:"max_density_du_acre,omitempty"`
	MinOpenSpacePct   float64 `json:"min_open_space_pct,omitempty"`
}

// UseRules lists the uses allowed, conditionally allowed, and prohibited in
// one district.
type UseRules struct {
	Permitted   []string `json:"permitted,omitempty"`
	Conditional []string `json:"conditional,omitempty"`
	Prohibited  []string `json:"prohibited,omitempty"`
}

// JurisdictionRecord is the Tier 1 cache record: the scraped zoning facts
// for one municipal or county authority. There is at most one live record
// per jurisdiction id; refreshes overwrite in place.
type JurisdictionRecord struct {
	ID           string                          `json:"id"`
	Name         string                          `json:"name"`
	State        string                          `json:"state"`
	Districts    []District                      `json:"districts"`
	Standards    map[string]DimensionalStandards `json:"standards"`
	Uses         map[string]UseRules             `json:"uses"`
	RawCodeURL   string                          `json:"raw_code_url"`
	SourceURL    string                          `json:"source_url"`
	QualityScore int                             `json:"quality_score"`
	LastScraped  time.Time                       `json:"last_scraped"`
	ExpiresAt    time.Time                       `json:"expires_at"`
	CacheHits    int                             `json:"cache_hits"`
	LastHitAt    *time.Time                      `json:"last_hit_at,omitempty"`
}

// District returns the district with the given code, or nil.
func (j *JurisdictionRecord) District(code string) *District {
	for i := range j.Districts {
		if j.Districts[i].Code == code {
			return &j.Districts[i]
		}
	}
	return nil
}

// Expired reports whether the record's TTL has passed at the given instant.
func (j JurisdictionRecord) Expired(now time.Time) bool {
	return !now.Before(j.ExpiresAt)
}
