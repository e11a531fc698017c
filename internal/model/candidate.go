package model

// CandidateRecord is a structured record proposed by an extractor. Candidates
// are transient: they must pass the content validator before any part of
// them reaches the cache tiers.
type CandidateRecord struct {
	// Number is the record's own identifying number within the code, e.g.
	// an ordinance number ("2022-18") or section number ("30-28").
	Number string `json:"number"`

	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Body    string `json:"body,omitempty"`

	// Zoning facts parsed from the section, when present.
	DistrictCode string               `json:"district_code,omitempty"`
	DistrictName string               `json:"district_name,omitempty"`
	Category     DistrictCategory     `json:"category,omitempty"`
	Standards    DimensionalStandards `json:"standards,omitempty"`
	Uses         UseRules             `json:"uses,omitempty"`

	// SourceURL must reference the specific sub-resource the candidate was
	// extracted from (a section anchor or node id), never the bare root
	// document.
	SourceURL  string `json:"source_url"`
	SectionRef string `json:"section_ref,omitempty"`
}
