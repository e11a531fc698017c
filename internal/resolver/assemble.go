package resolver

import (
	"strings"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// assembleJurisdiction folds validated candidates into a Tier 1 record.
// The first candidate for a district code wins; later duplicates are
// ignored since extractors emit sections in document order.
func assembleJurisdiction(id, rawName string, content *RawContent, accepted []model.CandidateRecord) *model.JurisdictionRecord {
	rec := &model.JurisdictionRecord{
		ID:         id,
		Name:       strings.TrimSpace(rawName),
		Standards:  make(map[string]model.DimensionalStandards),
		Uses:       make(map[string]model.UseRules),
		RawCodeURL: content.URL,
		SourceURL:  content.URL,
	}

	seen := make(map[string]bool)
	for _, c := range accepted {
		code := strings.TrimSpace(c.DistrictCode)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		rec.Districts = append(rec.Districts, model.District{
			Code:     code,
			Name:     c.DistrictName,
			Category: c.Category,
		})
		if c.Standards != (model.DimensionalStandards{}) {
			rec.Standards[code] = c.Standards
		}
		if len(c.Uses.Permitted)+len(c.Uses.Conditional)+len(c.Uses.Prohibited) > 0 {
			rec.Uses[code] = c.Uses
		}
	}

	rec.QualityScore = qualityScore(rec)
	return rec
}

// qualityScore grades how complete the scraped record is: the share of
// districts carrying dimensional standards and use rules, as a percentage.
func qualityScore(rec *model.JurisdictionRecord) int {
	if len(rec.Districts) == 0 {
		return 0
	}
	var covered int
	for _, d := range rec.Districts {
		if _, ok := rec.Standards[d.Code]; ok {
			covered++
		}
		if _, ok := rec.Uses[d.Code]; ok {
			covered++
		}
	}
	return covered * 100 / (2 * len(rec.Districts))
}
