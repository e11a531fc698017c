// Package validate gates extracted candidate records before they are
// admitted to the cache. Upstream municipal code hosts frequently serve
// stub pages (a heading and nothing else), and a stub written to Tier 1
// poisons every lookup until the TTL rolls over, so rejection here is a
// hard gate with no trusted-source bypass.
package validate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// Thresholds configure the minimum content lengths, in characters.
// Zero values fall back to the defaults.
type Thresholds struct {
	MinTitleLen   int
	MinSummaryLen int
	MinBodyLen    int
}

const (
	defaultMinTitleLen   = 10
	defaultMinSummaryLen = 50
	defaultMinBodyLen    = 200
)

// Validator applies the content-authenticity rules to candidate records.
type Validator struct {
	minTitleLen   int
	minSummaryLen int
	minBodyLen    int
}

func New(t Thresholds) *Validator {
	v := &Validator{
		minTitleLen:   t.MinTitleLen,
		minSummaryLen: t.MinSummaryLen,
		minBodyLen:    t.MinBodyLen,
	}
	if v.minTitleLen == 0 {
		v.minTitleLen = defaultMinTitleLen
	}
	if v.minSummaryLen == 0 {
		v.minSummaryLen = defaultMinSummaryLen
	}
	if v.minBodyLen == 0 {
		v.minBodyLen = defaultMinBodyLen
	}
	return v
}

// Validate returns nil when the candidate passes every rule, or a
// human-readable rejection reason. All rules must pass; thresholds are
// strict (length must exceed, not meet, the minimum).
func (v *Validator) Validate(c *model.CandidateRecord) error {
	title := strings.TrimSpace(c.Title)

	if title != "" && strings.EqualFold(title, strings.TrimSpace(c.Number)) {
		return fmt.Errorf("title %q equals record number, likely stub extraction", title)
	}
	if len(title) <= v.minTitleLen {
		return fmt.Errorf("title %q is %d chars, need more than %d", title, len(title), v.minTitleLen)
	}
	if len(strings.TrimSpace(c.Summary)) <= v.minSummaryLen && len(strings.TrimSpace(c.Body)) <= v.minBodyLen {
		return fmt.Errorf("neither summary (%d chars) nor body (%d chars) exceeds minimum substantive length",
			len(strings.TrimSpace(c.Summary)), len(strings.TrimSpace(c.Body)))
	}
	if !sectionQualified(c) {
		return fmt.Errorf("source url %q references the document root, not a specific section", c.SourceURL)
	}
	return nil
}

// Filter validates each candidate and partitions the batch into accepted
// records and rejection reasons, preserving input order within each.
func (v *Validator) Filter(candidates []model.CandidateRecord) ([]model.CandidateRecord, []string) {
	var accepted []model.CandidateRecord
	var rejections []string
	for i := range candidates {
		if err := v.Validate(&candidates[i]); err != nil {
			rejections = append(rejections, err.Error())
			continue
		}
		accepted = append(accepted, candidates[i])
	}
	return accepted, rejections
}

// sectionQualified reports whether the candidate's source locator points at
// a specific sub-resource. Municode and similar hosts address sections via
// query parameters (nodeId) or fragments; a URL with neither is the
// document root regardless of path depth.
func sectionQualified(c *model.CandidateRecord) bool {
	if strings.TrimSpace(c.SectionRef) != "" {
		return true
	}
	u, err := url.Parse(c.SourceURL)
	if err != nil || c.SourceURL == "" {
		return false
	}
	return u.Fragment != "" || u.RawQuery != ""
}
