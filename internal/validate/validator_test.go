package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelscope/zoning-cli/internal/model"
)

const sectionURL = "https://library.municode.com/fl/melbourne/codes/code_of_ordinances?nodeId=PTIICOOR_APXBZO"

func goodCandidate() model.CandidateRecord {
	return model.CandidateRecord{
		Number:       "2022-18",
		Title:        "Zoning Use Table", // 16 chars
		Summary:      strings.Repeat("s", 60),
		Body:         strings.Repeat("b", 300),
		DistrictCode: "R-1",
		SourceURL:    sectionURL,
	}
}

func TestValidateAccepts(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})
	c := goodCandidate()
	require.NoError(t, v.Validate(&c))
}

func TestValidateTitleEqualsNumber(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})

	tests := []struct {
		name   string
		title  string
		number string
		wantOK bool
	}{
		{"exact match rejected", "2022-18", "2022-18", false},
		{"case-insensitive match rejected", "ORD-2022-18", "ord-2022-18", false},
		{"whitespace-padded match rejected", "  2022-18  ", "2022-18", false},
		{"distinct title accepted", "Establishment of Zoning Districts", "2022-18", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := goodCandidate()
			c.Title = tt.title
			c.Number = tt.number
			err := v.Validate(&c)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "equals record number")
			}
		})
	}
}

func TestValidateTitleLength(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})

	tests := []struct {
		name   string
		title  string
		wantOK bool
	}{
		{"empty rejected", "", false},
		{"exactly at threshold rejected", strings.Repeat("t", 10), false},
		{"one past threshold accepted", strings.Repeat("t", 11), true},
		{"fifteen chars accepted", "Zoning Appendix", true},
		{"padding does not count", "   short   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := goodCandidate()
			c.Title = tt.title
			err := v.Validate(&c)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidateContentLength(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})

	tests := []struct {
		name       string
		summaryLen int
		bodyLen    int
		wantOK     bool
	}{
		{"both at threshold rejected", 50, 200, false},
		{"summary past threshold accepted", 51, 0, true},
		{"body past threshold accepted", 0, 201, true},
		{"both past threshold accepted", 60, 2847, true},
		{"both empty rejected", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := goodCandidate()
			c.Summary = strings.Repeat("s", tt.summaryLen)
			c.Body = strings.Repeat("b", tt.bodyLen)
			err := v.Validate(&c)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "substantive length")
			}
		})
	}
}

func TestValidateSourceLocator(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})

	tests := []struct {
		name       string
		sourceURL  string
		sectionRef string
		wantOK     bool
	}{
		{"node query accepted", sectionURL, "", true},
		{"fragment accepted", "https://example.gov/code#sec-62-1541", "", true},
		{"bare root rejected", "https://library.municode.com/fl/melbourne/codes/code_of_ordinances", "", false},
		{"deep path without section rejected", "https://example.gov/a/b/c/d/e", "", false},
		{"empty url rejected", "", "", false},
		{"section ref compensates for root url", "https://example.gov/code", "Sec. 62-1541", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := goodCandidate()
			c.SourceURL = tt.sourceURL
			c.SectionRef = tt.sectionRef
			err := v.Validate(&c)
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "document root")
			}
		})
	}
}

func TestFilterPartitions(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{})

	good := goodCandidate()
	good.Title = "Establishment of Zoning Districts"
	stub := goodCandidate()
	stub.Title = "2022-18"

	accepted, rejections := v.Filter([]model.CandidateRecord{good, stub})
	require.Len(t, accepted, 1)
	assert.Equal(t, "Establishment of Zoning Districts", accepted[0].Title)
	require.Len(t, rejections, 1)
	assert.Contains(t, rejections[0], "equals record number")
}

func TestCustomThresholds(t *testing.T) {
	t.Parallel()

	v := New(Thresholds{MinTitleLen: 3, MinSummaryLen: 5, MinBodyLen: 10})
	c := goodCandidate()
	c.Title = "Uses"
	c.Summary = "sixsix"
	c.Body = ""
	assert.NoError(t, v.Validate(&c))
}
