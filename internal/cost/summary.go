package cost

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// Summary is a rollup over lookup log entries in a date range.
type Summary struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	TotalLookups     int       `json:"total_lookups"`
	L1Hits           int       `json:"l1_hits"`
	L2Hits           int       `json:"l2_hits"`
	Misses           int       `json:"misses"`
	Failures         int       `json:"failures"`
	HitRate          float64   `json:"hit_rate"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
	AvgCostPerLookup float64   `json:"avg_cost_per_lookup"`
}

// Summarize rolls up log entries into a Summary. It is a pure function of
// its inputs; the aggregator keeps no state of its own.
func Summarize(entries []model.LookupLogEntry, from, to time.Time) Summary {
	s := Summary{From: from, To: to}
	for _, e := range entries {
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		s.TotalLookups++
		s.TotalCostUSD += e.FetchCostUSD
		switch e.Tier {
		case model.TierL1:
			s.L1Hits++
		case model.TierL2:
			s.L2Hits++
		case model.TierMiss:
			s.Misses++
		}
		if !e.Success {
			s.Failures++
		}
	}
	if s.TotalLookups > 0 {
		s.HitRate = float64(s.L1Hits+s.L2Hits) / float64(s.TotalLookups) * 100
		s.AvgCostPerLookup = s.TotalCostUSD / float64(s.TotalLookups)
	}
	return s
}

// LookupLister is the slice of the store the aggregator reads from.
type LookupLister interface {
	ListLookups(ctx context.Context, from, to time.Time) ([]model.LookupLogEntry, error)
}

// GetSummary loads the log entries for the range and rolls them up.
func GetSummary(ctx context.Context, lister LookupLister, from, to time.Time) (Summary, error) {
	entries, err := lister.ListLookups(ctx, from, to)
	if err != nil {
		return Summary{}, eris.Wrap(err, "cost: list lookups")
	}
	return Summarize(entries, from, to), nil
}
