package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelscope/zoning-cli/internal/model"
)

type stubResolver struct {
	outcomes map[string]model.Outcome
	calls    []string
}

func (s *stubResolver) Resolve(_ context.Context, q model.Query) (*model.Result, error) {
	s.calls = append(s.calls, q.ID)
	out, ok := s.outcomes[q.ID]
	if !ok {
		out = model.OutcomeMiss
	}
	return &model.Result{Outcome: out}, nil
}

func TestPrewarm(t *testing.T) {
	r := &stubResolver{outcomes: map[string]model.Outcome{
		"Melbourne, FL":  model.OutcomeMiss,
		"Palm Bay, FL":   model.OutcomeL1Hit,
		"Titusville, FL": model.OutcomeFetchFailed,
	}}

	entries := []Entry{
		{ID: "melbourne-fl", Name: "Melbourne", State: "FL"},
		{ID: "palm-bay-fl", Name: "Palm Bay", State: "FL"},
		{ID: "titusville-fl", Name: "Titusville", State: "FL"},
	}

	warmed, failed := Prewarm(context.Background(), r, entries)
	assert.Equal(t, 2, warmed)
	assert.Equal(t, 1, failed)
	require.Len(t, r.calls, 3)
	assert.Equal(t, "Melbourne, FL", r.calls[0])
}

func TestPrewarmStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &stubResolver{}
	warmed, failed := Prewarm(ctx, r, []Entry{{ID: "melbourne-fl", Name: "Melbourne", State: "FL"}})
	assert.Zero(t, warmed)
	assert.Zero(t, failed)
	assert.Empty(t, r.calls)
}
