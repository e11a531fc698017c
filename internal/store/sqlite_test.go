package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelscope/zoning-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testJurisdiction(id string) *model.JurisdictionRecord {
	return &model.JurisdictionRecord{
		ID:    id,
		Name:  "Melbourne",
		State: "FL",
		Districts: []model.District{
			{Code: "R-1", Name: "Single-Family Residential", Category: model.CategoryResidential},
			{Code: "C-1", Name: "Neighborhood Commercial", Category: model.CategoryCommercial},
		},
		Standards: map[string]model.DimensionalStandards{
			"R-1": {FrontSetbackFt: 25, SideSetbackFt: 7.5, RearSetbackFt: 20, MaxHeightFt: 35},
		},
		Uses: map[string]model.UseRules{
			"R-1": {Permitted: []string{"single-family dwelling"}, Conditional: []string{"church"}},
		},
		SourceURL:    "https://library.municode.com/fl/melbourne/codes/code_of_ordinances",
		QualityScore: 87,
	}
}

func TestPutGetJurisdiction(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testJurisdiction("melbourne-fl")
	require.NoError(t, s.PutJurisdiction(ctx, rec, 30*24*time.Hour))

	got, err := s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Melbourne", got.Name)
	assert.Len(t, got.Districts, 2)
	assert.Equal(t, 25.0, got.Standards["R-1"].FrontSetbackFt)
	assert.Equal(t, []string{"single-family dwelling"}, got.Uses["R-1"].Permitted)
	assert.Equal(t, 0, got.CacheHits)
	assert.Nil(t, got.LastHitAt)
}

func TestGetJurisdictionMissing(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)

	got, err := s.GetJurisdiction(context.Background(), "nowhere-xx")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutJurisdictionIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	// Writing the same record twice must leave exactly one row with the
	// same content as a single write.
	rec := testJurisdiction("melbourne-fl")
	require.NoError(t, s.PutJurisdiction(ctx, rec, 30*24*time.Hour))
	first, err := s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)

	require.NoError(t, s.PutJurisdiction(ctx, testJurisdiction("melbourne-fl"), 30*24*time.Hour))
	second, err := s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)

	assert.Equal(t, first.Districts, second.Districts)
	assert.Equal(t, first.Standards, second.Standards)
	assert.Equal(t, first.Uses, second.Uses)
	assert.Equal(t, first.QualityScore, second.QualityScore)
	assert.Equal(t, 0, second.CacheHits)

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM jurisdictions`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestJurisdictionExpiryIsReadTime(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }

	rec := testJurisdiction("melbourne-fl")
	require.NoError(t, s.PutJurisdiction(ctx, rec, 30*24*time.Hour))
	assert.Equal(t, base.Add(30*24*time.Hour), rec.ExpiresAt)

	// Same stored row, different clock: validity is purely a function of now.
	s.nowFunc = func() time.Time { return base.Add(29 * 24 * time.Hour) }
	got, err := s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)
	assert.NotNil(t, got)

	s.nowFunc = func() time.Time { return base.Add(31 * 24 * time.Hour) }
	got, err = s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Repeated reads at the same instant agree.
	for i := 0; i < 3; i++ {
		got, err = s.GetJurisdiction(ctx, "melbourne-fl")
		require.NoError(t, err)
		assert.Nil(t, got)
	}

	// The expired record is still reachable for explicit fallback reads.
	any, err := s.GetJurisdictionAny(ctx, "melbourne-fl")
	require.NoError(t, err)
	require.NotNil(t, any)
	assert.Equal(t, "Melbourne", any.Name)
}

func TestListExpiringJurisdictions(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }
	require.NoError(t, s.PutJurisdiction(ctx, testJurisdiction("soon-fl"), 24*time.Hour))

	s.nowFunc = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, s.PutJurisdiction(ctx, testJurisdiction("later-fl"), 30*24*time.Hour))

	s.nowFunc = func() time.Time { return base.Add(2 * time.Hour) }
	ids, err := s.ListExpiringJurisdictions(ctx, 48*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"soon-fl"}, ids)
}

func testEntity(id, jurisdictionID string) *model.EntityRecord {
	return &model.EntityRecord{
		ID:             id,
		JurisdictionID: jurisdictionID,
		ZoningCode:     "R-1",
		Standards:      model.DimensionalStandards{FrontSetbackFt: 25, MaxHeightFt: 35},
		Uses:           model.UseRules{Permitted: []string{"single-family dwelling"}},
		ProvenanceURLs: []string{"https://library.municode.com/fl/melbourne/codes/code_of_ordinances#ARTIIIZODI"},
	}
}

func TestPutGetEntity(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	rec := testEntity("parcel-001", "melbourne-fl")
	require.NoError(t, s.PutEntity(ctx, rec, 90*24*time.Hour))

	got, err := s.GetEntity(ctx, "parcel-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R-1", got.ZoningCode)
	assert.Equal(t, "melbourne-fl", got.JurisdictionID)
	assert.False(t, got.IsStale)
	assert.Len(t, got.ProvenanceURLs, 1)
}

func TestMarkEntityStale(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.PutEntity(ctx, testEntity("parcel-001", "melbourne-fl"), 90*24*time.Hour))
	require.NoError(t, s.MarkEntityStale(ctx, "parcel-001"))

	got, err := s.GetEntity(ctx, "parcel-001")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Stale data stays readable for last-known-value fallback.
	any, err := s.GetEntityAny(ctx, "parcel-001")
	require.NoError(t, err)
	require.NotNil(t, any)
	assert.True(t, any.IsStale)

	// Re-resolving clears the stale flag.
	require.NoError(t, s.PutEntity(ctx, testEntity("parcel-001", "melbourne-fl"), 90*24*time.Hour))
	got, err = s.GetEntity(ctx, "parcel-001")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMarkEntitiesStaleExcept(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	a := testEntity("parcel-a", "melbourne-fl")
	b := testEntity("parcel-b", "melbourne-fl")
	b.ZoningCode = "C-1"
	c := testEntity("parcel-c", "melbourne-fl")
	c.ZoningCode = "M-1"
	other := testEntity("parcel-d", "palm-bay-fl")
	other.ZoningCode = "M-1"
	for _, rec := range []*model.EntityRecord{a, b, c, other} {
		require.NoError(t, s.PutEntity(ctx, rec, 90*24*time.Hour))
	}

	// A refresh dropped M-1 from the roster; only parcel-c is invalidated.
	n, err := s.MarkEntitiesStaleExcept(ctx, "melbourne-fl", []string{"R-1", "C-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, wantValid := range map[string]bool{
		"parcel-a": true, "parcel-b": true, "parcel-c": false, "parcel-d": true,
	} {
		got, err := s.GetEntity(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, wantValid, got != nil, "entity %s", id)
	}

	// Already-stale rows are not counted twice.
	n, err = s.MarkEntitiesStaleExcept(ctx, "melbourne-fl", []string{"R-1", "C-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLookupLogAppendListPurge(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := &model.LookupLogEntry{
			LookupType:   model.LookupJurisdiction,
			Query:        "melbourne-fl",
			Tier:         model.TierL1,
			Success:      true,
			Caller:       "test",
			CreatedAt:    base.Add(time.Duration(i) * 24 * time.Hour),
			FetchCostUSD: 0.01,
		}
		require.NoError(t, s.AppendLookup(ctx, entry))
		assert.NotEmpty(t, entry.ID)
	}

	entries, err := s.ListLookups(ctx, base, base.Add(3*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.TierL1, entries[0].Tier)
	assert.True(t, entries[0].CreatedAt.Before(entries[2].CreatedAt))

	n, err := s.PurgeLookupsBefore(ctx, base.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err = s.ListLookups(ctx, base, base.Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRecordHit(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.PutJurisdiction(ctx, testJurisdiction("melbourne-fl"), 30*24*time.Hour))
	require.NoError(t, s.RecordHit(ctx, model.TierL1, "melbourne-fl"))
	require.NoError(t, s.RecordHit(ctx, model.TierL1, "melbourne-fl"))

	got, err := s.GetJurisdiction(ctx, "melbourne-fl")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CacheHits)
	assert.NotNil(t, got.LastHitAt)

	err = s.RecordHit(ctx, model.TierMiss, "melbourne-fl")
	assert.Error(t, err)
}

func TestDistrictShapesRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	shapes := []model.DistrictShape{
		{JurisdictionID: "melbourne-fl", DistrictCode: "R-1", WKB: []byte{0x01, 0x06}},
		{JurisdictionID: "melbourne-fl", DistrictCode: "C-1", WKB: []byte{0x01, 0x06, 0x02}},
	}
	n, err := s.PutDistrictShapes(ctx, shapes)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-import replaces in place.
	shapes[0].WKB = []byte{0x01, 0x06, 0xff}
	n, err = s.PutDistrictShapes(ctx, shapes)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.ListDistrictShapes(ctx, "melbourne-fl")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestPurgeExpiredEntities(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return base }

	require.NoError(t, s.PutEntity(ctx, testEntity("parcel-live", "melbourne-fl"), 90*24*time.Hour))
	require.NoError(t, s.PutEntity(ctx, testEntity("parcel-old", "melbourne-fl"), 24*time.Hour))
	require.NoError(t, s.PutEntity(ctx, testEntity("parcel-stale", "melbourne-fl"), 90*24*time.Hour))
	require.NoError(t, s.MarkEntityStale(ctx, "parcel-stale"))

	s.nowFunc = func() time.Time { return base.Add(48 * time.Hour) }
	n, err := s.PurgeExpiredEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	live, err := s.GetEntityAny(ctx, "parcel-live")
	require.NoError(t, err)
	assert.NotNil(t, live)
	gone, err := s.GetEntityAny(ctx, "parcel-old")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
