package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelscope/zoning-cli/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s := &PostgresStore{
		pool:    mock,
		nowFunc: func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
	return s, mock
}

func TestPostgresGetJurisdictionMissing(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+jurisdictionCols+` FROM jurisdictions WHERE id = $1 AND expires_at > $2`)).
		WithArgs("nowhere-xx", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetJurisdiction(context.Background(), "nowhere-xx")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetEntity(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	resolved := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"id", "jurisdiction_id", "zoning_code", "standards", "uses", "provenance",
		"cache_hits", "last_hit_at", "is_stale", "resolved_at", "expires_at",
	}).AddRow(
		"parcel-001", "melbourne-fl", "R-1",
		[]byte(`{"front_setback_ft":25}`), []byte(`{"permitted":["single-family dwelling"]}`), []byte(`[]`),
		3, (*time.Time)(nil), false, resolved, resolved.Add(90*24*time.Hour),
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT `+entityCols+` FROM entities WHERE id = $1 AND expires_at > $2 AND NOT is_stale`)).
		WithArgs("parcel-001", pgxmock.AnyArg()).
		WillReturnRows(rows)

	got, err := s.GetEntity(context.Background(), "parcel-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R-1", got.ZoningCode)
	assert.Equal(t, 25.0, got.Standards.FrontSetbackFt)
	assert.Equal(t, 3, got.CacheHits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkEntitiesStaleExcept(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)

	mock.ExpectExec(`UPDATE entities SET is_stale = TRUE`).
		WithArgs("melbourne-fl", []string{"R-1", "C-1"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.MarkEntitiesStaleExcept(context.Background(), "melbourne-fl", []string{"R-1", "C-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAppendLookupAssignsID(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO lookup_log`).
		WithArgs(pgxmock.AnyArg(), "jurisdiction", "melbourne-fl", "MISS",
			true, 0.012, int64(1800), true, "", "cli", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &model.LookupLogEntry{
		LookupType:      model.LookupJurisdiction,
		Query:           "melbourne-fl",
		Tier:            model.TierMiss,
		FetchPerformed:  true,
		FetchCostUSD:    0.012,
		FetchDurationMs: 1800,
		Success:         true,
		Caller:          "cli",
	}
	require.NoError(t, s.AppendLookup(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, s.nowFunc(), entry.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordHit(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)

	mock.ExpectExec(`UPDATE jurisdictions SET cache_hits = cache_hits \+ 1`).
		WithArgs(s.nowFunc(), "melbourne-fl").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RecordHit(context.Background(), model.TierL1, "melbourne-fl"))
	require.NoError(t, mock.ExpectationsWereMet())

	err := s.RecordHit(context.Background(), model.Tier("L9"), "melbourne-fl")
	assert.Error(t, err)
}

func TestPostgresPurgeLookupsBefore(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	cutoff := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM lookup_log WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 120))

	n, err := s.PurgeLookupsBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 120, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
