package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/parcelscope/zoning-cli/internal/db"
	"github.com/parcelscope/zoning-cli/internal/model"
)

// PostgresStore implements Store on top of pgxpool.
type PostgresStore struct {
	pool db.Pool

	nowFunc func() time.Time
}

// NewPostgres connects to Postgres using the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, nowFunc: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jurisdictions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT '',
	districts     JSONB NOT NULL DEFAULT '[]',
	standards     JSONB NOT NULL DEFAULT '{}',
	uses          JSONB NOT NULL DEFAULT '{}',
	raw_code_url  TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	quality_score INTEGER NOT NULL DEFAULT 0,
	last_scraped  TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL,
	cache_hits    INTEGER NOT NULL DEFAULT 0,
	last_hit_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	jurisdiction_id TEXT NOT NULL,
	zoning_code     TEXT NOT NULL DEFAULT '',
	standards       JSONB NOT NULL DEFAULT '{}',
	uses            JSONB NOT NULL DEFAULT '{}',
	provenance      JSONB NOT NULL DEFAULT '[]',
	cache_hits      INTEGER NOT NULL DEFAULT 0,
	last_hit_at     TIMESTAMPTZ,
	is_stale        BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at     TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lookup_log (
	id              TEXT PRIMARY KEY,
	lookup_type     TEXT NOT NULL,
	query           TEXT NOT NULL,
	tier            TEXT NOT NULL,
	fetch_performed BOOLEAN NOT NULL DEFAULT FALSE,
	fetch_cost_usd  DOUBLE PRECISION NOT NULL DEFAULT 0,
	fetch_ms        BIGINT NOT NULL DEFAULT 0,
	success         BOOLEAN NOT NULL DEFAULT TRUE,
	error           TEXT NOT NULL DEFAULT '',
	caller          TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS district_shapes (
	jurisdiction_id TEXT NOT NULL,
	district_code   TEXT NOT NULL,
	geom            BYTEA NOT NULL,
	PRIMARY KEY (jurisdiction_id, district_code)
);

CREATE INDEX IF NOT EXISTS idx_jurisdictions_expires_at ON jurisdictions(expires_at);
CREATE INDEX IF NOT EXISTS idx_entities_jurisdiction ON entities(jurisdiction_id);
CREATE INDEX IF NOT EXISTS idx_entities_expires_at ON entities(expires_at);
CREATE INDEX IF NOT EXISTS idx_lookup_log_created_at ON lookup_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetJurisdiction(ctx context.Context, id string) (*model.JurisdictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jurisdictionCols+` FROM jurisdictions WHERE id = $1 AND expires_at > $2`,
		id, s.nowFunc().UTC(),
	)
	return scanJurisdictionPg(row)
}

func (s *PostgresStore) GetJurisdictionAny(ctx context.Context, id string) (*model.JurisdictionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jurisdictionCols+` FROM jurisdictions WHERE id = $1`,
		id,
	)
	return scanJurisdictionPg(row)
}

func (s *PostgresStore) PutJurisdiction(ctx context.Context, rec *model.JurisdictionRecord, ttl time.Duration) error {
	now := s.nowFunc().UTC()
	rec.ExpiresAt = now.Add(ttl)
	if rec.LastScraped.IsZero() {
		rec.LastScraped = now
	}

	districtsJSON, err := json.Marshal(rec.Districts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal districts")
	}
	standardsJSON, err := json.Marshal(rec.Standards)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal standards")
	}
	usesJSON, err := json.Marshal(rec.Uses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal uses")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jurisdictions (`+jurisdictionCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, NULL)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, state = EXCLUDED.state,
		   districts = EXCLUDED.districts, standards = EXCLUDED.standards,
		   uses = EXCLUDED.uses, raw_code_url = EXCLUDED.raw_code_url,
		   source_url = EXCLUDED.source_url, quality_score = EXCLUDED.quality_score,
		   last_scraped = EXCLUDED.last_scraped, expires_at = EXCLUDED.expires_at,
		   cache_hits = 0, last_hit_at = NULL`,
		rec.ID, rec.Name, rec.State, districtsJSON, standardsJSON, usesJSON,
		rec.RawCodeURL, rec.SourceURL, rec.QualityScore, rec.LastScraped, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: put jurisdiction %s", rec.ID)
}

func (s *PostgresStore) ListExpiringJurisdictions(ctx context.Context, within time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.nowFunc().UTC().Add(within)
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jurisdictions WHERE expires_at <= $1 ORDER BY expires_at ASC LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list expiring jurisdictions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan jurisdiction id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list expiring iterate")
}

func (s *PostgresStore) DeleteJurisdiction(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM jurisdictions WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete jurisdiction %s", id)
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (*model.EntityRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = $1 AND expires_at > $2 AND NOT is_stale`,
		id, s.nowFunc().UTC(),
	)
	return scanEntityPg(row)
}

func (s *PostgresStore) GetEntityAny(ctx context.Context, id string) (*model.EntityRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = $1`,
		id,
	)
	return scanEntityPg(row)
}

func (s *PostgresStore) PutEntity(ctx context.Context, rec *model.EntityRecord, ttl time.Duration) error {
	now := s.nowFunc().UTC()
	rec.ExpiresAt = now.Add(ttl)
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = now
	}
	rec.IsStale = false

	standardsJSON, err := json.Marshal(rec.Standards)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal standards")
	}
	usesJSON, err := json.Marshal(rec.Uses)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal uses")
	}
	provenanceJSON, err := json.Marshal(rec.ProvenanceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (`+entityCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, NULL, FALSE, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   jurisdiction_id = EXCLUDED.jurisdiction_id,
		   zoning_code = EXCLUDED.zoning_code,
		   standards = EXCLUDED.standards, uses = EXCLUDED.uses,
		   provenance = EXCLUDED.provenance, is_stale = FALSE,
		   resolved_at = EXCLUDED.resolved_at, expires_at = EXCLUDED.expires_at`,
		rec.ID, rec.JurisdictionID, rec.ZoningCode, standardsJSON, usesJSON,
		provenanceJSON, rec.ResolvedAt, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "postgres: put entity %s", rec.ID)
}

func (s *PostgresStore) MarkEntityStale(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE entities SET is_stale = TRUE WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: mark entity stale %s", id)
}

func (s *PostgresStore) MarkEntitiesStaleExcept(ctx context.Context, jurisdictionID string, validCodes []string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entities SET is_stale = TRUE
		 WHERE jurisdiction_id = $1 AND NOT is_stale AND zoning_code <> ALL($2)`,
		jurisdictionID, validCodes,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: mark entities stale for %s", jurisdictionID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendLookup(ctx context.Context, entry *model.LookupLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowFunc().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO lookup_log (id, lookup_type, query, tier, fetch_performed, fetch_cost_usd, fetch_ms, success, error, caller, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, string(entry.LookupType), entry.Query, string(entry.Tier),
		entry.FetchPerformed, entry.FetchCostUSD, entry.FetchDurationMs,
		entry.Success, entry.Error, entry.Caller, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append lookup")
}

func (s *PostgresStore) ListLookups(ctx context.Context, from, to time.Time) ([]model.LookupLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lookup_type, query, tier, fetch_performed, fetch_cost_usd, fetch_ms, success, error, caller, created_at
		 FROM lookup_log WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lookups")
	}
	defer rows.Close()

	var entries []model.LookupLogEntry
	for rows.Next() {
		var e model.LookupLogEntry
		var lookupType, tier string
		if err := rows.Scan(&e.ID, &lookupType, &e.Query, &tier, &e.FetchPerformed,
			&e.FetchCostUSD, &e.FetchDurationMs, &e.Success, &e.Error, &e.Caller, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lookup entry")
		}
		e.LookupType = model.LookupType(lookupType)
		e.Tier = model.Tier(tier)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list lookups iterate")
}

func (s *PostgresStore) PurgeLookupsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lookup_log WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge lookups")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordHit(ctx context.Context, tier model.Tier, id string) error {
	now := s.nowFunc().UTC()
	var err error
	switch tier {
	case model.TierL1:
		_, err = s.pool.Exec(ctx,
			`UPDATE jurisdictions SET cache_hits = cache_hits + 1, last_hit_at = $1 WHERE id = $2`, now, id)
	case model.TierL2:
		_, err = s.pool.Exec(ctx,
			`UPDATE entities SET cache_hits = cache_hits + 1, last_hit_at = $1 WHERE id = $2`, now, id)
	default:
		return eris.Errorf("postgres: record hit: unknown tier %q", tier)
	}
	return eris.Wrapf(err, "postgres: record %s hit %s", tier, id)
}

func (s *PostgresStore) PutDistrictShapes(ctx context.Context, shapes []model.DistrictShape) (int, error) {
	rows := make([][]any, 0, len(shapes))
	for _, sh := range shapes {
		rows = append(rows, []any{sh.JurisdictionID, sh.DistrictCode, sh.WKB})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "district_shapes",
		Columns:      []string{"jurisdiction_id", "district_code", "geom"},
		ConflictKeys: []string{"jurisdiction_id", "district_code"},
	}, rows)
	return int(n), eris.Wrap(err, "postgres: put district shapes")
}

func (s *PostgresStore) ListDistrictShapes(ctx context.Context, jurisdictionID string) ([]model.DistrictShape, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT jurisdiction_id, district_code, geom FROM district_shapes WHERE jurisdiction_id = $1`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list district shapes")
	}
	defer rows.Close()

	var shapes []model.DistrictShape
	for rows.Next() {
		var sh model.DistrictShape
		if err := rows.Scan(&sh.JurisdictionID, &sh.DistrictCode, &sh.WKB); err != nil {
			return nil, eris.Wrap(err, "postgres: scan district shape")
		}
		shapes = append(shapes, sh)
	}
	return shapes, eris.Wrap(rows.Err(), "postgres: list shapes iterate")
}

func (s *PostgresStore) PurgeExpiredEntities(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM entities WHERE expires_at <= $1 OR is_stale`,
		s.nowFunc().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired entities")
	}
	return int(tag.RowsAffected()), nil
}

func scanJurisdictionPg(row pgx.Row) (*model.JurisdictionRecord, error) {
	var r model.JurisdictionRecord
	var districtsJSON, standardsJSON, usesJSON []byte
	var lastHit *time.Time

	err := row.Scan(&r.ID, &r.Name, &r.State, &districtsJSON, &standardsJSON,
		&usesJSON, &r.RawCodeURL, &r.SourceURL, &r.QualityScore,
		&r.LastScraped, &r.ExpiresAt, &r.CacheHits, &lastHit)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan jurisdiction")
	}

	if err := json.Unmarshal(districtsJSON, &r.Districts); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal districts")
	}
	if err := json.Unmarshal(standardsJSON, &r.Standards); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal standards")
	}
	if err := json.Unmarshal(usesJSON, &r.Uses); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal uses")
	}
	r.LastHitAt = lastHit
	return &r, nil
}

func scanEntityPg(row pgx.Row) (*model.EntityRecord, error) {
	var r model.EntityRecord
	var standardsJSON, usesJSON, provenanceJSON []byte
	var lastHit *time.Time

	err := row.Scan(&r.ID, &r.JurisdictionID, &r.ZoningCode, &standardsJSON,
		&usesJSON, &provenanceJSON, &r.CacheHits, &lastHit, &r.IsStale,
		&r.ResolvedAt, &r.ExpiresAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan entity")
	}

	if err := json.Unmarshal(standardsJSON, &r.Standards); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal standards")
	}
	if err := json.Unmarshal(usesJSON, &r.Uses); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal uses")
	}
	if err := json.Unmarshal(provenanceJSON, &r.ProvenanceURLs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal provenance")
	}
	r.LastHitAt = lastHit
	return &r, nil
}
