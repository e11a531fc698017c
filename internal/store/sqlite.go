package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/parcelscope/zoning-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jurisdictions (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT '',
	districts     TEXT NOT NULL DEFAULT '[]',
	standards     TEXT NOT NULL DEFAULT '{}',
	uses          TEXT NOT NULL DEFAULT '{}',
	raw_code_url  TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	quality_score INTEGER NOT NULL DEFAULT 0,
	last_scraped  DATETIME NOT NULL,
	expires_at    DATETIME NOT NULL,
	cache_hits    INTEGER NOT NULL DEFAULT 0,
	last_hit_at   DATETIME
);

CREATE TABLE IF NOT EXISTS entities (
	id              TEXT PRIMARY KEY,
	jurisdiction_id TEXT NOT NULL,
	zoning_code     TEXT NOT NULL DEFAULT '',
	standards       TEXT NOT NULL DEFAULT '{}',
	uses            TEXT NOT NULL DEFAULT '{}',
	provenance      TEXT NOT NULL DEFAULT '[]',
	cache_hits      INTEGER NOT NULL DEFAULT 0,
	last_hit_at     DATETIME,
	is_stale        INTEGER NOT NULL DEFAULT 0,
	resolved_at     DATETIME NOT NULL,
	expires_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lookup_log (
	id              TEXT PRIMARY KEY,
	lookup_type     TEXT NOT NULL,
	query           TEXT NOT NULL,
	tier            TEXT NOT NULL,
	fetch_performed INTEGER NOT NULL DEFAULT 0,
	fetch_cost_usd  REAL NOT NULL DEFAULT 0,
	fetch_ms        INTEGER NOT NULL DEFAULT 0,
	success         INTEGER NOT NULL DEFAULT 1,
	error           TEXT NOT NULL DEFAULT '',
	caller          TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS district_shapes (
	jurisdiction_id TEXT NOT NULL,
	district_code   TEXT NOT NULL,
	geom            BLOB NOT NULL,
	PRIMARY KEY (jurisdiction_id, district_code)
);

CREATE INDEX IF NOT EXISTS idx_jurisdictions_expires_at ON jurisdictions(expires_at);
CREATE INDEX IF NOT EXISTS idx_entities_jurisdiction ON entities(jurisdiction_id);
CREATE INDEX IF NOT EXISTS idx_entities_expires_at ON entities(expires_at);
CREATE INDEX IF NOT EXISTS idx_lookup_log_created_at ON lookup_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const jurisdictionCols = `id, name, state, districts, standards, uses, raw_code_url, source_url, quality_score, last_scraped, expires_at, cache_hits, last_hit_at`

func (s *SQLiteStore) GetJurisdiction(ctx context.Context, id string) (*model.JurisdictionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jurisdictionCols+` FROM jurisdictions WHERE id = ? AND expires_at > ?`,
		id, s.nowFunc().UTC(),
	)
	return scanJurisdiction(row)
}

func (s *SQLiteStore) GetJurisdictionAny(ctx context.Context, id string) (*model.JurisdictionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jurisdictionCols+` FROM jurisdictions WHERE id = ?`,
		id,
	)
	return scanJurisdiction(row)
}

func (s *SQLiteStore) PutJurisdiction(ctx context.Context, rec *model.JurisdictionRecord, ttl time.Duration) error {
	now := s.nowFunc().UTC()
	rec.ExpiresAt = now.Add(ttl)
	if rec.LastScraped.IsZero() {
		rec.LastScraped = now
	}

	districtsJSON, err := json.Marshal(rec.Districts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal districts")
	}
	standardsJSON, err := json.Marshal(rec.Standards)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal standards")
	}
	usesJSON, err := json.Marshal(rec.Uses)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal uses")
	}

	// Whole-record replace; a refresh resets hit accounting.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jurisdictions (`+jurisdictionCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, state = excluded.state,
		   districts = excluded.districts, standards = excluded.standards,
		   uses = excluded.uses, raw_code_url = excluded.raw_code_url,
		   source_url = excluded.source_url, quality_score = excluded.quality_score,
		   last_scraped = excluded.last_scraped, expires_at = excluded.expires_at,
		   cache_hits = 0, last_hit_at = NULL`,
		rec.ID, rec.Name, rec.State, string(districtsJSON), string(standardsJSON),
		string(usesJSON), rec.RawCodeURL, rec.SourceURL, rec.QualityScore,
		rec.LastScraped, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "sqlite: put jurisdiction %s", rec.ID)
}

func (s *SQLiteStore) ListExpiringJurisdictions(ctx context.Context, within time.Duration, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.nowFunc().UTC().Add(within)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM jurisdictions WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ?`,
		cutoff, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list expiring jurisdictions")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan jurisdiction id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list expiring iterate")
}

func (s *SQLiteStore) DeleteJurisdiction(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jurisdictions WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete jurisdiction %s", id)
}

const entityCols = `id, jurisdiction_id, zoning_code, standards, uses, provenance, cache_hits, last_hit_at, is_stale, resolved_at, expires_at`

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (*model.EntityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = ? AND expires_at > ? AND is_stale = 0`,
		id, s.nowFunc().UTC(),
	)
	return scanEntity(row)
}

func (s *SQLiteStore) GetEntityAny(ctx context.Context, id string) (*model.EntityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = ?`,
		id,
	)
	return scanEntity(row)
}

func (s *SQLiteStore) PutEntity(ctx context.Context, rec *model.EntityRecord, ttl time.Duration) error {
	now := s.nowFunc().UTC()
	rec.ExpiresAt = now.Add(ttl)
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = now
	}
	rec.IsStale = false

	standardsJSON, err := json.Marshal(rec.Standards)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal standards")
	}
	usesJSON, err := json.Marshal(rec.Uses)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal uses")
	}
	provenanceJSON, err := json.Marshal(rec.ProvenanceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provenance")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (`+entityCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, 0, NULL, 0, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   jurisdiction_id = excluded.jurisdiction_id,
		   zoning_code = excluded.zoning_code,
		   standards = excluded.standards, uses = excluded.uses,
		   provenance = excluded.provenance, is_stale = 0,
		   resolved_at = excluded.resolved_at, expires_at = excluded.expires_at`,
		rec.ID, rec.JurisdictionID, rec.ZoningCode, string(standardsJSON),
		string(usesJSON), string(provenanceJSON), rec.ResolvedAt, rec.ExpiresAt,
	)
	return eris.Wrapf(err, "sqlite: put entity %s", rec.ID)
}

func (s *SQLiteStore) MarkEntityStale(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE entities SET is_stale = 1 WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: mark entity stale %s", id)
}

func (s *SQLiteStore) MarkEntitiesStaleExcept(ctx context.Context, jurisdictionID string, validCodes []string) (int, error) {
	query := `UPDATE entities SET is_stale = 1 WHERE jurisdiction_id = ? AND is_stale = 0`
	args := []any{jurisdictionID}

	if len(validCodes) > 0 {
		query += ` AND zoning_code NOT IN (?` + strings.Repeat(", ?", len(validCodes)-1) + `)`
		for _, c := range validCodes {
			args = append(args, c)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: mark entities stale for %s", jurisdictionID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendLookup(ctx context.Context, entry *model.LookupLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowFunc().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_log (id, lookup_type, query, tier, fetch_performed, fetch_cost_usd, fetch_ms, success, error, caller, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.LookupType), entry.Query, string(entry.Tier),
		entry.FetchPerformed, entry.FetchCostUSD, entry.FetchDurationMs,
		entry.Success, entry.Error, entry.Caller, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append lookup")
}

func (s *SQLiteStore) ListLookups(ctx context.Context, from, to time.Time) ([]model.LookupLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lookup_type, query, tier, fetch_performed, fetch_cost_usd, fetch_ms, success, error, caller, created_at
		 FROM lookup_log WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lookups")
	}
	defer rows.Close()

	var entries []model.LookupLogEntry
	for rows.Next() {
		var e model.LookupLogEntry
		var lookupType, tier string
		if err := rows.Scan(&e.ID, &lookupType, &e.Query, &tier, &e.FetchPerformed,
			&e.FetchCostUSD, &e.FetchDurationMs, &e.Success, &e.Error, &e.Caller, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lookup entry")
		}
		e.LookupType = model.LookupType(lookupType)
		e.Tier = model.Tier(tier)
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list lookups iterate")
}

func (s *SQLiteStore) PurgeLookupsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lookup_log WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge lookups")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordHit(ctx context.Context, tier model.Tier, id string) error {
	now := s.nowFunc().UTC()
	var err error
	switch tier {
	case model.TierL1:
		_, err = s.db.ExecContext(ctx,
			`UPDATE jurisdictions SET cache_hits = cache_hits + 1, last_hit_at = ? WHERE id = ?`, now, id)
	case model.TierL2:
		_, err = s.db.ExecContext(ctx,
			`UPDATE entities SET cache_hits = cache_hits + 1, last_hit_at = ? WHERE id = ?`, now, id)
	default:
		return eris.Errorf("sqlite: record hit: unknown tier %q", tier)
	}
	return eris.Wrapf(err, "sqlite: record %s hit %s", tier, id)
}

func (s *SQLiteStore) PutDistrictShapes(ctx context.Context, shapes []model.DistrictShape) (int, error) {
	if len(shapes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin shapes tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO district_shapes (jurisdiction_id, district_code, geom) VALUES (?, ?, ?)
		 ON CONFLICT (jurisdiction_id, district_code) DO UPDATE SET geom = excluded.geom`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare shape insert")
	}
	defer stmt.Close()

	for _, sh := range shapes {
		if _, err := stmt.ExecContext(ctx, sh.JurisdictionID, sh.DistrictCode, sh.WKB); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert shape %s/%s", sh.JurisdictionID, sh.DistrictCode)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit shapes")
	}
	return len(shapes), nil
}

func (s *SQLiteStore) ListDistrictShapes(ctx context.Context, jurisdictionID string) ([]model.DistrictShape, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT jurisdiction_id, district_code, geom FROM district_shapes WHERE jurisdiction_id = ?`,
		jurisdictionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list district shapes")
	}
	defer rows.Close()

	var shapes []model.DistrictShape
	for rows.Next() {
		var sh model.DistrictShape
		if err := rows.Scan(&sh.JurisdictionID, &sh.DistrictCode, &sh.WKB); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan district shape")
		}
		shapes = append(shapes, sh)
	}
	return shapes, eris.Wrap(rows.Err(), "sqlite: list shapes iterate")
}

func (s *SQLiteStore) PurgeExpiredEntities(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entities WHERE expires_at <= ? OR is_stale = 1`,
		s.nowFunc().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired entities")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanJurisdiction(row scannable) (*model.JurisdictionRecord, error) {
	var r model.JurisdictionRecord
	var districtsJSON, standardsJSON, usesJSON string
	var lastHit sql.NullTime

	err := row.Scan(&r.ID, &r.Name, &r.State, &districtsJSON, &standardsJSON,
		&usesJSON, &r.RawCodeURL, &r.SourceURL, &r.QualityScore,
		&r.LastScraped, &r.ExpiresAt, &r.CacheHits, &lastHit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan jurisdiction")
	}

	if err := json.Unmarshal([]byte(districtsJSON), &r.Districts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal districts")
	}
	if err := json.Unmarshal([]byte(standardsJSON), &r.Standards); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal standards")
	}
	if err := json.Unmarshal([]byte(usesJSON), &r.Uses); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal uses")
	}
	if lastHit.Valid {
		t := lastHit.Time
		r.LastHitAt = &t
	}
	return &r, nil
}

func scanEntity(row scannable) (*model.EntityRecord, error) {
	var r model.EntityRecord
	var standardsJSON, usesJSON, provenanceJSON string
	var lastHit sql.NullTime

	err := row.Scan(&r.ID, &r.JurisdictionID, &r.ZoningCode, &standardsJSON,
		&usesJSON, &provenanceJSON, &r.CacheHits, &lastHit, &r.IsStale,
		&r.ResolvedAt, &r.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan entity")
	}

	if err := json.Unmarshal([]byte(standardsJSON), &r.Standards); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal standards")
	}
	if err := json.Unmarshal([]byte(usesJSON), &r.Uses); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal uses")
	}
	if err := json.Unmarshal([]byte(provenanceJSON), &r.ProvenanceURLs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
	}
	if lastHit.Valid {
		t := lastHit.Time
		r.LastHitAt = &t
	}
	return &r, nil
}
