// Package resolver implements the lookup coordinator: the single entry
// point that serves cached ordinance facts or orchestrates a live
// fetch-extract-validate-persist cycle on a miss.
package resolver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/parcelscope/zoning-cli/internal/model"
	"github.com/parcelscope/zoning-cli/internal/store"
	"github.com/parcelscope/zoning-cli/internal/validate"
)

// RawContent is the fetched upstream document handed to the extractor.
type RawContent struct {
	URL      string
	Markdown string
	CostUSD  float64
}

// Fetcher retrieves the ordinance document for a jurisdiction locator.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, locator string) (*RawContent, error)
}

// Extractor turns raw content into candidate district records. An empty
// slice means no content was found; it is not an error.
type Extractor interface {
	Extract(ctx context.Context, content *RawContent) ([]model.CandidateRecord, error)
}

// DistrictLocator resolves a parcel point to the governing district code.
type DistrictLocator interface {
	Locate(ctx context.Context, jurisdictionID string, lon, lat float64) (string, error)
}

// Options tunes coordinator behavior. Zero values use the defaults.
type Options struct {
	JurisdictionTTL time.Duration
	EntityTTL       time.Duration
	FetchTimeout    time.Duration
	Locator         DistrictLocator
	Logger          *zap.Logger
}

// Coordinator routes lookups across the cache tiers. It holds no mutable
// state of its own beyond the per-key in-flight guard; the store is the
// single shared resource.
type Coordinator struct {
	store     store.Store
	fetcher   Fetcher
	extractor Extractor
	validator *validate.Validator
	locator   DistrictLocator

	jurisdictionTTL time.Duration
	entityTTL       time.Duration
	fetchTimeout    time.Duration

	group   singleflight.Group
	nowFunc func() time.Time
	log     *zap.Logger
}

func New(st store.Store, f Fetcher, ex Extractor, v *validate.Validator, opts Options) *Coordinator {
	c := &Coordinator{
		store:           st,
		fetcher:         f,
		extractor:       ex,
		validator:       v,
		locator:         opts.Locator,
		jurisdictionTTL: opts.JurisdictionTTL,
		entityTTL:       opts.EntityTTL,
		fetchTimeout:    opts.FetchTimeout,
		nowFunc:         time.Now,
		log:             opts.Logger,
	}
	if c.jurisdictionTTL == 0 {
		c.jurisdictionTTL = 30 * 24 * time.Hour
	}
	if c.entityTTL == 0 {
		c.entityTTL = 90 * 24 * time.Hour
	}
	if c.fetchTimeout == 0 {
		c.fetchTimeout = 60 * time.Second
	}
	if c.log == nil {
		c.log = zap.L()
	}
	return c
}

// Resolve answers a query from the cheapest tier able to serve it,
// performing at most one concurrent miss resolution per cache key. Every
// call appends exactly one lookup log entry before returning.
func (c *Coordinator) Resolve(ctx context.Context, q model.Query) (*model.Result, error) {
	switch q.Type {
	case model.LookupJurisdiction:
		return c.resolveJurisdiction(ctx, q)
	case model.LookupEntity:
		return c.resolveEntity(ctx, q)
	default:
		return nil, eris.Errorf("resolver: unknown lookup type %q", q.Type)
	}
}

func (c *Coordinator) resolveJurisdiction(ctx context.Context, q model.Query) (*model.Result, error) {
	key := model.CacheKey(q.ID)

	rec, err := c.store.GetJurisdiction(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: tier 1 read")
	}
	if rec != nil {
		c.recordHit(model.TierL1, key)
		res := &model.Result{Outcome: model.OutcomeL1Hit, Jurisdiction: rec}
		if err := c.appendLog(ctx, q, model.TierL1, res, logFields{}); err != nil {
			return nil, err
		}
		return res, nil
	}

	mr, shared, err := c.missJurisdiction(ctx, q, key)
	if err != nil {
		return nil, err
	}

	res := copyResult(mr.result, shared)
	if err := c.appendLog(ctx, q, model.TierMiss, res, mr.fieldsFor(shared)); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Coordinator) resolveEntity(ctx context.Context, q model.Query) (*model.Result, error) {
	if q.JurisdictionID == "" {
		return nil, eris.New("resolver: entity query requires jurisdiction_id")
	}
	jKey := model.CacheKey(q.JurisdictionID)
	eKey := model.CacheKey(q.ID)

	ent, err := c.store.GetEntity(ctx, eKey)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: tier 2 read")
	}
	if ent != nil {
		jur, err := c.store.GetJurisdictionAny(ctx, jKey)
		if err != nil {
			return nil, eris.Wrap(err, "resolver: tier 1 read")
		}
		if jur == nil || !ent.SupersededBy(jur.LastScraped) {
			c.recordHit(model.TierL2, ent.ID)
			res := &model.Result{Outcome: model.OutcomeL2Hit, Entity: ent}
			if err := c.appendLog(ctx, q, model.TierL2, res, logFields{}); err != nil {
				return nil, err
			}
			return res, nil
		}
		// Tier 1 is authoritative: a refresh postdating this row wins.
		if err := c.store.MarkEntityStale(ctx, ent.ID); err != nil {
			c.log.Warn("mark superseded entity stale failed",
				zap.String("entity_id", ent.ID), zap.Error(err))
		}
	}

	jur, err := c.store.GetJurisdiction(ctx, jKey)
	if err != nil {
		return nil, eris.Wrap(err, "resolver: tier 1 read")
	}
	if jur != nil {
		res, err := c.materializeEntity(ctx, q, eKey, jKey, jur)
		if err != nil {
			return nil, err
		}
		c.recordHit(model.TierL1, jKey)
		res.Outcome = hitOutcome(res.Outcome, model.OutcomeL1Hit)
		if err := c.appendLog(ctx, q, model.TierL1, res, logFields{}); err != nil {
			return nil, err
		}
		return res, nil
	}

	mr, shared, err := c.missJurisdiction(ctx, q, jKey)
	if err != nil {
		return nil, err
	}
	res := copyResult(mr.result, shared)
	if res.Jurisdiction != nil {
		entRes, err := c.materializeEntity(ctx, q, eKey, jKey, res.Jurisdiction)
		if err != nil {
			return nil, err
		}
		res.Entity = entRes.Entity
		res.Jurisdiction = nil
		if entRes.Outcome == model.OutcomeNoContentFound {
			res.Outcome = model.OutcomeNoContentFound
		}
	}
	if err := c.appendLog(ctx, q, model.TierMiss, res, mr.fieldsFor(shared)); err != nil {
		return nil, err
	}
	return res, nil
}

// materializeEntity derives and persists a Tier 2 row from a live Tier 1
// record. Absent a way to determine the governing district, no data is
// fabricated; the result carries NO_CONTENT_FOUND.
func (c *Coordinator) materializeEntity(ctx context.Context, q model.Query, eKey, jKey string, jur *model.JurisdictionRecord) (*model.Result, error) {
	code, err := c.districtCode(ctx, q, eKey, jKey)
	if err != nil {
		c.log.Warn("district location failed",
			zap.String("entity_id", eKey), zap.Error(err))
		return &model.Result{Outcome: model.OutcomeNoContentFound}, nil
	}
	if code == "" || jur.District(code) == nil {
		return &model.Result{Outcome: model.OutcomeNoContentFound}, nil
	}

	ent := &model.EntityRecord{
		ID:             eKey,
		JurisdictionID: jKey,
		ZoningCode:     code,
		Standards:      jur.Standards[code],
		Uses:           jur.Uses[code],
		ProvenanceURLs: []string{jur.SourceURL},
		ResolvedAt:     c.nowFunc().UTC(),
	}
	if err := c.store.PutEntity(ctx, ent, c.entityTTL); err != nil {
		return nil, eris.Wrap(err, "resolver: tier 2 write")
	}
	return &model.Result{Entity: ent}, nil
}

func (c *Coordinator) districtCode(ctx context.Context, q model.Query, eKey, jKey string) (string, error) {
	if q.HasPoint && c.locator != nil {
		return c.locator.Locate(ctx, jKey, q.Lon, q.Lat)
	}
	// No point given: a refresh of a previously resolved parcel may reuse
	// its last known district code.
	prior, err := c.store.GetEntityAny(ctx, eKey)
	if err != nil {
		return "", eris.Wrap(err, "resolver: prior entity read")
	}
	if prior == nil {
		return "", nil
	}
	return prior.ZoningCode, nil
}

type missResult struct {
	result  *model.Result
	costUSD float64
	durMs   int64
	errMsg  string
}

func (m *missResult) fieldsFor(shared bool) logFields {
	f := logFields{errMsg: m.errMsg, durMs: m.durMs}
	if !shared {
		f.costUSD = m.costUSD
	}
	return f
}

// missJurisdiction funnels concurrent misses for the same key through a
// single fetch. Followers share the leader's outcome.
func (c *Coordinator) missJurisdiction(ctx context.Context, q model.Query, key string) (*missResult, bool, error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetchAndPersist(ctx, q, key)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*missResult), shared, nil
}

func (c *Coordinator) fetchAndPersist(ctx context.Context, q model.Query, key string) (*missResult, error) {
	fctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := c.nowFunc()
	content, err := c.fetcher.Fetch(fctx, q.ID)
	if err != nil {
		c.log.Warn("fetch failed",
			zap.String("key", key), zap.String("fetcher", c.fetcher.Name()), zap.Error(err))
		return &missResult{
			result: &model.Result{Outcome: model.OutcomeFetchFailed},
			durMs:  c.nowFunc().Sub(start).Milliseconds(),
			errMsg: eris.Wrap(err, "fetch").Error(),
		}, nil
	}

	candidates, err := c.extractor.Extract(fctx, content)
	if err != nil {
		c.log.Warn("extract failed", zap.String("key", key), zap.Error(err))
		return &missResult{
			result:  &model.Result{Outcome: model.OutcomeFetchFailed},
			costUSD: content.CostUSD,
			durMs:   c.nowFunc().Sub(start).Milliseconds(),
			errMsg:  eris.Wrap(err, "extract").Error(),
		}, nil
	}

	accepted, rejections := c.validator.Filter(candidates)
	if len(accepted) == 0 {
		c.log.Info("no candidates survived validation",
			zap.String("key", key),
			zap.Int("extracted", len(candidates)),
			zap.Strings("rejections", rejections))
		return &missResult{
			result:  &model.Result{Outcome: model.OutcomeNoContentFound, Rejections: rejections},
			costUSD: content.CostUSD,
			durMs:   c.nowFunc().Sub(start).Milliseconds(),
		}, nil
	}

	rec := assembleJurisdiction(key, q.ID, content, accepted)
	rec.LastScraped = c.nowFunc().UTC()
	if err := c.store.PutJurisdiction(ctx, rec, c.jurisdictionTTL); err != nil {
		return nil, eris.Wrap(err, "resolver: tier 1 write")
	}

	codes := make([]string, 0, len(rec.Districts))
	for _, d := range rec.Districts {
		codes = append(codes, d.Code)
	}
	if n, err := c.store.MarkEntitiesStaleExcept(ctx, key, codes); err != nil {
		c.log.Warn("roster invalidation failed", zap.String("key", key), zap.Error(err))
	} else if n > 0 {
		c.log.Info("invalidated entities after roster change",
			zap.String("key", key), zap.Int("count", n))
	}

	return &missResult{
		result: &model.Result{
			Outcome:        model.OutcomeMiss,
			Jurisdiction:   rec,
			FetchPerformed: true,
			Rejections:     rejections,
		},
		costUSD: content.CostUSD,
		durMs:   c.nowFunc().Sub(start).Milliseconds(),
	}, nil
}

type logFields struct {
	costUSD float64
	durMs   int64
	errMsg  string
}

func (c *Coordinator) appendLog(ctx context.Context, q model.Query, tier model.Tier, res *model.Result, f logFields) error {
	queryJSON, _ := json.Marshal(q)
	entry := &model.LookupLogEntry{
		LookupType:      q.Type,
		Query:           string(queryJSON),
		Tier:            tier,
		FetchPerformed:  res.FetchPerformed,
		FetchCostUSD:    f.costUSD,
		FetchDurationMs: f.durMs,
		Success:         res.Outcome != model.OutcomeFetchFailed,
		Error:           f.errMsg,
		Caller:          q.Caller,
		CreatedAt:       c.nowFunc().UTC(),
	}
	if err := c.store.AppendLookup(ctx, entry); err != nil {
		return eris.Wrap(err, "resolver: append lookup log")
	}
	return nil
}

// recordHit updates hit accounting off the serving path; the write runs
// on its own goroutine with a bounded context so a hit is never delayed
// by accounting. Failures are logged, never raised.
func (c *Coordinator) recordHit(tier model.Tier, id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.store.RecordHit(ctx, tier, id); err != nil {
			c.log.Warn("record hit failed",
				zap.String("tier", string(tier)), zap.String("id", id), zap.Error(err))
		}
	}()
}

func copyResult(r *model.Result, shared bool) *model.Result {
	out := *r
	if shared {
		out.FetchPerformed = false
	}
	return &out
}

func hitOutcome(current, fallback model.Outcome) model.Outcome {
	if current != "" {
		return current
	}
	return fallback
}
