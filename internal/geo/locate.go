package geo

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/parcelscope/zoning-cli/internal/store"
)

// Locator resolves a parcel point to its governing zoning district by
// point-in-polygon tests against stored district boundaries. Decoded
// geometries are cached per jurisdiction for the life of the Locator.
type Locator struct {
	store store.Store
	log   *zap.Logger

	mu    sync.RWMutex
	cache map[string][]districtGeom
}

type districtGeom struct {
	code string
	geom geom.T
}

// NewLocator builds a Locator backed by the given store.
func NewLocator(st store.Store) *Locator {
	return &Locator{
		store: st,
		log:   zap.L().With(zap.String("component", "geo.locator")),
		cache: make(map[string][]districtGeom),
	}
}

// Locate returns the district code whose boundary contains the point, or ""
// when no district matches. An empty result is not an error; it means the
// jurisdiction has no boundary data covering the point.
func (l *Locator) Locate(ctx context.Context, jurisdictionID string, lon, lat float64) (string, error) {
	geoms, err := l.jurisdictionGeoms(ctx, jurisdictionID)
	if err != nil {
		return "", err
	}

	p := geom.Coord{lon, lat}
	for _, dg := range geoms {
		if containsPoint(dg.geom, p) {
			return dg.code, nil
		}
	}
	return "", nil
}

// Invalidate drops the cached geometries for a jurisdiction. Called after a
// shapefile re-import.
func (l *Locator) Invalidate(jurisdictionID string) {
	l.mu.Lock()
	delete(l.cache, jurisdictionID)
	l.mu.Unlock()
}

func (l *Locator) jurisdictionGeoms(ctx context.Context, jurisdictionID string) ([]districtGeom, error) {
	l.mu.RLock()
	geoms, ok := l.cache[jurisdictionID]
	l.mu.RUnlock()
	if ok {
		return geoms, nil
	}

	shapes, err := l.store.ListDistrictShapes(ctx, jurisdictionID)
	if err != nil {
		return nil, eris.Wrap(err, "geo: list district shapes")
	}

	geoms = make([]districtGeom, 0, len(shapes))
	for _, s := range shapes {
		g, err := DecodeWKB(s.WKB)
		if err != nil {
			l.log.Warn("geo: skipping undecodable district shape",
				zap.String("jurisdiction", s.JurisdictionID),
				zap.String("district", s.DistrictCode),
				zap.Error(err),
			)
			continue
		}
		geoms = append(geoms, districtGeom{code: s.DistrictCode, geom: g})
	}

	l.mu.Lock()
	l.cache[jurisdictionID] = geoms
	l.mu.Unlock()

	return geoms, nil
}

// containsPoint tests whether the point lies inside the geometry. For
// polygons the first ring is the exterior and the rest are holes.
func containsPoint(g geom.T, p geom.Coord) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

func polygonContains(poly *geom.Polygon, p geom.Coord) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
