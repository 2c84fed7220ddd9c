// Package geometry parses, repairs, reprojects and measures the polygons
// compared by the overlap engine.
//
// All geometry objects are GEOS geometries (github.com/twpayne/go-geos).
// Conversion to paulmach/orb happens only at the edges: when a geometry is
// projected for area measurement, and when it is encoded as WKT/GeoJSON for
// map display.
package geometry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/twpayne/go-geos"
)

// ErrInvalidGeometry is returned when a geometry cannot be parsed, is empty,
// or stays invalid after repair.
var ErrInvalidGeometry = errors.New("invalid geometry")

// DefaultSRID is SIRGAS 2000 (EPSG:4674), the geographic CRS of every
// reference layer.
const DefaultSRID = 4674

// Normalizer turns serialized geometries into valid GEOS geometries tagged
// with the expected geographic CRS.
type Normalizer struct {
	ctx  *geos.Context
	srid int
}

// NewNormalizer returns a normalizer backed by the shared GEOS context.
// The shared context serializes calls internally, so the normalizer can be
// used from several goroutines.
func NewNormalizer(srid int) *Normalizer {
	return &Normalizer{ctx: geos.DefaultContext, srid: srid}
}

// NewIsolatedNormalizer returns a normalizer with a private GEOS context.
// Background workers use one each so they never contend on the shared lock.
// Geometries produced by different contexts must not be combined.
func NewIsolatedNormalizer(srid int) *Normalizer {
	return &Normalizer{ctx: geos.NewContext(), srid: srid}
}

// SRID returns the CRS identifier assigned to parsed geometries.
func (n *Normalizer) SRID() int {
	return n.srid
}

// Parse converts WKT (or EWKT) into a valid geometry in the normalizer's CRS.
//
// Invalid geometries are repaired with a zero-width buffer. The CRS tag is
// force-assigned: coordinates are assumed to already be in that system.
func (n *Normalizer) Parse(wkt string) (g *geos.Geom, err error) {
	raw := stripSRID(strings.TrimSpace(wkt))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidGeometry)
	}

	defer catch(&err)

	g, err = n.ctx.NewGeomFromWKT(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return n.finish(g)
}

// Tag repairs an already-parsed geometry and assigns the expected CRS.
// It is used for geometries handed over from a precomputed field.
func (n *Normalizer) Tag(g *geos.Geom) (out *geos.Geom, err error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	}
	defer catch(&err)
	return n.finish(g)
}

func (n *Normalizer) finish(g *geos.Geom) (*geos.Geom, error) {
	if g.IsEmpty() {
		return nil, fmt.Errorf("%w: empty geometry", ErrInvalidGeometry)
	}
	if !g.IsValid() {
		repaired := g.Buffer(0, 8)
		if repaired == nil || repaired.IsEmpty() || !repaired.IsValid() {
			return nil, fmt.Errorf("%w: unrepairable", ErrInvalidGeometry)
		}
		g = repaired
	}
	if g.SRID() != n.srid {
		g = g.SetSRID(n.srid)
	}
	return g, nil
}

// stripSRID drops an EWKT "SRID=nnnn;" prefix.
func stripSRID(s string) string {
	if len(s) > 5 && strings.EqualFold(s[:5], "SRID=") {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			return strings.TrimSpace(s[i+1:])
		}
	}
	return s
}

// Guard runs fn and converts a GEOS panic into ErrInvalidGeometry.
func Guard(fn func() error) (err error) {
	defer catch(&err)
	return fn()
}

func catch(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrInvalidGeometry, r)
	}
}
