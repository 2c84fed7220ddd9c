package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/planar"
	"github.com/twpayne/go-geos"
)

// SquareMetersPerHectare converts m² to ha.
const SquareMetersPerHectare = 10000.0

// AreaM2 projects g with p and returns its planar area in square meters.
// Only g is projected, so callers measure the smallest geometry they need.
func AreaM2(g *geos.Geom, p Projector) (float64, error) {
	og, err := ToOrb(g)
	if err != nil {
		return 0, err
	}
	projected, err := p.Project(og)
	if err != nil {
		return 0, err
	}
	return math.Abs(planar.Area(projected)), nil
}

// Hectares converts square meters to hectares.
func Hectares(m2 float64) float64 {
	return m2 / SquareMetersPerHectare
}

// ToOrb converts a GEOS geometry into a freshly allocated orb geometry.
func ToOrb(g *geos.Geom) (og orb.Geometry, err error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil geometry", ErrInvalidGeometry)
	}
	defer catch(&err)

	og, err = wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("%w: wkb: %v", ErrInvalidGeometry, err)
	}
	return og, nil
}

// BoundsIntersect reports whether two bounding boxes touch or overlap.
func BoundsIntersect(a, b *geos.Box2D) bool {
	if a == nil || b == nil {
		return false
	}
	return !(a.MaxX < b.MinX || b.MaxX < a.MinX || a.MaxY < b.MinY || b.MaxY < a.MinY)
}
