// Package overlap decides whether a reference record overlaps the analysed
// parcel and measures that overlap.
package overlap

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/geometry"
)

// ErrInvalidTarget means the parcel under analysis could not be established.
// Nothing can be computed without it.
var ErrInvalidTarget = errors.New("invalid target geometry")

// Target is the parcel under analysis. WKT is the normalized geometry and
// its area always comes from the projected (metric) geometry.
type Target struct {
	WKT      string
	Geometry *geos.Geom
	Bounds   *geos.Box2D
	AreaM2   float64
	AreaHa   float64
}

// NewTarget parses wkt and measures it.
func NewTarget(n *geometry.Normalizer, p geometry.Projector, wkt string) (*Target, error) {
	g, err := n.Parse(wkt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	return TargetFromGeometry(p, g)
}

// TargetFromGeometry builds a target from an already normalized geometry,
// e.g. the usable geometry of a stored registry record.
func TargetFromGeometry(p geometry.Projector, g *geos.Geom) (*Target, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: missing geometry", ErrInvalidTarget)
	}

	t := &Target{Geometry: g}
	err := geometry.Guard(func() error {
		t.Bounds = g.Bounds()
		t.WKT = g.ToWKT()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	area, err := geometry.AreaM2(g, p)
	if err != nil {
		return nil, fmt.Errorf("%w: area: %w", ErrInvalidTarget, err)
	}
	t.AreaM2 = area
	t.AreaHa = geometry.Hectares(area)
	return t, nil
}
