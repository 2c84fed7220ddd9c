package geometry

import (
	"fmt"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Proj4 definitions of the reference CRS pair.
const (
	// SIRGAS 2000 geographic (EPSG:4674).
	DefaultGeographicProj = "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs"
	// SIRGAS 2000 / UTM zone 22S (EPSG:31982).
	DefaultMetricProj = "+proj=utm +zone=22 +south +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs"
)

// Projector reprojects a geometry into a metric CRS where planar area is
// expressed in square meters.
type Projector interface {
	Project(g orb.Geometry) (orb.Geometry, error)
}

type transformProjector struct {
	tr proj.Transformer
}

// NewProjector builds a projector between two proj4 definitions.
func NewProjector(src, dst string) (Projector, error) {
	from, err := proj.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse source crs: %w", err)
	}
	to, err := proj.Parse(dst)
	if err != nil {
		return nil, fmt.Errorf("parse target crs: %w", err)
	}
	tr, err := from.NewTransform(to)
	if err != nil {
		return nil, fmt.Errorf("build transform: %w", err)
	}
	return &transformProjector{tr: tr}, nil
}

// DefaultProjector projects SIRGAS 2000 geographic coordinates to UTM 22S.
func DefaultProjector() (Projector, error) {
	return NewProjector(DefaultGeographicProj, DefaultMetricProj)
}

// Project transforms g in place. Callers pass a geometry they own.
func (p *transformProjector) Project(g orb.Geometry) (orb.Geometry, error) {
	var perr error
	out := project.Geometry(g, func(pt orb.Point) orb.Point {
		x, y, err := p.tr(pt[0], pt[1])
		if err != nil && perr == nil {
			perr = err
		}
		return orb.Point{x, y}
	})
	if perr != nil {
		return nil, fmt.Errorf("project: %w", perr)
	}
	return out, nil
}

type identity struct{}

// Identity returns a projector that leaves coordinates untouched, for data
// that is already metric (1 unit = 1 meter).
func Identity() Projector {
	return identity{}
}

func (identity) Project(g orb.Geometry) (orb.Geometry, error) {
	return g, nil
}
