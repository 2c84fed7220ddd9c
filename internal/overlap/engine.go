package overlap

import (
	"fmt"

	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/geometry"
)

const (
	// DefaultMinAreaHa is the smallest reportable intersection. Anything
	// below it is coordinate-precision noise.
	DefaultMinAreaHa = 0.001
	// DefaultRegistryDiscardPercent is the share of a registry record's own
	// area above which the overlap is treated as the same parcel.
	DefaultRegistryDiscardPercent = 98.0
)

// Candidate is one reference record as seen by the engine.
type Candidate struct {
	Geometry *geos.Geom
	// AreaM2 is the record's precomputed own area. Zero means unknown, in
	// which case it is measured from Geometry.
	AreaM2 float64
}

// Result describes a reportable overlap.
type Result struct {
	Geometry           *geos.Geom
	AreaM2             float64
	AreaHa             float64
	PercentOfTarget    float64
	PercentOfCandidate float64
	CandidateAreaM2    float64
}

// Engine evaluates candidates against a target.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	proj           geometry.Projector
	minAreaHa      float64
	discardPercent float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinAreaHa overrides the sliver threshold.
func WithMinAreaHa(ha float64) Option {
	return func(e *Engine) { e.minAreaHa = ha }
}

// WithRegistryDiscardPercent overrides the registry same-parcel threshold.
func WithRegistryDiscardPercent(pct float64) Option {
	return func(e *Engine) { e.discardPercent = pct }
}

// NewEngine creates an engine measuring areas through p.
func NewEngine(p geometry.Projector, opts ...Option) *Engine {
	e := &Engine{
		proj:           p,
		minAreaHa:      DefaultMinAreaHa,
		discardPercent: DefaultRegistryDiscardPercent,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Projector returns the metric projector used for measurement.
func (e *Engine) Projector() geometry.Projector {
	return e.proj
}

// Evaluate tests one candidate against the target.
//
// It returns (nil, nil) when there is no reportable overlap, and an error
// only when a geometry operation failed; the caller counts that candidate
// as not evaluated. registry enables the same-parcel discard rule.
func (e *Engine) Evaluate(t *Target, c Candidate, registry bool) (*Result, error) {
	if t == nil || t.Geometry == nil {
		return nil, ErrInvalidTarget
	}
	if c.Geometry == nil {
		return nil, fmt.Errorf("%w: candidate has no geometry", geometry.ErrInvalidGeometry)
	}

	var inter *geos.Geom
	err := geometry.Guard(func() error {
		if !geometry.BoundsIntersect(t.Bounds, c.Geometry.Bounds()) {
			return nil
		}
		if !t.Geometry.Intersects(c.Geometry) {
			return nil
		}
		inter = t.Geometry.Intersection(c.Geometry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if inter == nil {
		return nil, nil
	}
	return e.Measure(t, inter, c, registry)
}

// Measure applies the area math and discard rules to an intersection that
// was already computed, either by Evaluate or server-side by a store.
func (e *Engine) Measure(t *Target, inter *geos.Geom, c Candidate, registry bool) (*Result, error) {
	if inter == nil {
		return nil, nil
	}
	var empty bool
	if err := geometry.Guard(func() error {
		empty = inter.IsEmpty()
		return nil
	}); err != nil {
		return nil, err
	}
	if empty {
		return nil, nil
	}

	areaM2, err := geometry.AreaM2(inter, e.proj)
	if err != nil {
		return nil, err
	}
	areaHa := geometry.Hectares(areaM2)
	if areaHa < e.minAreaHa {
		return nil, nil
	}

	var pctTarget float64
	if t.AreaM2 > 0 {
		pctTarget = areaM2 / t.AreaM2 * 100
	}

	candArea := c.AreaM2
	if candArea <= 0 && c.Geometry != nil {
		candArea, err = geometry.AreaM2(c.Geometry, e.proj)
		if err != nil {
			return nil, err
		}
	}
	var pctCand float64
	if candArea > 0 {
		pctCand = areaM2 / candArea * 100
	}

	if registry && pctCand >= e.discardPercent {
		return nil, nil
	}

	return &Result{
		Geometry:           inter,
		AreaM2:             areaM2,
		AreaHa:             areaHa,
		PercentOfTarget:    pctTarget,
		PercentOfCandidate: pctCand,
		CandidateAreaM2:    candArea,
	}, nil
}
