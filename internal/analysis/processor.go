// Package analysis runs an overlap analysis of a parcel against every
// reference layer and shapes the report.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-overlap/internal/format"
	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/logger"
	"github.com/joeblew999/plat-overlap/internal/metrics"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// LayerResult is the outcome of one layer before aggregation.
type LayerResult struct {
	Layer        string
	Items        []format.Item
	Candidates   int
	NotEvaluated int
	Bulk         bool
	Fallback     bool
	Duration     time.Duration
	// Err records a query failure that left the layer empty.
	Err error
}

// Overlaps returns the number of matched records.
func (r LayerResult) Overlaps() int {
	return len(r.Items)
}

// Processor evaluates the candidates of one layer.
type Processor struct {
	norm       *geometry.Normalizer
	engine     *overlap.Engine
	formatters *format.Registry
	metrics    *metrics.Recorder
	log        *zerolog.Logger
}

// NewProcessor creates a processor. rec and log may be nil.
func NewProcessor(n *geometry.Normalizer, e *overlap.Engine, f *format.Registry, rec *metrics.Recorder, log *zerolog.Logger) *Processor {
	if log == nil {
		log = logger.Nop()
	}
	return &Processor{norm: n, engine: e, formatters: f, metrics: rec, log: log}
}

// Process evaluates lc against the target.
//
// Stores that compute intersections server-side are asked first; when that
// fails or finds nothing, every candidate is evaluated locally. After a
// successful bulk pass, candidates the bulk query cannot see (no usable
// geometry) are still evaluated locally. A cancelled ctx stops the loop and
// returns what was collected together with ctx.Err().
func (p *Processor) Process(ctx context.Context, t *overlap.Target, lc service.LayerConfig, store layer.Store) (res LayerResult, err error) {
	start := time.Now()
	res.Layer = lc.ID
	log := logger.FromContext(logger.WithLayer(ctx, lc.ID), p.log)

	f, ferr := p.formatters.Get(lc.ID)
	if ferr != nil {
		return res, ferr
	}

	defer func() {
		res.Duration = time.Since(start)
		p.metrics.LayerDuration(lc.ID, res.Duration)
		p.metrics.Candidates(lc.ID, metrics.OutcomeOverlap, len(res.Items))
		p.metrics.Candidates(lc.ID, metrics.OutcomeNotEvaluated, res.NotEvaluated)
		p.metrics.Candidates(lc.ID, metrics.OutcomeNone, res.Candidates-len(res.Items)-res.NotEvaluated)
	}()

	seen := map[string]bool{}
	if bulk, ok := layer.AsIntersector(store); ok {
		hits, err := bulk.Intersect(ctx, lc.ID, t.WKT)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("bulk intersection failed, evaluating per record")
		case len(hits) == 0:
			log.Debug().Msg("bulk intersection found nothing, evaluating per record")
		default:
			res.Bulk = true
			for _, h := range hits {
				seen[h.Record.ID] = true
				p.measureHit(t, lc, f, h, &res)
			}
		}
		if !res.Bulk {
			res.Fallback = true
			p.metrics.BulkFallback(lc.ID)
		}
	}

	cands, err := store.Candidates(ctx, lc.ID, t.Bounds)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Error().Err(err).Msg("candidate query failed")
		res.Err = err
		return res, nil
	}

	for _, rec := range cands {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.Bulk && (seen[rec.ID] || hasUsable(rec)) {
			continue
		}
		p.evaluate(t, lc, f, rec, &res)
	}

	log.Debug().
		Int("candidates", res.Candidates).
		Int("overlaps", len(res.Items)).
		Int("not_evaluated", res.NotEvaluated).
		Bool("bulk", res.Bulk).
		Dur("elapsed", time.Since(start)).
		Msg("layer processed")
	return res, nil
}

func hasUsable(rec layer.Record) bool {
	return rec.Geometry != nil || rec.UsableWKT != ""
}

func (p *Processor) evaluate(t *overlap.Target, lc service.LayerConfig, f format.Formatter, rec layer.Record, res *LayerResult) {
	res.Candidates++

	g := rec.Geometry
	if g == nil {
		src := rec.UsableWKT
		if src == "" {
			src = rec.WKT
		}
		parsed, err := p.norm.Parse(src)
		if err != nil {
			res.NotEvaluated++
			return
		}
		g = parsed
	}

	r, err := p.engine.Evaluate(t, overlap.Candidate{Geometry: g, AreaM2: rec.AreaM2}, lc.Registry)
	if err != nil {
		res.NotEvaluated++
		return
	}
	if r != nil {
		p.add(lc, f, rec, r, res)
	}
}

func (p *Processor) measureHit(t *overlap.Target, lc service.LayerConfig, f format.Formatter, h layer.Hit, res *LayerResult) {
	res.Candidates++

	if isEmptyWKT(h.IntersectionWKT) {
		return
	}
	inter, err := p.norm.Parse(h.IntersectionWKT)
	if err != nil {
		res.NotEvaluated++
		return
	}

	c := overlap.Candidate{AreaM2: h.Record.AreaM2}
	if c.AreaM2 <= 0 {
		src := h.Record.UsableWKT
		if src == "" {
			src = h.Record.WKT
		}
		g, err := p.norm.Parse(src)
		if err != nil {
			// without a candidate area the registry discard cannot apply
			res.NotEvaluated++
			return
		}
		c.Geometry = g
	}
	r, err := p.engine.Measure(t, inter, c, lc.Registry)
	if err != nil {
		res.NotEvaluated++
		return
	}
	if r != nil {
		p.add(lc, f, h.Record, r, res)
	}
}

func (p *Processor) add(lc service.LayerConfig, f format.Formatter, rec layer.Record, r *overlap.Result, res *LayerResult) {
	it := f.Format(rec, r)
	it.Layer = lc.ID
	res.Items = append(res.Items, it)
}

func isEmptyWKT(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.HasSuffix(strings.ToUpper(s), "EMPTY")
}
