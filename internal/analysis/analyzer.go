package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
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

// Catalog lists the layers to analyse, in report order.
type Catalog interface {
	Ordered(enabledOnly bool) []service.LayerConfig
}

// ReportCache stores encoded reports by normalized target WKT.
type ReportCache interface {
	Get(ctx context.Context, wkt string) ([]byte, bool, error)
	Put(ctx context.Context, wkt string, report []byte) error
}

// Step reports the completion of one layer.
type Step struct {
	Layer        string        `json:"layer"`
	Name         string        `json:"name"`
	Index        int           `json:"index"`
	Total        int           `json:"total"`
	Overlaps     int           `json:"overlaps"`
	NotEvaluated int           `json:"notEvaluated"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Progress is called after each layer.
type Progress func(Step)

// Options configures an Analyzer.
type Options struct {
	Catalog     Catalog
	Store       layer.Store
	Normalizer  *geometry.Normalizer
	Engine      *overlap.Engine
	Formatters  *format.Registry
	Aggregator  *Aggregator
	Cache       ReportCache
	Metrics     *metrics.Recorder
	Logger      *zerolog.Logger
	PerfLogPath string
}

// Analyzer runs complete analyses.
type Analyzer struct {
	opts Options
	proc *Processor

	perfMu sync.Mutex
}

// New creates an Analyzer. It fails with format.ErrMissingFormatter when a
// catalog layer has no formatter.
func New(opts Options) (*Analyzer, error) {
	if opts.Catalog == nil || opts.Store == nil || opts.Normalizer == nil || opts.Engine == nil || opts.Formatters == nil {
		return nil, errors.New("analysis: catalog, store, normalizer, engine and formatters are required")
	}
	if opts.Aggregator == nil {
		opts.Aggregator = NewAggregator()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	a := &Analyzer{
		opts: opts,
		proc: NewProcessor(opts.Normalizer, opts.Engine, opts.Formatters, opts.Metrics, opts.Logger),
	}
	if err := opts.Formatters.Validate(ids(opts.Catalog.Ordered(false))); err != nil {
		return nil, err
	}
	return a, nil
}

func ids(layers []service.LayerConfig) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.ID
	}
	return out
}

// AnalyzeWKT analyses a parcel given as WKT in the geographic CRS.
// It fails with overlap.ErrInvalidTarget when the parcel cannot be parsed.
func (a *Analyzer) AnalyzeWKT(ctx context.Context, wkt string, progress Progress) (*Report, error) {
	t, err := overlap.NewTarget(a.opts.Normalizer, a.opts.Engine.Projector(), wkt)
	if err != nil {
		a.opts.Metrics.Analysis("invalid_target")
		return nil, err
	}

	if rep, ok := a.cached(ctx, t.WKT); ok {
		a.opts.Metrics.Analysis("ok")
		replay(rep, progress)
		return rep, nil
	}

	rep, err := a.run(ctx, t, progress)
	if err != nil {
		return nil, err
	}
	a.store(ctx, t.WKT, rep)
	return rep, nil
}

// AnalyzeRecord analyses a stored record, typically a registry parcel, by
// reusing its geometry. The id lookup is trimmed and case-insensitive.
func (a *Analyzer) AnalyzeRecord(ctx context.Context, layerID, id string, progress Progress) (*Report, error) {
	rec, err := a.opts.Store.Record(ctx, layerID, id)
	if err != nil {
		return nil, err
	}

	g := rec.Geometry
	if g == nil {
		src := rec.UsableWKT
		if src == "" {
			src = rec.WKT
		}
		if g, err = a.opts.Normalizer.Parse(src); err != nil {
			a.opts.Metrics.Analysis("invalid_target")
			return nil, fmt.Errorf("%w: record %s/%s: %w", overlap.ErrInvalidTarget, layerID, id, err)
		}
	}
	t, err := overlap.TargetFromGeometry(a.opts.Engine.Projector(), g)
	if err != nil {
		a.opts.Metrics.Analysis("invalid_target")
		return nil, err
	}

	rep, err := a.run(ctx, t, progress)
	if err != nil {
		return nil, err
	}
	rep.Source = &SourceRecord{Layer: layerID, RecordID: rec.ID}
	return rep, nil
}

func (a *Analyzer) run(ctx context.Context, t *overlap.Target, progress Progress) (*Report, error) {
	start := time.Now()
	log := logger.FromContext(logger.WithComponent(ctx, "analysis"), a.opts.Logger)

	catalog := a.opts.Catalog.Ordered(true)
	if err := a.opts.Formatters.Validate(ids(catalog)); err != nil {
		a.opts.Metrics.Analysis("error")
		return nil, err
	}

	inventory := make(map[string]int, len(catalog))
	for _, lc := range catalog {
		n, err := a.opts.Store.Count(ctx, lc.ID)
		if err != nil {
			log.Warn().Err(err).Str("layer", lc.ID).Msg("count failed")
			continue
		}
		inventory[lc.ID] = n
	}

	perf := &Performance{Started: start.UTC()}
	results := make([]LayerResult, 0, len(catalog))
	for i, lc := range catalog {
		res, err := a.proc.Process(ctx, t, lc, a.opts.Store)
		if err != nil {
			a.opts.Metrics.Analysis("error")
			return nil, fmt.Errorf("layer %s: %w", lc.ID, err)
		}
		results = append(results, res)
		perf.Layers = append(perf.Layers, LayerTiming{
			Layer:      lc.ID,
			Ms:         ms(res.Duration),
			Candidates: res.Candidates,
			Overlaps:   res.Overlaps(),
			Bulk:       res.Bulk,
			Fallback:   res.Fallback,
		})
		if progress != nil {
			progress(Step{
				Layer:        lc.ID,
				Name:         lc.Name,
				Index:        i + 1,
				Total:        len(catalog),
				Overlaps:     res.Overlaps(),
				NotEvaluated: res.NotEvaluated,
				Elapsed:      res.Duration,
			})
		}
	}

	rep := a.opts.Aggregator.Aggregate(t, results, catalog, inventory)
	perf.TotalMs = ms(time.Since(start))
	rep.Performance = perf

	log.Info().
		Int("layers", len(catalog)).
		Int("overlaps", rep.TotalOverlaps).
		Int("not_evaluated", rep.TotalNotEvaluated).
		Float64("target_ha", t.AreaHa).
		Float64("total_ms", perf.TotalMs).
		Msg("analysis finished")
	a.opts.Metrics.Analysis("ok")
	a.writePerf(log, perf)
	return rep, nil
}

func (a *Analyzer) cached(ctx context.Context, wkt string) (*Report, bool) {
	if a.opts.Cache == nil {
		return nil, false
	}
	data, ok, err := a.opts.Cache.Get(ctx, wkt)
	if err != nil {
		a.opts.Metrics.ReportCache("error")
		a.opts.Logger.Warn().Err(err).Msg("report cache read failed")
		return nil, false
	}
	if !ok {
		a.opts.Metrics.ReportCache("miss")
		return nil, false
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		a.opts.Metrics.ReportCache("error")
		return nil, false
	}
	a.opts.Metrics.ReportCache("hit")
	return &rep, true
}

// replay reports a cached report layer by layer so streaming callers see
// the same steps as for a fresh run.
func replay(rep *Report, progress Progress) {
	if rep.Performance != nil {
		rep.Performance.Cached = true
	}
	if progress == nil {
		return
	}
	for i, s := range rep.Layers {
		progress(Step{
			Layer:        s.Layer,
			Name:         s.Name,
			Index:        i + 1,
			Total:        len(rep.Layers),
			Overlaps:     s.Overlaps,
			NotEvaluated: s.NotEvaluated,
		})
	}
}

func (a *Analyzer) store(ctx context.Context, wkt string, rep *Report) {
	if a.opts.Cache == nil {
		return
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := a.opts.Cache.Put(ctx, wkt, data); err != nil {
		a.opts.Logger.Warn().Err(err).Msg("report cache write failed")
	}
}

// writePerf appends one JSON line per analysis to the performance log.
func (a *Analyzer) writePerf(log *zerolog.Logger, perf *Performance) {
	if a.opts.PerfLogPath == "" {
		return
	}
	a.perfMu.Lock()
	defer a.perfMu.Unlock()

	f, err := os.OpenFile(a.opts.PerfLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("open performance log")
		return
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(perf); err != nil {
		log.Warn().Err(err).Msg("write performance log")
	}
}
