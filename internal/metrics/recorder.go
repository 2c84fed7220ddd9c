package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Candidate outcomes.
const (
	OutcomeOverlap      = "overlap"
	OutcomeNone         = "none"
	OutcomeNotEvaluated = "not_evaluated"
)

// Recorder holds the domain collectors. A nil *Recorder records nothing.
type Recorder struct {
	analyses      *prometheus.CounterVec
	layerDuration *prometheus.HistogramVec
	candidates    *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	reportCache   *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_analyses_total",
			Help: "Overlap analyses by outcome (ok|invalid_target|error).",
		}, []string{"outcome"}),
		layerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "overlap_layer_duration_seconds",
			Help:    "Time spent evaluating one reference layer.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"layer"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_candidates_total",
			Help: "Candidate records evaluated per layer by outcome.",
		}, []string{"layer", "outcome"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_bulk_fallbacks_total",
			Help: "Layers that fell back from the bulk query to per-record evaluation.",
		}, []string{"layer"}),
		reportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_report_cache_total",
			Help: "Report cache lookups by outcome (hit|miss|error).",
		}, []string{"outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlap_invalidations_total",
			Help: "Layer invalidations by source (api|kafka|catalog) and outcome (ok|error).",
		}, []string{"source", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(r.analyses, r.layerDuration, r.candidates, r.fallbacks, r.reportCache, r.invalidations)
	}
	return r
}

func (r *Recorder) Analysis(outcome string) {
	if r == nil {
		return
	}
	r.analyses.WithLabelValues(outcome).Inc()
}

func (r *Recorder) LayerDuration(layer string, d time.Duration) {
	if r == nil {
		return
	}
	r.layerDuration.WithLabelValues(layer).Observe(d.Seconds())
}

func (r *Recorder) Candidates(layer, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.candidates.WithLabelValues(layer, outcome).Add(float64(n))
}

func (r *Recorder) BulkFallback(layer string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(layer).Inc()
}

func (r *Recorder) ReportCache(outcome string) {
	if r == nil {
		return
	}
	r.reportCache.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Invalidation(source string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.invalidations.WithLabelValues(source, outcome).Inc()
}
