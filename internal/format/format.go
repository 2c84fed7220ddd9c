// Package format turns overlaps into displayable report items, one
// formatter per reference layer.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/overlap"
)

// ErrMissingFormatter means a configured layer has no formatter. It is a
// configuration defect and is surfaced immediately.
var ErrMissingFormatter = errors.New("missing formatter")

// Item is one overlap as shown in the report.
type Item struct {
	Layer           string            `json:"layer" yaml:"layer"`
	RecordID        string            `json:"recordId" yaml:"recordId"`
	Name            string            `json:"name,omitempty" yaml:"name,omitempty"`
	Label           string            `json:"label" yaml:"label"`
	AreaHa          float64           `json:"areaHa" yaml:"areaHa"`
	PercentOfTarget float64           `json:"percentOfTarget" yaml:"percentOfTarget"`
	PercentOfRecord float64           `json:"percentOfRecord" yaml:"percentOfRecord"`
	PreservedAreaHa *float64          `json:"preservedAreaHa,omitempty" yaml:"preservedAreaHa,omitempty"`
	Attributes      map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	PolygonWKT      string            `json:"polygonWkt,omitempty" yaml:"polygonWkt,omitempty"`
	PolygonGeoJSON  json.RawMessage   `json:"polygonGeojson,omitempty" yaml:"-"`

	// Geometry is the intersection, kept for grouping.
	Geometry *geos.Geom `json:"-" yaml:"-"`
}

// Formatter builds the report item of one overlap.
type Formatter interface {
	Format(rec layer.Record, res *overlap.Result) Item
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(rec layer.Record, res *overlap.Result) Item

func (f FormatterFunc) Format(rec layer.Record, res *overlap.Result) Item {
	return f(rec, res)
}

// Registry dispatches on layer id.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Formatter)}
}

// Register binds f to layerID, replacing any previous formatter.
func (r *Registry) Register(layerID string, f Formatter) {
	r.mu.Lock()
	r.formatters[layerID] = f
	r.mu.Unlock()
}

// Get returns the formatter of layerID.
func (r *Registry) Get(layerID string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[layerID]
	if !ok {
		return nil, fmt.Errorf("%w: layer %q", ErrMissingFormatter, layerID)
	}
	return f, nil
}

// Format formats one overlap of layerID and stamps the item with the layer.
func (r *Registry) Format(layerID string, rec layer.Record, res *overlap.Result) (Item, error) {
	f, err := r.Get(layerID)
	if err != nil {
		return Item{}, err
	}
	it := f.Format(rec, res)
	it.Layer = layerID
	return it, nil
}

// Validate fails when any of layerIDs has no formatter.
func (r *Registry) Validate(layerIDs []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, id := range layerIDs {
		if _, ok := r.formatters[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingFormatter, strings.Join(missing, ", "))
	}
	return nil
}

// Layers returns the registered layer ids, sorted.
func (r *Registry) Layers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.formatters))
	for id := range r.formatters {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// newItem fills the fields shared by every layer. With polygon, the
// intersection is encoded for map overlay; encoding failures leave the
// polygon fields empty.
func newItem(rec layer.Record, res *overlap.Result, polygon bool) Item {
	it := Item{RecordID: rec.ID}
	if res == nil {
		return it
	}
	it.AreaHa = res.AreaHa
	it.PercentOfTarget = res.PercentOfTarget
	it.PercentOfRecord = res.PercentOfCandidate
	it.Geometry = res.Geometry
	if polygon && res.Geometry != nil {
		if wkt, gj, err := geometry.Encode(res.Geometry); err == nil {
			it.PolygonWKT = wkt
			it.PolygonGeoJSON = gj
		}
	}
	return it
}

// attrs copies the named attributes as display strings.
func attrs(rec layer.Record, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = rec.Attrs.String(k)
	}
	return out
}
