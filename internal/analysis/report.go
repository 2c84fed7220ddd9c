package analysis

import (
	"encoding/json"
	"time"

	"github.com/joeblew999/plat-overlap/internal/format"
)

// Report is the final, JSON-serializable overlap report.
type Report struct {
	Target            TargetInfo       `json:"target" yaml:"target"`
	Source            *SourceRecord    `json:"source,omitempty" yaml:"source,omitempty"`
	Layers            []LayerSummary   `json:"layers" yaml:"layers"`
	Items             []format.Item    `json:"items" yaml:"items"`
	TotalOverlaps     int              `json:"totalOverlaps" yaml:"totalOverlaps"`
	TotalNotEvaluated int              `json:"totalNotEvaluated" yaml:"totalNotEvaluated"`
	PreservedAreaHa   float64          `json:"preservedAreaHa" yaml:"preservedAreaHa"`
	Inventory         []InventoryEntry `json:"inventory" yaml:"inventory"`
	Polygons          []Polygon        `json:"polygons" yaml:"-"`
	Performance       *Performance     `json:"performance,omitempty" yaml:"performance,omitempty"`
}

// TargetInfo describes the analysed parcel.
type TargetInfo struct {
	AreaHa  float64         `json:"areaHa" yaml:"areaHa"`
	WKT     string          `json:"wkt" yaml:"wkt"`
	GeoJSON json.RawMessage `json:"geojson,omitempty" yaml:"-"`
}

// SourceRecord is set when the target is a stored registry record.
type SourceRecord struct {
	Layer    string `json:"layer" yaml:"layer"`
	RecordID string `json:"recordId" yaml:"recordId"`
}

// LayerSummary holds the matches of one layer.
type LayerSummary struct {
	Layer        string        `json:"layer" yaml:"layer"`
	Name         string        `json:"name" yaml:"name"`
	Fill         string        `json:"fill,omitempty" yaml:"fill,omitempty"`
	Stroke       string        `json:"stroke,omitempty" yaml:"stroke,omitempty"`
	Items        []format.Item `json:"items" yaml:"items"`
	Overlaps     int           `json:"overlaps" yaml:"overlaps"`
	NotEvaluated int           `json:"notEvaluated" yaml:"notEvaluated"`
	TotalAreaHa  float64       `json:"totalAreaHa" yaml:"totalAreaHa"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// InventoryEntry is the raw record count of a layer, independent of overlap.
type InventoryEntry struct {
	Layer string `json:"layer" yaml:"layer"`
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Polygon is an intersection ready for map overlay.
type Polygon struct {
	Layer    string          `json:"layer"`
	RecordID string          `json:"recordId"`
	Label    string          `json:"label"`
	Fill     string          `json:"fill,omitempty"`
	Stroke   string          `json:"stroke,omitempty"`
	WKT      string          `json:"wkt"`
	GeoJSON  json.RawMessage `json:"geojson,omitempty"`
}

// Performance holds the timings of one analysis.
type Performance struct {
	Started time.Time     `json:"started" yaml:"started"`
	TotalMs float64       `json:"totalMs" yaml:"totalMs"`
	Layers  []LayerTiming `json:"layers" yaml:"layers"`
	// Cached is set when the report was served from the report cache; the
	// timings are those of the run that filled it.
	Cached bool `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// LayerTiming is the timing of one layer.
type LayerTiming struct {
	Layer      string  `json:"layer" yaml:"layer"`
	Ms         float64 `json:"ms" yaml:"ms"`
	Candidates int     `json:"candidates" yaml:"candidates"`
	Overlaps   int     `json:"overlaps" yaml:"overlaps"`
	Bulk       bool    `json:"bulk" yaml:"bulk"`
	Fallback   bool    `json:"fallback" yaml:"fallback"`
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
