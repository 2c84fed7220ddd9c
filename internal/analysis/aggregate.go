package analysis

import (
	"sort"
	"strings"

	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/format"
	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// Aggregator shapes layer results into a Report.
type Aggregator struct {
	// GroupedLayer is merged by region name. Empty disables grouping.
	GroupedLayer string
}

// NewAggregator groups the phyto-ecology layer.
func NewAggregator() *Aggregator {
	return &Aggregator{GroupedLayer: service.LayerPhytoecology}
}

// Aggregate builds the report. catalog supplies friendly names, colors and
// the inventory order; inventory maps layer id to its record count.
func (a *Aggregator) Aggregate(t *overlap.Target, results []LayerResult, catalog []service.LayerConfig, inventory map[string]int) *Report {
	meta := make(map[string]service.LayerConfig, len(catalog))
	for _, lc := range catalog {
		meta[lc.ID] = lc
	}

	rep := &Report{
		Target: TargetInfo{AreaHa: t.AreaHa, WKT: t.WKT},
		Layers: make([]LayerSummary, 0, len(results)),
	}
	if _, gj, err := geometry.Encode(t.Geometry); err == nil {
		rep.Target.GeoJSON = gj
	}

	for _, r := range results {
		items := r.Items
		if r.Layer == a.GroupedLayer {
			items = groupByName(items)
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].AreaHa > items[j].AreaHa })

		lc := meta[r.Layer]
		s := LayerSummary{
			Layer:        r.Layer,
			Name:         friendlyName(lc, r.Layer),
			Fill:         lc.Fill,
			Stroke:       lc.Stroke,
			Items:        items,
			Overlaps:     len(items),
			NotEvaluated: r.NotEvaluated,
		}
		if s.Items == nil {
			s.Items = []format.Item{}
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		for _, it := range items {
			s.TotalAreaHa += it.AreaHa
		}
		rep.Layers = append(rep.Layers, s)
	}

	sort.SliceStable(rep.Layers, func(i, j int) bool {
		return rep.Layers[i].TotalAreaHa > rep.Layers[j].TotalAreaHa
	})

	rep.Items = []format.Item{}
	rep.Polygons = []Polygon{}
	for _, s := range rep.Layers {
		rep.Items = append(rep.Items, s.Items...)
		rep.TotalOverlaps += s.Overlaps
		rep.TotalNotEvaluated += s.NotEvaluated
		for _, it := range s.Items {
			if s.Layer == a.GroupedLayer && it.PreservedAreaHa != nil {
				rep.PreservedAreaHa += *it.PreservedAreaHa
			}
			if it.PolygonWKT != "" {
				rep.Polygons = append(rep.Polygons, Polygon{
					Layer:    s.Layer,
					RecordID: it.RecordID,
					Label:    it.Label,
					Fill:     s.Fill,
					Stroke:   s.Stroke,
					WKT:      it.PolygonWKT,
					GeoJSON:  it.PolygonGeoJSON,
				})
			}
		}
	}

	rep.Inventory = make([]InventoryEntry, 0, len(catalog))
	for _, lc := range catalog {
		rep.Inventory = append(rep.Inventory, InventoryEntry{
			Layer: lc.ID,
			Name:  friendlyName(lc, lc.ID),
			Count: inventory[lc.ID],
		})
	}
	return rep
}

func friendlyName(lc service.LayerConfig, id string) string {
	if lc.Name != "" {
		return lc.Name
	}
	return id
}

// groupByName merges items sharing a name: areas and preserved areas are
// summed and intersection geometries unioned. Items without a name are kept
// as they are. Output keeps first-seen order.
func groupByName(items []format.Item) []format.Item {
	if len(items) < 2 {
		return items
	}

	var (
		out   []format.Item
		index = map[string]int{}
		ids   = map[string][]string{}
	)
	for _, it := range items {
		if it.Name == "" {
			out = append(out, it)
			continue
		}
		i, ok := index[it.Name]
		if !ok {
			index[it.Name] = len(out)
			ids[it.Name] = []string{it.RecordID}
			it.Label = format.PhytoGroupLabel(it.Name)
			out = append(out, it)
			continue
		}

		acc := &out[i]
		ids[it.Name] = append(ids[it.Name], it.RecordID)
		acc.AreaHa += it.AreaHa
		acc.PercentOfTarget += it.PercentOfTarget
		acc.PercentOfRecord = 0
		if it.PreservedAreaHa != nil {
			sum := *it.PreservedAreaHa
			if acc.PreservedAreaHa != nil {
				sum += *acc.PreservedAreaHa
			}
			acc.PreservedAreaHa = &sum
		}
		acc.Geometry = unionOrLarger(acc.Geometry, it.Geometry)
	}

	for i := range out {
		name := out[i].Name
		if name == "" || len(ids[name]) < 2 {
			continue
		}
		out[i].RecordID = strings.Join(ids[name], ",")
		if out[i].Geometry != nil {
			if wkt, gj, err := geometry.Encode(out[i].Geometry); err == nil {
				out[i].PolygonWKT = wkt
				out[i].PolygonGeoJSON = gj
			}
		}
	}
	return out
}

// unionGeoms is replaced in tests to force a failing union.
var unionGeoms = func(a, b *geos.Geom) *geos.Geom { return a.Union(b) }

// unionOrLarger unions a and b. When the union fails the geometry with the
// larger area is kept.
func unionOrLarger(a, b *geos.Geom) *geos.Geom {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	var u *geos.Geom
	err := geometry.Guard(func() error {
		u = unionGeoms(a, b)
		return nil
	})
	if err == nil && u != nil {
		return u
	}

	larger := a
	_ = geometry.Guard(func() error {
		if b.Area() > a.Area() {
			larger = b
		}
		return nil
	})
	return larger
}
