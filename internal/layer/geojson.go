package layer

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// DecodeGeoJSON reads a FeatureCollection into raw records. The record id
// comes from the idProp property, falling back to the feature id and then
// to the feature's position. A numeric "area_m2" property is used as the
// record's own area.
func DecodeGeoJSON(r io.Reader, idProp string) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	out := make([]Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		attrs := Attrs(f.Properties)
		if attrs == nil {
			attrs = Attrs{}
		}
		id := attrs.String(idProp)
		if id == "" && f.ID != nil {
			id = Attrs{"id": f.ID}.String("id")
		}
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}

		rec := Record{ID: id, Attrs: attrs}
		if f.Geometry != nil {
			rec.WKT = wkt.MarshalString(f.Geometry)
		}
		if a, ok := attrs.Float("area_m2"); ok {
			rec.AreaM2 = a
		}
		out = append(out, rec)
	}
	return out, nil
}
