package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
)

// Encode renders g as WKT and as a GeoJSON geometry object for map overlays.
func Encode(g *geos.Geom) (string, json.RawMessage, error) {
	og, err := ToOrb(g)
	if err != nil {
		return "", nil, err
	}
	gj, err := json.Marshal(geojson.NewGeometry(og))
	if err != nil {
		return "", nil, fmt.Errorf("marshal geojson: %w", err)
	}
	return wkt.MarshalString(og), gj, nil
}
