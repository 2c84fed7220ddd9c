package layer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/geometry"
)

func newMem() *MemoryStore {
	return NewMemoryStore(geometry.NewNormalizer(geometry.DefaultSRID))
}

func ids(recs []Record) string {
	var out []string
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return strings.Join(out, ",")
}

func TestMemoryStore_CandidatesByBounds(t *testing.T) {
	s := newMem()
	ctx := context.Background()
	for _, r := range []Record{
		{ID: "a", WKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"},
		{ID: "b", WKT: "POLYGON((10 10,11 10,11 11,10 11,10 10))"},
		{ID: "c", WKT: "POLYGON((0.5 0.5,2 0.5,2 2,0.5 2,0.5 0.5))"},
		{ID: "broken", WKT: "POLYGON((0 0,"},
	} {
		if err := s.Put("zoning", r); err != nil {
			t.Fatalf("Put %s: %v", r.ID, err)
		}
	}

	got, err := s.Candidates(ctx, "zoning", &geos.Box2D{MinX: 0.2, MinY: 0.2, MaxX: 0.8, MaxY: 0.8})
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	// unparseable records are always offered so they can be counted
	if ids(got) != "a,c,broken" {
		t.Fatalf("candidates=%s, want a,c,broken", ids(got))
	}

	all, _ := s.Candidates(ctx, "zoning", nil)
	if ids(all) != "a,b,c,broken" {
		t.Fatalf("all=%s", ids(all))
	}
	if n, _ := s.Count(ctx, "zoning"); n != 4 {
		t.Fatalf("count=%d want 4", n)
	}
}

func TestMemoryStore_PutReplacesByID(t *testing.T) {
	s := newMem()
	ctx := context.Background()
	_ = s.Put("sicar", Record{ID: "TO-1", WKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"})
	_ = s.Put("sicar", Record{ID: " to-1 ", WKT: "POLYGON((5 5,6 5,6 6,5 6,5 5))"})

	if n, _ := s.Count(ctx, "sicar"); n != 1 {
		t.Fatalf("count=%d want 1", n)
	}
	got, _ := s.Candidates(ctx, "sicar", &geos.Box2D{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1})
	if len(got) != 0 {
		t.Fatalf("old geometry still indexed: %s", ids(got))
	}
}

func TestMemoryStore_RecordLookup(t *testing.T) {
	s := newMem()
	_ = s.Put("sicar", Record{ID: "TO-1700000-ABC", WKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"})

	r, err := s.Record(context.Background(), "sicar", "  to-1700000-abc ")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if r.Geometry == nil {
		t.Fatal("record geometry not parsed")
	}
	if _, err := s.Record(context.Background(), "sicar", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestMemoryStore_RejectsBadLayerID(t *testing.T) {
	if err := newMem().Put("Layer; DROP", Record{}); !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("err=%v want ErrUnknownLayer", err)
	}
}

func TestMemoryStore_LoadGeoJSON(t *testing.T) {
	s := newMem()
	src := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"properties":{"nome":"Cerrado","area_m2":2500},
		 "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
		{"type":"Feature","properties":{"cod_imovel":"TO-1"},
		 "geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,3],[2,2]]]}}
	]}`

	n, err := s.LoadGeoJSON("phytoecology", strings.NewReader(src), "cod_imovel")
	if err != nil || n != 2 {
		t.Fatalf("LoadGeoJSON n=%d err=%v", n, err)
	}

	all, _ := s.Candidates(context.Background(), "phytoecology", nil)
	if ids(all) != "7,TO-1" {
		t.Fatalf("ids=%s want 7,TO-1", ids(all))
	}
	if all[0].AreaM2 != 2500 || all[0].Attrs.String("nome") != "Cerrado" {
		t.Fatalf("first=%+v", all[0])
	}
	if !strings.HasPrefix(all[1].WKT, "POLYGON") {
		t.Fatalf("wkt=%q", all[1].WKT)
	}
}

func TestMemoryStore_Reset(t *testing.T) {
	s := newMem()
	_ = s.Put("ipuca", Record{ID: "1", WKT: "POINT(1 1)"})
	if got := s.Layers(); len(got) != 1 || got[0] != "ipuca" {
		t.Fatalf("layers=%v", got)
	}
	s.Reset("ipuca")
	if n, _ := s.Count(context.Background(), "ipuca"); n != 0 {
		t.Fatalf("count=%d after reset", n)
	}
}

func TestAttrs(t *testing.T) {
	a := Attrs{"n": 12.0, "f": 1.5, "s": " 3,25 ", "nil": nil, "b": true}
	if a.String("n") != "12" || a.String("f") != "1.5" || a.String("nil") != "" || a.String("b") != "true" {
		t.Fatalf("String: %q %q %q", a.String("n"), a.String("f"), a.String("nil"))
	}
	if f, ok := a.Float("s"); !ok || f != 3.25 {
		t.Fatalf("Float(s)=%v,%v", f, ok)
	}
	if n, ok := a.Int("n"); !ok || n != 12 {
		t.Fatalf("Int(n)=%v,%v", n, ok)
	}
	if a.First("missing", "nil", "n") != "12" {
		t.Fatalf("First=%q", a.First("missing", "nil", "n"))
	}
}
