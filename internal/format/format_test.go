package format

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

func result(t *testing.T, areaHa float64) *overlap.Result {
	t.Helper()
	g, err := geometry.NewNormalizer(geometry.DefaultSRID).Parse("POLYGON((0 0,1 0,1 1,0 1,0 0))")
	if err != nil {
		t.Fatal(err)
	}
	return &overlap.Result{Geometry: g, AreaHa: areaHa, AreaM2: areaHa * 10000, PercentOfTarget: 40, PercentOfCandidate: 12}
}

func TestDefaultRegistry_CoversCatalog(t *testing.T) {
	r := DefaultRegistry(nil)
	var ids []string
	for _, l := range service.DefaultCatalog() {
		ids = append(ids, l.ID)
	}
	if err := r.Validate(ids); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(r.Layers()) != len(ids) {
		t.Fatalf("registered=%d catalog=%d", len(r.Layers()), len(ids))
	}
}

func TestRegistry_Missing(t *testing.T) {
	r := NewRegistry()
	r.Register("zoning", FormatterFunc(Zoning))

	if _, err := r.Get("sicar"); !errors.Is(err, ErrMissingFormatter) {
		t.Fatalf("Get err=%v", err)
	}
	err := r.Validate([]string{"zoning", "sicar", "embargoes"})
	if !errors.Is(err, ErrMissingFormatter) || !strings.Contains(err.Error(), "embargoes, sicar") {
		t.Fatalf("Validate err=%v", err)
	}
}

func TestSicar_StatusLabels(t *testing.T) {
	tests := []struct {
		status, want string
	}{
		{"AT", "ativo"},
		{" ca ", "cancelado"},
		{"pe", "pendente"},
		{"su", "suspenso"},
		{"XX", "XX"},
	}
	for _, tt := range tests {
		rec := layer.Record{ID: "TO-1", Attrs: layer.Attrs{"cod_imovel": "TO-1721000-ABC", "ind_status": tt.status}}
		it := Sicar(rec, result(t, 1))
		if it.Attributes["status"] != tt.want {
			t.Errorf("status %q -> %q want %q", tt.status, it.Attributes["status"], tt.want)
		}
		if it.Label != "Sicar - CAR: TO-1721000-ABC" {
			t.Errorf("label=%q", it.Label)
		}
		if it.PolygonWKT == "" || len(it.PolygonGeoJSON) == 0 {
			t.Error("registry items carry the intersection polygon")
		}
	}
}

func TestRegistry_FormatStampsLayer(t *testing.T) {
	r := DefaultRegistry(nil)
	it, err := r.Format(service.LayerQuilombolas, layer.Record{ID: "q1", Attrs: layer.Attrs{"nome": "Kalunga"}}, result(t, 2.5))
	if err != nil {
		t.Fatal(err)
	}
	if it.Layer != service.LayerQuilombolas || it.Label != "Quilombolas: Kalunga" {
		t.Fatalf("item=%+v", it)
	}
	if it.AreaHa != 2.5 || it.PercentOfTarget != 40 || it.PercentOfRecord != 12 {
		t.Fatalf("numbers=%+v", it)
	}
	if it.PolygonWKT != "" {
		t.Fatal("quilombolas items carry no polygon")
	}
}

func TestPhytoecology_PreservedArea(t *testing.T) {
	f := Phytoecology{Table: PreservationTable{"Cerrado": 50}}
	it := f.Format(layer.Record{ID: "1", Attrs: layer.Attrs{"phyto_name": "Cerrado"}}, result(t, 3))
	if it.PreservedAreaHa == nil || math.Abs(*it.PreservedAreaHa-1.5) > 1e-9 {
		t.Fatalf("preserved=%v want 1.5", it.PreservedAreaHa)
	}

	it = f.Format(layer.Record{ID: "2", Attrs: layer.Attrs{"phyto_name": "Desconhecida"}}, result(t, 3))
	if it.PreservedAreaHa == nil || *it.PreservedAreaHa != 0 {
		t.Fatalf("unknown region preserved=%v want 0", it.PreservedAreaHa)
	}
}

func TestProtectionArea_Label(t *testing.T) {
	it := ProtectionArea(layer.Record{Attrs: layer.Attrs{"unit_name": "APA Jalapão", "class_group": "US"}}, result(t, 1))
	if it.Label != "APA: APA Jalapão | Classe: US" {
		t.Fatalf("label=%q", it.Label)
	}
	if it = ProtectionArea(layer.Record{}, result(t, 1)); it.Label != "APA" {
		t.Fatalf("empty label=%q", it.Label)
	}
}

func TestDeforestationMapbiomas_Name(t *testing.T) {
	it := DeforestationMapbiomas(layer.Record{Attrs: layer.Attrs{"alert_code": 1234.0, "detection_year": "2023"}}, result(t, 1))
	if it.Name != "Alerta 1234" || it.Label != "MapBiomas: Alerta 1234 | Ano: 2023" {
		t.Fatalf("item=%+v", it)
	}
	if it = DeforestationMapbiomas(layer.Record{}, result(t, 1)); it.Name != "Alerta" {
		t.Fatalf("name=%q", it.Name)
	}
}

func TestFormatDate(t *testing.T) {
	tests := map[string]string{
		"2023-07-15":                 "15/07/2023",
		"2023-07-15 10:20:30":        "15/07/2023",
		"2023-07-15 10:20:30.123456": "15/07/2023",
		"2023-07-15T10:20:30Z":       "15/07/2023",
		"15/07/2023":                 "15/07/2023",
		"julho":                      "julho",
		"":                           "",
	}
	for in, want := range tests {
		if got := FormatDate(in); got != want {
			t.Errorf("FormatDate(%q)=%q want %q", in, got, want)
		}
	}
}

func TestPreservationTable(t *testing.T) {
	tbl := DefaultPreservationTable()
	if tbl.Percent("  cerrado ") != 35 {
		t.Fatalf("case-insensitive lookup failed: %v", tbl.Percent("  cerrado "))
	}
	if tbl.Percent("Mangue") != 0 {
		t.Fatal("unknown region must be 0")
	}

	path := filepath.Join(t.TempDir(), "preservation.yaml")
	_ = os.WriteFile(path, []byte("Cerrado: 50\nMangue: 100\n"), 0o644)
	loaded, err := LoadPreservationTable(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Percent("Cerrado") != 50 || loaded.Percent("Mangue") != 100 || loaded.Percent("Campinarana") != 20 {
		t.Fatalf("loaded=%v", loaded)
	}

	_ = os.WriteFile(path, []byte("Cerrado: 150\n"), 0o644)
	if _, err := LoadPreservationTable(path); err == nil {
		t.Fatal("out-of-range percentage accepted")
	}
}
