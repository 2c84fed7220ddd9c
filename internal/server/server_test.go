package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/config"
	"github.com/joeblew999/plat-overlap/internal/layer"
)

const parcel = "POLYGON((-48.30 -10.20,-48.29 -10.20,-48.29 -10.19,-48.30 -10.19,-48.30 -10.20))"

const zoningSource = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"id":"z1","zone":"ZEE"},"geometry":{"type":"Polygon","coordinates":[[[-48.30,-10.20],[-48.295,-10.20],[-48.295,-10.19],[-48.30,-10.19],[-48.30,-10.20]]]}}
]}`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sources", "zoning.geojson"), []byte(zoningSource), 0o644); err != nil {
		t.Fatal(err)
	}
	return config.Config{
		DataDir:                dir,
		Backend:                config.BackendMemory,
		GeographicSRID:         4674,
		MinOverlapHa:           0.001,
		RegistryDiscardPercent: 98,
		RegistryLayer:          "sicar",
		CandidateCacheSize:     16,
		MetricsEnabled:         true,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	s, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func analyze(t *testing.T, s *Server) *analysis.Report {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"wkt": parcel})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	var rep analysis.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &rep
}

func TestServer_AnalyzeFromSources(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	rep := analyze(t, s)
	if rep.TotalOverlaps != 1 || len(rep.Items) != 1 || rep.Items[0].Layer != "zoning" {
		t.Fatalf("overlaps=%d items=%+v", rep.TotalOverlaps, rep.Items)
	}
	if p := rep.Items[0].PercentOfTarget; p < 49 || p > 51 {
		t.Fatalf("percent of target=%v want ~50", p)
	}

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "overlap_analyses_total") {
		t.Fatalf("metrics missing analyses counter:\n%s", w.Body)
	}
}

func TestServer_RequestID(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("request id=%q want req-42", got)
	}

	w = httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("no generated request id")
	}
}

func TestServer_OpenAPI(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	paths := s.OpenAPI().Paths
	for _, p := range []string{"/api/v1/analyses", "/api/v1/analyses/stream", "/api/v1/layers/{id}/invalidate", "/api/v1/tables"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
}

func TestServer_BuildErrors(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown backend":      func(c *config.Config) { c.Backend = "oracle" },
		"unknown registry":     func(c *config.Config) { c.RegistryLayer = "nope" },
		"missing preservation": func(c *config.Config) { c.PreservationFile = filepath.Join(c.DataDir, "missing.yaml") },
		"postgres without dsn": func(c *config.Config) { c.Backend = config.BackendPostgres },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			mutate(&cfg)
			if _, err := New(context.Background(), cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestServer_CatalogChangeBumpsReportCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()
	cfg.ReportCacheTTL = time.Minute
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	analyze(t, s)
	if len(mr.Keys()) != 1 {
		t.Fatalf("report not cached: keys=%v", mr.Keys())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.Catalog().Touch("zoning")
		gen, err := s.reports.Generation(ctx)
		if err != nil {
			t.Fatalf("Generation: %v", err)
		}
		if gen > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("catalog change did not invalidate the report cache")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestJobs_NeedDatabase(t *testing.T) {
	cfg := testConfig(t)
	if _, err := RunPrep(context.Background(), cfg, "sicar", nil, nil); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("prep err=%v want ErrNoDatabase", err)
	}
	src := filepath.Join(cfg.DataDir, "sources", "zoning.geojson")
	if _, err := Import(context.Background(), cfg, "zoning", src, "id"); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("import err=%v want ErrNoDatabase", err)
	}
	if _, err := Import(context.Background(), cfg, "Bad-ID", src, "id"); !errors.Is(err, layer.ErrUnknownLayer) {
		t.Fatalf("import err=%v want ErrUnknownLayer", err)
	}
}
