package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/format"
	"github.com/joeblew999/plat-overlap/internal/geometry"
	"github.com/joeblew999/plat-overlap/internal/invalidation"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/overlap"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// 1 unit = 1 m through the identity projector; 100 x 100 = 1 ha
const square1km = "POLYGON((0 0,1000 0,1000 1000,0 1000,0 0))"

func rect(x0, y0, x1, y1 float64) string {
	return fmt.Sprintf("POLYGON((%[1]g %[2]g,%[3]g %[2]g,%[3]g %[4]g,%[1]g %[4]g,%[1]g %[2]g))", x0, y0, x1, y1)
}

type recorded struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorded) Invalidate(_ context.Context, l string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, l)
	return nil
}

func newTestServices(t *testing.T) *Services {
	t.Helper()
	n := geometry.NewNormalizer(geometry.DefaultSRID)
	store := layer.NewMemoryStore(n)
	put := func(l string, rec layer.Record) {
		if err := store.Put(l, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	put(service.LayerSicar, layer.Record{ID: "TO-1", WKT: square1km, Attrs: layer.Attrs{"cod_imovel": "TO-1", "ind_status": "AT"}})
	put(service.LayerZoning, layer.Record{ID: "z1", WKT: rect(0, 0, 500, 1000), Attrs: layer.Attrs{"zone": "ZEE"}})

	bus := service.NewEventBus()
	catalog := service.NewLayerService(t.TempDir(), bus)
	a, err := analysis.New(analysis.Options{
		Catalog:    catalog,
		Store:      store,
		Normalizer: n,
		Engine:     overlap.NewEngine(geometry.Identity()),
		Formatters: format.DefaultRegistry(format.DefaultPreservationTable()),
	})
	if err != nil {
		t.Fatalf("analysis.New: %v", err)
	}
	return &Services{
		Catalog:     catalog,
		Sources:     service.NewSourceService(t.TempDir()),
		Bus:         bus,
		Store:       store,
		Analyzer:    a,
		Invalidator: &recorded{},
	}
}

func newMux(t *testing.T, svc *Services) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	cfg := huma.DefaultConfig("plat-overlap test", Version)
	cfg.Transformers = append(cfg.Transformers, LinkTransformer())
	api := humago.New(mux, cfg)
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(Features{Backend: "memory"}).RegisterRoutes(api)
	NewDBHandler(nil, layer.DuckDB).RegisterRoutes(api)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wktBody(wkt string) string {
	b, _ := json.Marshal(map[string]string{"wkt": wkt})
	return string(b)
}

func TestHealth(t *testing.T) {
	mux := newMux(t, newTestServices(t))
	w := do(t, mux, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if got := decode[HealthBody](t, w); got.Status != "ok" {
		t.Fatalf("got=%+v", got)
	}
	if links := strings.Join(w.Header().Values("Link"), ","); !strings.Contains(links, `rel="analyses"`) {
		t.Fatalf("links=%s", links)
	}
}

func TestInfo(t *testing.T) {
	mux := newMux(t, newTestServices(t))
	w := do(t, mux, http.MethodGet, "/api/v1/info", "")
	got := decode[InfoBody](t, w)
	if got.Name != "plat-overlap" || got.Backend != "memory" || got.DB {
		t.Fatalf("got=%+v", got)
	}
}

func TestLayers_ListAndGet(t *testing.T) {
	mux := newMux(t, newTestServices(t))

	w := do(t, mux, http.MethodGet, "/api/v1/layers", "")
	list := decode[[]service.LayerConfig](t, w)
	if len(list) != len(service.DefaultCatalog()) || list[0].ID != service.LayerSicar {
		t.Fatalf("got %d layers, first=%+v", len(list), list[0])
	}

	w = do(t, mux, http.MethodGet, "/api/v1/layers/sicar", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	links := strings.Join(w.Header().Values("Link"), ",")
	for _, want := range []string{`rel="invalidate"; method="POST"`, `</api/v1/layers/sicar>; rel="self"`, `rel="collection"`} {
		if !strings.Contains(links, want) {
			t.Fatalf("links=%s missing %s", links, want)
		}
	}

	if w := do(t, mux, http.MethodGet, "/api/v1/layers/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", w.Code)
	}
}

func TestLayers_PutPublishes(t *testing.T) {
	svc := newTestServices(t)
	mux := newMux(t, svc)
	ch := svc.Bus.Subscribe()
	defer svc.Bus.Unsubscribe(ch)

	w := do(t, mux, http.MethodPut, "/api/v1/layers/zoning", `{"name":"Zoneamento 2024","enabled":true,"order":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if got := decode[service.LayerConfig](t, w); got.Name != "Zoneamento 2024" || got.ID != service.LayerZoning {
		t.Fatalf("got=%+v", got)
	}
	select {
	case ev := <-ch:
		if ev.Resource != service.ResourceLayers || ev.ID != service.LayerZoning {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no catalog event")
	}

	if w := do(t, mux, http.MethodPut, "/api/v1/layers/nope", `{"name":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", w.Code)
	}
}

func TestLayers_Count(t *testing.T) {
	mux := newMux(t, newTestServices(t))
	w := do(t, mux, http.MethodGet, "/api/v1/layers/zoning/count", "")
	if got := decode[CountBody](t, w); got.Count != 1 || got.Layer != "zoning" {
		t.Fatalf("got=%+v", got)
	}
}

func TestLayers_Invalidate(t *testing.T) {
	svc := newTestServices(t)
	mux := newMux(t, svc)

	if w := do(t, mux, http.MethodPost, "/api/v1/layers/prodes/invalidate", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if got := svc.Invalidator.(*recorded).ids; len(got) != 1 || got[0] != "prodes" {
		t.Fatalf("invalidated=%v", got)
	}
	if w := do(t, mux, http.MethodPost, "/api/v1/layers/nope/invalidate", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown layer status=%d", w.Code)
	}

	svc.Invalidator = invalidation.InvalidatorFunc(func(context.Context, string) error { return errors.New("redis down") })
	if w := do(t, mux, http.MethodPost, "/api/v1/layers/prodes/invalidate", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("failing invalidator status=%d", w.Code)
	}
	svc.Invalidator = nil
	if w := do(t, mux, http.MethodPost, "/api/v1/layers/prodes/invalidate", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("no invalidator status=%d", w.Code)
	}
}

func TestAnalyze(t *testing.T) {
	mux := newMux(t, newTestServices(t))

	w := do(t, mux, http.MethodPost, "/api/v1/analyses", wktBody(square1km))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	rep := decode[analysis.Report](t, w)
	var zoning int
	for _, it := range rep.Items {
		if it.Layer == service.LayerZoning {
			zoning++
			if it.AreaHa < 49.99 || it.AreaHa > 50.01 {
				t.Fatalf("zoning area=%v want 50", it.AreaHa)
			}
		}
	}
	if zoning != 1 {
		t.Fatalf("zoning items=%d want 1 (items=%+v)", zoning, rep.Items)
	}
	if rep.Target.AreaHa < 99.99 || rep.Target.AreaHa > 100.01 {
		t.Fatalf("target area=%v want 100", rep.Target.AreaHa)
	}
}

func TestAnalyze_InvalidTarget(t *testing.T) {
	mux := newMux(t, newTestServices(t))
	for _, body := range []string{wktBody("POLYGON((0 0,1 1"), wktBody("POLYGON EMPTY"), `{"wkt":""}`} {
		if w := do(t, mux, http.MethodPost, "/api/v1/analyses", body); w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body=%s status=%d want 422", body, w.Code)
		}
	}
}

func TestAnalyzeRegistry(t *testing.T) {
	mux := newMux(t, newTestServices(t))

	w := do(t, mux, http.MethodGet, "/api/v1/analyses/registry/%20to-1%20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	rep := decode[analysis.Report](t, w)
	if rep.Source == nil || rep.Source.RecordID != "TO-1" {
		t.Fatalf("source=%+v", rep.Source)
	}
	for _, it := range rep.Items {
		if it.Layer == service.LayerSicar {
			t.Fatalf("the parcel itself was reported: %+v", it)
		}
	}

	if w := do(t, mux, http.MethodGet, "/api/v1/analyses/registry/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing record status=%d", w.Code)
	}
}

func TestAnalyzeStream(t *testing.T) {
	mux := newMux(t, newTestServices(t))

	w := do(t, mux, http.MethodPost, "/api/v1/analyses/stream", wktBody(square1km))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	body := w.Body.String()
	for _, want := range []string{"datastar-patch-signals", `"analysis"`, `"report"`, `"done":true`} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %s:\n%s", want, body)
		}
	}
	if n := strings.Count(body, `"analysis"`); n != len(service.DefaultCatalog()) {
		t.Fatalf("progress events=%d want %d", n, len(service.DefaultCatalog()))
	}
}

func TestAnalyzeStream_Errors(t *testing.T) {
	mux := newMux(t, newTestServices(t))

	if w := do(t, mux, http.MethodPost, "/api/v1/analyses/stream", "{"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json status=%d", w.Code)
	}
	if w := do(t, mux, http.MethodPost, "/api/v1/analyses/stream", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("no target status=%d", w.Code)
	}

	w := do(t, mux, http.MethodPost, "/api/v1/analyses/stream", wktBody("POLYGON EMPTY"))
	if !strings.Contains(w.Body.String(), `"error"`) {
		t.Fatalf("stream without error signal:\n%s", w.Body)
	}
}

func TestTables_NoDatabase(t *testing.T) {
	mux := newMux(t, newTestServices(t))
	if w := do(t, mux, http.MethodGet, "/api/v1/tables", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestEvents(t *testing.T) {
	svc := newTestServices(t)
	srv := httptest.NewServer(newMux(t, svc))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()

	// The subscription starts with the stream; publish until one is seen.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				svc.Catalog.Touch(service.LayerProdes)
			}
		}
	}()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.Contains(sc.Text(), `"change"`) && strings.Contains(sc.Text(), service.LayerProdes) {
			return
		}
	}
	t.Fatalf("no change event: %v", sc.Err())
}
