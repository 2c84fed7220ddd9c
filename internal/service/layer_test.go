package service

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLayerService_SeedsDefaultCatalog(t *testing.T) {
	s := NewLayerService(t.TempDir(), nil)

	ordered := s.Ordered(true)
	if len(ordered) != 17 {
		t.Fatalf("layers=%d want 17", len(ordered))
	}
	if ordered[0].ID != LayerSicar || ordered[len(ordered)-1].ID != LayerHighways {
		t.Fatalf("order: first=%s last=%s", ordered[0].ID, ordered[len(ordered)-1].ID)
	}
	reg, ok := s.Registry()
	if !ok || reg.ID != LayerSicar {
		t.Fatalf("registry=%+v ok=%v", reg, ok)
	}
}

func TestLayerService_UpdatePersistsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	s := NewLayerService(dir, bus)
	l, _ := s.Get(LayerHighways)
	l.Enabled = false
	if _, err := s.Update(LayerHighways, l); err != nil {
		t.Fatalf("Update: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Resource != ResourceLayers || ev.Action != "updated" || ev.ID != LayerHighways {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	if _, err := os.Stat(filepath.Join(dir, "layers.json")); err != nil {
		t.Fatalf("catalog not persisted: %v", err)
	}
	reloaded := NewLayerService(dir, nil)
	if got := len(reloaded.Ordered(true)); got != 16 {
		t.Fatalf("enabled after reload=%d want 16", got)
	}
}

func TestLayerService_NotFound(t *testing.T) {
	s := NewLayerService(t.TempDir(), nil)
	if _, err := s.Update("nope", LayerConfig{}); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("Update err=%v", err)
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("Delete err=%v", err)
	}
}

func TestLayerService_CreateGeneratesID(t *testing.T) {
	s := NewLayerService(t.TempDir(), nil)
	l, err := s.Create(LayerConfig{Name: "Áreas Úmidas 2024", Enabled: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.ID != "reas_midas_2024" {
		t.Fatalf("id=%q", l.ID)
	}
	if _, err := s.Create(LayerConfig{ID: l.ID, Name: "dup"}); err == nil {
		t.Fatal("duplicate id accepted")
	}
}

func TestSourceService(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sources")
	_ = os.MkdirAll(src, 0o755)
	_ = os.WriteFile(filepath.Join(src, "sicar.geojson"), make([]byte, 2048), 0o644)
	_ = os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644)

	s := NewSourceService(dir)
	files, err := s.List()
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	if files[0].Size != "2.0 KB" {
		t.Fatalf("size=%q", files[0].Size)
	}
	if _, err := s.Path("../etc/passwd"); err == nil {
		t.Fatal("path traversal accepted")
	}
}

func TestLayerService_SetRegistry(t *testing.T) {
	s := NewLayerService(t.TempDir(), nil)
	if err := s.SetRegistry(LayerSigef); err != nil {
		t.Fatalf("SetRegistry: %v", err)
	}
	reg, ok := s.Registry()
	if !ok || reg.ID != LayerSigef {
		t.Fatalf("registry=%+v ok=%v want sigef", reg, ok)
	}
	if l, _ := s.Get(LayerSicar); l.Registry {
		t.Fatal("sicar still flagged as registry")
	}
	if err := s.SetRegistry("nope"); !errors.Is(err, ErrLayerNotFound) {
		t.Fatalf("err=%v want ErrLayerNotFound", err)
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	for i := 0; i < 20; i++ {
		bus.Publish(Event{Resource: ResourceLayers, Action: "reloaded", ID: LayerProdes})
	}
	if got := bus.Dropped(); got != 4 {
		t.Fatalf("dropped=%d want 4", got)
	}
	ev := <-ch
	if ev.At.IsZero() || ev.ID != LayerProdes {
		t.Fatalf("event=%+v", ev)
	}
}
