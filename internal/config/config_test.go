package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"BACKEND", "MIN_OVERLAP_HA", "REGISTRY_DISCARD_PERCENT", "GEOGRAPHIC_SRID", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.Backend != BackendMemory {
		t.Errorf("backend=%q, want memory", cfg.Backend)
	}
	if cfg.MinOverlapHa != 0.001 || cfg.RegistryDiscardPercent != 98 {
		t.Errorf("thresholds=%v/%v", cfg.MinOverlapHa, cfg.RegistryDiscardPercent)
	}
	if cfg.GeographicSRID != 4674 {
		t.Errorf("srid=%d", cfg.GeographicSRID)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"localhost:9092"}) {
		t.Errorf("brokers=%v", cfg.KafkaBrokers)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BACKEND", "PostGres")
	t.Setenv("MIN_OVERLAP_HA", "0.5")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092 ,")
	t.Setenv("PREP_WORKERS", "not-a-number")

	cfg := FromEnv()
	if cfg.Backend != BackendPostgres {
		t.Errorf("backend=%q", cfg.Backend)
	}
	if cfg.MinOverlapHa != 0.5 {
		t.Errorf("min=%v", cfg.MinOverlapHa)
	}
	if cfg.ReportCacheTTL != 90*time.Second {
		t.Errorf("ttl=%v", cfg.ReportCacheTTL)
	}
	if !reflect.DeepEqual(cfg.KafkaBrokers, []string{"a:9092", "b:9092"}) {
		t.Errorf("brokers=%v", cfg.KafkaBrokers)
	}
	if cfg.PrepWorkers != 4 {
		t.Errorf("workers=%d, want default on bad input", cfg.PrepWorkers)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("REGISTRY_LAYER=car\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REGISTRY_LAYER", "")
	os.Unsetenv("REGISTRY_LAYER")

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	if got := FromEnv().RegistryLayer; got != "car" {
		t.Fatalf("registry layer=%q, want car", got)
	}
}
