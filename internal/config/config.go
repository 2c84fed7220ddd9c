// Package config reads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects where reference layers are read from.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendDuckDB   Backend = "duckdb"
	BackendPostgres Backend = "postgres"
)

// Config holds every setting of the overlap service.
type Config struct {
	Addr       string
	DataDir    string
	LogLevel   string
	LogConsole bool

	Backend     Backend
	DatabaseURL string
	DuckDBName  string

	GeographicSRID         int
	MetricProj             string
	MinOverlapHa           float64
	RegistryDiscardPercent float64
	RegistryLayer          string

	CandidateCacheSize int
	RedisAddr          string
	ReportCacheTTL     time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	PerfLogPath      string
	PreservationFile string
	PrepWorkers      int

	MetricsEnabled bool
}

// LoadDotEnv loads .env files when present. Missing files are ignored and
// variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() Config {
	return Config{
		Addr:       getEnv("ADDR", ":8086"),
		DataDir:    getEnv("DATA_DIR", ".data"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogConsole: getBool("LOG_CONSOLE", false),

		Backend:     Backend(strings.ToLower(getEnv("BACKEND", string(BackendMemory)))),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DuckDBName:  getEnv("DUCKDB_NAME", "overlap"),

		GeographicSRID:         getInt("GEOGRAPHIC_SRID", 4674),
		MetricProj:             os.Getenv("METRIC_PROJ"),
		MinOverlapHa:           getFloat("MIN_OVERLAP_HA", 0.001),
		RegistryDiscardPercent: getFloat("REGISTRY_DISCARD_PERCENT", 98),
		RegistryLayer:          getEnv("REGISTRY_LAYER", "sicar"),

		CandidateCacheSize: getInt("CANDIDATE_CACHE_SIZE", 64),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		ReportCacheTTL:     getDuration("REPORT_CACHE_TTL", time.Hour),

		KafkaEnabled: getBool("KAFKA_ENABLED", false),
		KafkaBrokers: getList("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "layer-changes"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "overlap-invalidator"),

		PerfLogPath:      os.Getenv("PERF_LOG_PATH"),
		PreservationFile: os.Getenv("PRESERVATION_FILE"),
		PrepWorkers:      getInt("PREP_WORKERS", 4),

		MetricsEnabled: getBool("METRICS_ENABLED", true),
	}
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func getList(k, def string) []string {
	raw := getEnv(k, def)
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
