package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "0.1.0"

// Features describes which optional backends are wired.
type Features struct {
	Backend     string
	DataDir     string
	DB          bool
	ReportCache bool
	Kafka       bool
}

type InfoHandler struct {
	f Features
}

func NewInfoHandler(f Features) *InfoHandler {
	return &InfoHandler{f: f}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Backend  string   `json:"backend" doc:"Layer store backend" enum:"memory,duckdb,postgres"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether a database is available"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"analysis", "stream", "invalidation"}
	if h.f.DB {
		features = append(features, "bulk-intersect", "prep")
	}
	if h.f.ReportCache {
		features = append(features, "report-cache")
	}
	if h.f.Kafka {
		features = append(features, "kafka")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-overlap",
		Version:  Version,
		Backend:  h.f.Backend,
		DataDir:  h.f.DataDir,
		DB:       h.f.DB,
		Features: features,
	}}, nil
}
