// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/invalidation"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/logger"
	"github.com/joeblew999/plat-overlap/internal/metrics"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// Services holds the dependencies of the API handlers.
type Services struct {
	Catalog     *service.LayerService
	Sources     *service.SourceService
	Bus         *service.EventBus
	Store       layer.Store
	Analyzer    *analysis.Analyzer
	Invalidator invalidation.Invalidator
	Metrics     *metrics.Recorder
	Logger      *zerolog.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"sicar"`
}

type LayerOutput struct {
	Body service.LayerConfig
}

type LayersOutput struct {
	Body []service.LayerConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type CountBody struct {
	Layer string `json:"layer" doc:"Layer ID"`
	Count int    `json:"count" doc:"Number of records in the layer"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds the REST handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	if svc.Logger == nil {
		svc.Logger = logger.Nop()
	}
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers catalog routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/count", h.CountLayer, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/{id}/invalidate", h.InvalidateLayer, huma.OperationTags("layers"))
}

// RegisterSources registers source listing routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc.Catalog == nil {
		return &LayersOutput{Body: []service.LayerConfig{}}, nil
	}
	return &LayersOutput{Body: h.svc.Catalog.Ordered(false)}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc.Catalog == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	l, ok := h.svc.Catalog.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: l}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.LayerConfig
}) (*LayerOutput, error) {
	if h.svc.Catalog == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	updated, err := h.svc.Catalog.Update(input.ID, input.Body)
	if errors.Is(err, service.ErrLayerNotFound) {
		return nil, huma.Error404NotFound(err.Error())
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to save catalog", err)
	}
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) CountLayer(ctx context.Context, input *IDInput) (*struct{ Body CountBody }, error) {
	if err := h.knownLayer(input.ID); err != nil {
		return nil, err
	}
	n, err := h.svc.Store.Count(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("count failed", err)
	}
	return &struct{ Body CountBody }{Body: CountBody{Layer: input.ID, Count: n}}, nil
}

func (h *APIHandler) InvalidateLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if err := h.knownLayer(input.ID); err != nil {
		return nil, err
	}
	if h.svc.Invalidator == nil {
		return nil, huma.Error503ServiceUnavailable("invalidation not configured")
	}
	err := h.svc.Invalidator.Invalidate(ctx, input.ID)
	h.svc.Metrics.Invalidation("api", err)
	if err != nil {
		return nil, huma.Error500InternalServerError("invalidation failed", err)
	}
	logger.FromContext(ctx, h.svc.Logger).Info().Str("layer", input.ID).Msg("layer invalidated")
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer invalidated"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *struct{}) (*struct{ Body []service.SourceFile }, error) {
	if h.svc.Sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Sources.List()
	if err != nil || sources == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

func (h *APIHandler) knownLayer(id string) error {
	if h.svc.Catalog == nil || h.svc.Store == nil {
		return huma.Error503ServiceUnavailable("service not available")
	}
	if _, ok := h.svc.Catalog.Get(id); !ok {
		return huma.Error404NotFound("layer not found")
	}
	return nil
}
