package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlap/internal/analysis"
	"github.com/joeblew999/plat-overlap/internal/format"
	"github.com/joeblew999/plat-overlap/internal/humastar"
	"github.com/joeblew999/plat-overlap/internal/layer"
	"github.com/joeblew999/plat-overlap/internal/logger"
	"github.com/joeblew999/plat-overlap/internal/overlap"
)

type AnalysisInput struct {
	Body struct {
		WKT string `json:"wkt" required:"true" minLength:"1" doc:"Parcel polygon as WKT in the geographic CRS" example:"POLYGON((-48.3 -10.2,-48.2 -10.2,-48.2 -10.1,-48.3 -10.1,-48.3 -10.2))"`
	}
}

type RegistryInput struct {
	ID string `path:"id" doc:"Registry record code, matched trimmed and case-insensitive" example:"TO-1721000-0A1B2C3D4E5F"`
}

type ReportOutput struct {
	Body *analysis.Report
}

// RegisterAnalyses registers the overlap analysis routes.
func (h *APIHandler) RegisterAnalyses(api huma.API) {
	huma.Post(api, "/api/v1/analyses", h.Analyze, huma.OperationTags("analyses"))
	huma.Get(api, "/api/v1/analyses/registry/{id}", h.AnalyzeRegistry, huma.OperationTags("analyses"))
	huma.Post(api, "/api/v1/analyses/stream", h.AnalyzeStream, huma.OperationTags("analyses"))
}

func (h *APIHandler) Analyze(ctx context.Context, input *AnalysisInput) (*ReportOutput, error) {
	if h.svc.Analyzer == nil {
		return nil, huma.Error503ServiceUnavailable("analyzer not available")
	}
	rep, err := h.svc.Analyzer.AnalyzeWKT(ctx, input.Body.WKT, nil)
	if err != nil {
		return nil, h.analysisError(ctx, err)
	}
	return &ReportOutput{Body: rep}, nil
}

func (h *APIHandler) AnalyzeRegistry(ctx context.Context, input *RegistryInput) (*ReportOutput, error) {
	if h.svc.Analyzer == nil || h.svc.Catalog == nil {
		return nil, huma.Error503ServiceUnavailable("analyzer not available")
	}
	reg, ok := h.svc.Catalog.Registry()
	if !ok {
		return nil, huma.Error404NotFound("no registry layer configured")
	}
	rep, err := h.svc.Analyzer.AnalyzeRecord(ctx, reg.ID, input.ID, nil)
	if err != nil {
		return nil, h.analysisError(ctx, err)
	}
	return &ReportOutput{Body: rep}, nil
}

// AnalyzeStream runs an analysis and streams per-layer progress as
// Datastar signal patches. Signals: "wkt" for a drawn parcel, or
// "recordId" for a registry record. The last patch carries the report.
func (h *APIHandler) AnalyzeStream(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	wkt, recordID := signals.String("wkt"), signals.String("recordId")
	if wkt == "" && recordID == "" {
		return nil, huma.Error400BadRequest("wkt or recordId is required")
	}
	if h.svc.Analyzer == nil || h.svc.Catalog == nil {
		return nil, huma.Error503ServiceUnavailable("analyzer not available")
	}

	return humastar.Stream(func(sse humastar.SSE) {
		progress := func(s analysis.Step) {
			_ = sse.Signals(map[string]any{"analysis": map[string]any{
				"layer":        s.Layer,
				"name":         s.Name,
				"index":        s.Index,
				"total":        s.Total,
				"overlaps":     s.Overlaps,
				"notEvaluated": s.NotEvaluated,
				"percent":      s.Index * 100 / max(s.Total, 1),
			}})
		}

		var (
			rep *analysis.Report
			err error
		)
		if recordID != "" {
			reg, ok := h.svc.Catalog.Registry()
			if !ok {
				sse.Error("no registry layer configured")
				return
			}
			rep, err = h.svc.Analyzer.AnalyzeRecord(ctx, reg.ID, recordID, progress)
		} else {
			rep, err = h.svc.Analyzer.AnalyzeWKT(ctx, wkt, progress)
		}
		if err != nil {
			var se huma.StatusError
			if errors.As(h.analysisError(ctx, err), &se) {
				sse.Error(se.Error())
			}
			return
		}
		_ = sse.Signals(map[string]any{"report": rep, "done": true})
	}), nil
}

// analysisError maps the analysis error taxonomy onto HTTP statuses.
func (h *APIHandler) analysisError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, overlap.ErrInvalidTarget):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, layer.ErrNotFound):
		return huma.Error404NotFound("registry record not found")
	case errors.Is(err, layer.ErrUnknownLayer):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, format.ErrMissingFormatter):
		return huma.Error500InternalServerError("layer without formatter", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("analysis cancelled", err)
	default:
		logger.FromContext(ctx, h.svc.Logger).Error().Err(err).Msg("analysis failed")
		return huma.Error500InternalServerError("analysis failed", err)
	}
}
