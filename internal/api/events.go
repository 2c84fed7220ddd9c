package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlap/internal/humastar"
)

// RegisterEvents registers the catalog change stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("layers"))
}

// Events streams catalog changes to the Datastar UI as signal patches.
func (h *APIHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	if h.svc.Bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	return humastar.Stream(func(sse humastar.SSE) {
		ch := h.svc.Bus.Subscribe()
		defer h.svc.Bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := sse.Signals(map[string]any{"change": ev}); err != nil {
					return
				}
			}
		}
	}), nil
}
