package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlap/internal/humastar"
)

// links maps operation paths to their RFC 8288 Link header values.
// Enables restish hypermedia navigation via `restish links <url>`.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/analyses>; rel="analyses"`,
	},
	"/api/v1/info": {
		`</health>; rel="health"`,
		`</api/v1/layers>; rel="layers"`,
		`</api/v1/tables>; rel="tables"`,
	},
	"/api/v1/layers": {
		`</api/v1/sources>; rel="sources"`,
		`</api/v1/analyses>; rel="analyses"`,
	},
	"/api/v1/layers/{id}": {
		`</api/v1/layers>; rel="collection"`,
	},
	"/api/v1/sources": {
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/analyses": {
		`</api/v1/analyses/stream>; rel="stream"`,
		`</api/v1/layers>; rel="layers"`,
	},
	"/api/v1/tables": {
		`</api/v1/layers>; rel="layers"`,
	},
}

// layerActions are advertised on single-layer responses.
var layerActions = []humastar.ActionDef{
	{Rel: "count", Pattern: "/api/v1/layers/%s/count", Method: "GET", Title: "Count records"},
	{Rel: "invalidate", Pattern: "/api/v1/layers/%s/invalidate", Method: "POST", Title: "Drop cached candidates"},
	{Rel: "edit", Pattern: "/api/v1/layers/%s", Method: "PUT", Title: "Edit layer"},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		if op.Path == "/api/v1/layers/{id}" && strings.HasPrefix(status, "2") {
			for _, link := range humastar.LinksFor(ctx.Param("id"), layerActions) {
				ctx.AppendHeader("Link", link)
			}
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
