package humastar

import "fmt"

// Action is a hypermedia action link, emitted as an RFC 8288 Link header
// with method and title extension parameters:
//
//	</api/v1/layers/sicar/invalidate>; rel="invalidate"; method="POST"; title="Drop cached candidates"
type Action struct {
	Rel    string
	Href   string
	Method string
	Title  string
}

// LinkHeader formats the action as a Link header value.
func (a Action) LinkHeader() string {
	h := fmt.Sprintf(`<%s>; rel="%s"`, a.Href, a.Rel)
	if a.Method != "" {
		h += fmt.Sprintf(`; method="%s"`, a.Method)
	}
	if a.Title != "" {
		h += fmt.Sprintf(`; title="%s"`, a.Title)
	}
	return h
}

// ActionDef is a reusable action template. Pattern holds one %s verb for
// the resource id.
type ActionDef struct {
	Rel     string
	Pattern string
	Method  string
	Title   string
}

// LinksFor renders defs for id as Link header values.
func LinksFor(id string, defs []ActionDef) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = Action{
			Rel:    d.Rel,
			Href:   fmt.Sprintf(d.Pattern, id),
			Method: d.Method,
			Title:  d.Title,
		}.LinkHeader()
	}
	return out
}
