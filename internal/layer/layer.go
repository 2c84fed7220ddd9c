// Package layer provides reference-layer records to the analysis. Stores are
// owned by the caller; refresh and invalidation are explicit.
package layer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/twpayne/go-geos"
)

var (
	// ErrNotFound means no record matched the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrQueryFailed means the store could not answer a query.
	ErrQueryFailed = errors.New("layer query failed")
	// ErrUnknownLayer means the layer id is not known to the store or is not
	// a valid identifier.
	ErrUnknownLayer = errors.New("unknown layer")
)

var validID = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateID rejects layer ids that cannot be used as a table suffix.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrUnknownLayer, id)
	}
	return nil
}

// Attrs are the layer-specific attribute fields of a record.
type Attrs map[string]any

// String returns the attribute as display text. Missing and null values
// yield "". Whole floats print without a fraction.
func (a Attrs) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Float returns a numeric attribute, accepting numeric strings.
func (a Attrs) Float(key string) (float64, bool) {
	switch t := a[key].(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(t, ",", ".")), 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns an integer attribute.
func (a Attrs) Int(key string) (int, bool) {
	f, ok := a.Float(key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// First returns the first non-empty attribute among keys.
func (a Attrs) First(keys ...string) string {
	for _, k := range keys {
		if s := a.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Record is one candidate of a reference layer.
type Record struct {
	ID string
	// WKT is the raw geometry as delivered by the source.
	WKT string
	// UsableWKT is a precomputed normalized geometry, when the store has one.
	UsableWKT string
	// Geometry is the parsed usable geometry, when the store holds it.
	Geometry *geos.Geom
	// AreaM2 is the record's own metric area. Zero means unknown.
	AreaM2 float64
	Attrs  Attrs
}

// Store reads candidate records of a layer.
type Store interface {
	// Count returns the total number of records of the layer.
	Count(ctx context.Context, layer string) (int, error)
	// Candidates returns records that may intersect bounds, in a stable
	// order. Records without a usable geometry are always included. A nil
	// bounds returns every record.
	Candidates(ctx context.Context, layer string, bounds *geos.Box2D) ([]Record, error)
	// Record looks up one record by id, trimmed and case-insensitive.
	Record(ctx context.Context, layer, id string) (Record, error)
}

// Hit is an intersection computed by the store itself.
type Hit struct {
	Record          Record
	IntersectionWKT string
}

// Intersector is implemented by stores that compute intersections
// server-side for all candidates at once.
type Intersector interface {
	Intersect(ctx context.Context, layer, targetWKT string) ([]Hit, error)
}

// AsIntersector returns the bulk interface of s, looking through wrappers.
func AsIntersector(s Store) (Intersector, bool) {
	for s != nil {
		if i, ok := s.(Intersector); ok {
			return i, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
