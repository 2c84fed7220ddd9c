package layer

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geos"

	"github.com/joeblew999/plat-overlap/internal/geometry"
)

// minExtent keeps point and line records indexable.
const minExtent = 1e-9

// MemoryStore holds layers in memory behind an R-tree per layer.
type MemoryStore struct {
	norm   *geometry.Normalizer
	mu     sync.RWMutex
	layers map[string]*memLayer
}

type memLayer struct {
	tree     *rtreego.Rtree
	records  []*memEntry
	byID     map[string]*memEntry
	unbounds []*memEntry
}

type memEntry struct {
	rec  Record
	seq  int
	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *memEntry) Bounds() rtreego.Rect {
	return e.rect
}

// NewMemoryStore creates an empty store. n parses raw geometries on Put.
func NewMemoryStore(n *geometry.Normalizer) *MemoryStore {
	return &MemoryStore{norm: n, layers: make(map[string]*memLayer)}
}

func newMemLayer() *memLayer {
	return &memLayer{
		tree: rtreego.NewTree(2, 25, 50),
		byID: make(map[string]*memEntry),
	}
}

// Put adds or replaces a record. A record whose geometry cannot be parsed
// is kept without an index entry so the analysis can count it.
func (s *MemoryStore) Put(layer string, rec Record) error {
	if err := ValidateID(layer); err != nil {
		return err
	}
	if rec.Geometry == nil {
		src := rec.UsableWKT
		if src == "" {
			src = rec.WKT
		}
		if g, err := s.norm.Parse(src); err == nil {
			rec.Geometry = g
		}
	}

	var rect rtreego.Rect
	indexed := false
	if rec.Geometry != nil {
		_ = geometry.Guard(func() error {
			if b := rec.Geometry.Bounds(); b != nil {
				rect, indexed = toRect(b)
			}
			return nil
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.layers[layer]
	if !ok {
		l = newMemLayer()
		s.layers[layer] = l
	}
	key := normalizeID(rec.ID)
	if old, ok := l.byID[key]; ok && key != "" {
		l.remove(old)
	}

	e := &memEntry{rec: rec, seq: len(l.records), rect: rect}
	if len(l.records) > 0 {
		e.seq = l.records[len(l.records)-1].seq + 1
	}
	l.records = append(l.records, e)
	if key != "" {
		l.byID[key] = e
	}
	if indexed {
		l.tree.Insert(e)
	} else {
		l.unbounds = append(l.unbounds, e)
	}
	return nil
}

func (l *memLayer) remove(e *memEntry) {
	l.tree.Delete(e)
	for i, r := range l.records {
		if r == e {
			l.records = append(l.records[:i], l.records[i+1:]...)
			break
		}
	}
	for i, r := range l.unbounds {
		if r == e {
			l.unbounds = append(l.unbounds[:i], l.unbounds[i+1:]...)
			break
		}
	}
}

func toRect(b *geos.Box2D) (rtreego.Rect, bool) {
	if math.IsInf(b.MinX, 0) || math.IsNaN(b.MinX) {
		return rtreego.Rect{}, false
	}
	r, err := rtreego.NewRect(
		rtreego.Point{b.MinX, b.MinY},
		[]float64{math.Max(b.MaxX-b.MinX, minExtent), math.Max(b.MaxY-b.MinY, minExtent)},
	)
	return r, err == nil
}

// Reset drops every record of layer.
func (s *MemoryStore) Reset(layer string) {
	s.mu.Lock()
	delete(s.layers, layer)
	s.mu.Unlock()
}

// Layers returns the ids of the loaded layers.
func (s *MemoryStore) Layers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.layers))
	for id := range s.layers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) Count(_ context.Context, layer string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[layer]
	if !ok {
		return 0, nil
	}
	return len(l.records), nil
}

func (s *MemoryStore) Candidates(ctx context.Context, layer string, bounds *geos.Box2D) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.layers[layer]
	if !ok {
		return nil, nil
	}
	if bounds == nil {
		out := make([]Record, len(l.records))
		for i, e := range l.records {
			out[i] = e.rec
		}
		return out, nil
	}

	rect, ok := toRect(bounds)
	if !ok {
		return nil, nil
	}
	hits := l.tree.SearchIntersect(rect)
	entries := make([]*memEntry, 0, len(hits)+len(l.unbounds))
	for _, h := range hits {
		entries = append(entries, h.(*memEntry))
	}
	entries = append(entries, l.unbounds...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out, nil
}

func (s *MemoryStore) Record(_ context.Context, layer, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.layers[layer]; ok {
		if e, ok := l.byID[normalizeID(id)]; ok {
			return e.rec, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s/%s", ErrNotFound, layer, id)
}

// LoadGeoJSON reads a FeatureCollection into layer. See DecodeGeoJSON for
// how ids and areas are taken from the features.
func (s *MemoryStore) LoadGeoJSON(layer string, r io.Reader, idProp string) (int, error) {
	recs, err := DecodeGeoJSON(r, idProp)
	if err != nil {
		return 0, err
	}
	for i, rec := range recs {
		if err := s.Put(layer, rec); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}
