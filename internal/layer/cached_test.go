package layer

import (
	"context"
	"testing"

	"github.com/twpayne/go-geos"
)

type countingStore struct {
	*MemoryStore
	calls int
}

func (c *countingStore) Candidates(ctx context.Context, layer string, b *geos.Box2D) ([]Record, error) {
	c.calls++
	return c.MemoryStore.Candidates(ctx, layer, b)
}

func TestCachedStore_HitAndInvalidate(t *testing.T) {
	inner := &countingStore{MemoryStore: newMem()}
	_ = inner.Put("zoning", Record{ID: "a", WKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"})
	_ = inner.Put("embargoes", Record{ID: "e", WKT: "POLYGON((0 0,1 0,1 1,0 1,0 0))"})
	c := NewCachedStore(inner, 8)
	ctx := context.Background()
	box := &geos.Box2D{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}

	for i := 0; i < 3; i++ {
		if _, err := c.Candidates(ctx, "zoning", box); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = c.Candidates(ctx, "embargoes", box)
	if inner.calls != 2 {
		t.Fatalf("calls=%d want 2", inner.calls)
	}

	c.Invalidate("zoning")
	if c.Len() != 1 {
		t.Fatalf("len=%d want 1 after invalidating one layer", c.Len())
	}
	_, _ = c.Candidates(ctx, "zoning", box)
	if inner.calls != 3 {
		t.Fatalf("calls=%d want 3", inner.calls)
	}

	c.InvalidateAll()
	if c.Len() != 0 {
		t.Fatalf("len=%d want 0", c.Len())
	}
}

func TestAsIntersector(t *testing.T) {
	mem := newMem()
	if _, ok := AsIntersector(NewCachedStore(mem, 1)); ok {
		t.Fatal("memory store must not look like an intersector")
	}
	sqlStore := NewSQLStore(nil, DuckDB, 4674)
	if _, ok := AsIntersector(NewCachedStore(sqlStore, 1)); !ok {
		t.Fatal("cached sql store should expose the bulk path")
	}
}
