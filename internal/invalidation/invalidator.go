package invalidation

import (
	"context"
	"errors"

	"github.com/joeblew999/plat-overlap/internal/layer"
)

// Invalidator forgets whatever was derived from layer. AllLayers means
// every layer.
type Invalidator interface {
	Invalidate(ctx context.Context, layer string) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, layer string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, layer string) error {
	return f(ctx, layer)
}

// Candidates invalidates the candidate cache of a CachedStore.
func Candidates(c *layer.CachedStore) Invalidator {
	return InvalidatorFunc(func(_ context.Context, l string) error {
		if l == AllLayers {
			c.InvalidateAll()
		} else {
			c.Invalidate(l)
		}
		return nil
	})
}

// Chain calls every non-nil invalidator and joins their errors.
func Chain(invs ...Invalidator) Invalidator {
	return InvalidatorFunc(func(ctx context.Context, l string) error {
		var err error
		for _, inv := range invs {
			if inv == nil {
				continue
			}
			err = errors.Join(err, inv.Invalidate(ctx, l))
		}
		return err
	})
}
