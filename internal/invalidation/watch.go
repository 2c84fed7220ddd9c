package invalidation

import (
	"context"
	"log/slog"

	"github.com/joeblew999/plat-overlap/internal/metrics"
	"github.com/joeblew999/plat-overlap/internal/service"
)

// Watch applies catalog events from bus to inv until ctx is done. Events
// without an id invalidate every layer. Subscription happens before Watch
// returns.
func Watch(ctx context.Context, bus *service.EventBus, inv Invalidator, logger *slog.Logger, rec *metrics.Recorder) {
	if logger == nil {
		logger = slog.Default()
	}
	ch := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Resource != service.ResourceLayers {
					continue
				}
				l := ev.ID
				if l == "" {
					l = AllLayers
				}
				err := inv.Invalidate(ctx, l)
				rec.Invalidation("catalog", err)
				if err != nil {
					logger.Warn("catalog invalidation failed", "layer", l, "action", ev.Action, "err", err)
				}
			}
		}
	}()
}
