package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/dhkalign/gateway/internal/ratelimit"
)

const evictInterval = 10 * time.Minute

// RateLimitEvictor periodically drops per-IP limiter state that hasn't
// been touched recently, bounding memory use on a long-running origin.
type RateLimitEvictor struct {
	registry *ratelimit.Registry
	maxAge   time.Duration
}

// NewRateLimitEvictor creates a worker that evicts limiter entries idle
// longer than maxAge.
func NewRateLimitEvictor(registry *ratelimit.Registry, maxAge time.Duration) *RateLimitEvictor {
	return &RateLimitEvictor{registry: registry, maxAge: maxAge}
}

// Name returns the worker identifier.
func (w *RateLimitEvictor) Name() string { return "ratelimit_evictor" }

// Run evicts stale limiters on a fixed schedule until ctx is cancelled.
func (w *RateLimitEvictor) Run(ctx context.Context) error {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().Add(-w.maxAge)
			n := w.registry.EvictStale(cutoff)
			if n > 0 {
				slog.LogAttrs(ctx, slog.LevelDebug, "evicted stale rate limiters",
					slog.Int("count", n),
				)
			}
		}
	}
}
