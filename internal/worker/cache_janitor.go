package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger drops expired cache entries and reports how many were removed.
type Purger interface {
	Purge() int
}

// StartCacheJanitor purges expired entries from an in-process cache every
// interval until ctx is cancelled.
func StartCacheJanitor(ctx context.Context, store Purger, interval time.Duration, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := store.Purge(); n > 0 {
					logger.Debug("expired cache entries purged", zap.Int("count", n))
				}
			}
		}
	}()
}
