package datasource

import (
	"alsolved/internal/logger"
	sentryutil "alsolved/internal/sentry"
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher periodically drops the cached document and loads it again so
// that requests rarely pay for a fetch.
type Refresher struct {
	cron  *cron.Cron
	cache *Cache
	spec  string // cron spec, e.g. "@every 15m"
}

func NewRefresher(cache *Cache, spec string) *Refresher {
	return &Refresher{cron: cron.New(), cache: cache, spec: spec}
}

// Start registers the job, starts the scheduler and warms the cache once
// without waiting for the first tick.
func (r *Refresher) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.spec, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc(%q): %w", r.spec, err)
	}
	r.cron.Start()
	logger.Info("datasource: refresher started", map[string]interface{}{"spec": r.spec})
	go r.Refresh(ctx)
	return nil
}

// Stop waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
	logger.Info("datasource: refresher stopped", nil)
}

// Refresh invalidates and reloads the document.
func (r *Refresher) Refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	r.cache.Invalidate()
	recs, err := r.cache.Fetch(ctx)
	if err != nil {
		logger.Warn("datasource: refresh failed", map[string]interface{}{"error": err.Error()})
		sentryutil.CaptureError(err, map[string]string{"component": "datasource", "phase": "refresh"})
		return
	}
	logger.Info("datasource: refreshed", map[string]interface{}{
		"records": len(recs), "duration_ms": time.Since(start).Milliseconds(),
	})
}
