package collab

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eldtechnologies/collab/internal/metrics"
	"github.com/eldtechnologies/collab/internal/models"
)

// jobTimeout bounds a single post-processing job.
const jobTimeout = 5 * time.Second

// Run starts the background workers and blocks until ctx is cancelled or a
// worker fails.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.every(ctx, e.cfg.HeartbeatInterval, e.refreshPresence) })
	g.Go(func() error { return e.every(ctx, e.cfg.MetricsInterval, e.aggregateMetrics) })
	g.Go(func() error { return e.every(ctx, e.cfg.BreakerSweepInterval, e.sweepBreakers) })
	for _, shard := range e.queue.shards {
		g.Go(func() error { return e.work(ctx, shard) })
	}

	e.logger.Info().
		Int("queue_workers", e.cfg.QueueWorkers).
		Dur("heartbeat_interval", e.cfg.HeartbeatInterval).
		Msg("engine workers started")

	return g.Wait()
}

func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// refreshPresence re-persists presence for users with a live connection.
// Connections silent for more than two heartbeat intervals are skipped.
func (e *Engine) refreshPresence(ctx context.Context) {
	live := e.conns.Live(e.now(), 2*e.cfg.HeartbeatInterval)

	seen := make(map[models.UserID]struct{}, len(live))
	for _, c := range live {
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		if err := e.presence.Refresh(ctx, c.UserID); err != nil {
			e.logger.Warn().Err(err).Str("user_id", string(c.UserID)).Msg("presence refresh failed")
		}
	}

	if stale := e.conns.Len() - len(live); stale > 0 {
		e.logger.Debug().Int("stale", stale).Msg("skipped stale connections")
	}
}

func (e *Engine) aggregateMetrics(context.Context) {
	conns, rooms := e.conns.Len(), e.rooms.Len()
	e.metrics.Aggregate(e.now(), conns, rooms)

	snap := e.Stats()
	metrics.ActiveConnections.Set(float64(conns))
	metrics.ActiveRooms.Set(float64(rooms))
	metrics.LatencyP95.Set(snap.P95LatencyMs)

	if snap.Samples > 0 && !snap.LatencyTargetMet {
		e.logger.Warn().
			Float64("p95_ms", snap.P95LatencyMs).
			Float64("target_ms", metrics.TargetLatencyMs).
			Msg("p95 latency above target")
	}
}

func (e *Engine) sweepBreakers(context.Context) {
	for _, id := range e.breaker.Sweep() {
		e.logger.Info().Str("room_id", string(id)).Msg("circuit closed for room")
	}
}

// work drains one shard of the post-processing queue.
func (e *Engine) work(ctx context.Context, jobs <-chan job) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-jobs:
			e.runJob(ctx, j)
		}
	}
}

func (e *Engine) runJob(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := j.run(ctx); err != nil {
		e.logger.Warn().Err(err).Str("job", j.name).Str("room_id", string(j.roomID)).Msg("post-processing job failed")
	}
}
