package worker

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/boardroom/common/logger"
)

// Reclaimer periodically takes over archive messages that a crashed worker
// read but never acknowledged.
type Reclaimer struct {
	consumer Consumer
	worker   *Worker
	interval time.Duration

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(consumer Consumer, worker *Worker, interval time.Duration) *Reclaimer {
	return &Reclaimer{
		consumer:  consumer,
		worker:    worker,
		interval:  interval,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the reclaimer loop. Blocks until Stop() is called or ctx ends.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "boardroom.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			r.reclaimOnce(ctx)
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

func (r *Reclaimer) reclaimOnce(ctx context.Context) {
	messages, err := r.consumer.Reclaim(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
		return
	}
	for _, msg := range messages {
		start := time.Now()
		r.worker.Handle(ctx, msg)
		slog.InfoContext(ctx, "reclaimed message handled",
			"message_id", msg.ID,
			"duration_ms", time.Since(start).Milliseconds())
	}
}
