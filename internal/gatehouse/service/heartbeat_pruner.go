package service

import (
	"context"
	"log"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
)

// HeartbeatPruner periodically deletes heartbeat snapshots older than the
// retention window. Runs as a background goroutine; a retention of 0
// disables pruning entirely.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewHeartbeatPruner creates a pruner but does not start it. interval
// defaults to 6 hours when non-positive.
func NewHeartbeatPruner(s store.HeartbeatStore, retention, interval time.Duration, logger *log.Logger) *HeartbeatPruner {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &HeartbeatPruner{
		store:     s,
		retention: retention,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start begins the background loop: an immediate prune, then one per
// interval until ctx is cancelled or Stop is called.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Printf("heartbeat pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Printf("heartbeat pruner started (retention=%s, interval=%s)", p.retention, p.interval)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *HeartbeatPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *HeartbeatPruner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Printf("heartbeat prune error: %v", err)
		return
	}
	if deleted > 0 {
		p.logger.Printf("heartbeat prune: deleted %d rows older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
