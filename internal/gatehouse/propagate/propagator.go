// Package propagate pushes permission changes out to the door controllers
// that cache credentials locally. Propagation is fire-and-forget from the
// caller's point of view: the event source hands a change over and moves
// on, and every failure past that point is a log line and a metric, never
// an error surfaced upstream.
package propagate

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gatehouse-io/gatehouse/internal/gatehouse/protocol"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/store"
	"github.com/gatehouse-io/gatehouse/internal/gatehouse/types"
	"github.com/gatehouse-io/gatehouse/internal/obs"
)

// Dependencies wires a Propagator. Zero values fall back to the defaults
// noted on each field.
type Dependencies struct {
	Logger   *log.Logger
	Devices  store.DeviceStore
	Adapters *protocol.Registry

	Workers   int // worker goroutines draining the queue; default 4
	QueueSize int // bounded queue capacity; default 256

	MaxAttempts  int           // per-device push attempts; default 3
	RetryBackoff time.Duration // base backoff between attempts; default 250ms

	// PushesPerSecond throttles outbound pushes across all workers so a
	// bulk permission import cannot saturate the device links. Default 50.
	PushesPerSecond float64

	// DeviceTimeout bounds each push attempt. Default 5s.
	DeviceTimeout time.Duration

	// StaleAfter is the heartbeat staleness window. Pushing to a device
	// not seen within it logs a warning; the push still happens, since a
	// missed heartbeat does not prove the device is down. Zero disables
	// the warning.
	StaleAfter time.Duration

	// WatermarkTTL bounds how long a (subject, area) ordering watermark is
	// kept. Entries older than the TTL are evicted so the map does not
	// grow forever with one-off visitor pairs; the TTL only needs to
	// exceed the realistic reordering window. Default 24h.
	WatermarkTTL time.Duration
}

type pairKey struct {
	subjectID string
	areaID    string
}

// Propagator fans permission changes out to every device in the affected
// area. Changes for the same (subject, area) are reconciled by occurrence
// time: an effect older than the newest one already applied is discarded,
// whatever order the two arrived in.
type Propagator struct {
	logger       *log.Logger
	devices      store.DeviceStore
	adapters     *protocol.Registry
	limiter      *rate.Limiter
	queue        chan types.PermissionChange
	workers      int
	maxAttempts  int
	retryBackoff time.Duration
	pushTimeout  time.Duration
	staleAfter   time.Duration
	watermarkTTL time.Duration

	mu         sync.Mutex
	watermarks map[pairKey]time.Time
	lastSweep  time.Time

	dropped atomic.Int64
	wg      sync.WaitGroup
}

func New(d Dependencies) *Propagator {
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 256
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 3
	}
	if d.RetryBackoff <= 0 {
		d.RetryBackoff = 250 * time.Millisecond
	}
	if d.PushesPerSecond <= 0 {
		d.PushesPerSecond = 50
	}
	if d.DeviceTimeout <= 0 {
		d.DeviceTimeout = 5 * time.Second
	}
	if d.WatermarkTTL <= 0 {
		d.WatermarkTTL = 24 * time.Hour
	}
	return &Propagator{
		logger:       d.Logger,
		devices:      d.Devices,
		adapters:     d.Adapters,
		limiter:      rate.NewLimiter(rate.Limit(d.PushesPerSecond), d.Workers),
		queue:        make(chan types.PermissionChange, d.QueueSize),
		workers:      d.Workers,
		maxAttempts:  d.MaxAttempts,
		retryBackoff: d.RetryBackoff,
		pushTimeout:  d.DeviceTimeout,
		staleAfter:   d.StaleAfter,
		watermarkTTL: d.WatermarkTTL,
		watermarks:   make(map[pairKey]time.Time),
		lastSweep:    time.Now(),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; call Wait after cancelling to let in-flight pushes finish.
func (p *Propagator) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Wait blocks until every worker has exited.
func (p *Propagator) Wait() {
	p.wg.Wait()
}

// OnPermissionChange hands one change to the propagator and returns
// immediately. A full queue drops the change; the event source does not
// retry, so the drop is counted and logged loudly.
func (p *Propagator) OnPermissionChange(change types.PermissionChange) {
	if change.SubjectID == "" || change.AreaID == "" {
		p.logger.Printf("propagate: discarding change with empty subject or area: %+v", change)
		return
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = time.Now().UTC()
	}

	select {
	case p.queue <- change:
		obs.SetPropagationQueueDepth(len(p.queue))
	default:
		p.dropped.Add(1)
		obs.CountPropagationDrop()
		p.logger.Printf("propagate: queue full, dropping %s %s/%s", change.Change, change.SubjectID, change.AreaID)
	}
}

// Dropped reports how many changes were lost to a full queue since start.
func (p *Propagator) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Propagator) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-p.queue:
			obs.SetPropagationQueueDepth(len(p.queue))
			p.process(ctx, change)
		}
	}
}

// process claims the pair's watermark and, when the change is the newest
// effect seen for it, fans the matching command out to the area's devices.
func (p *Propagator) process(ctx context.Context, change types.PermissionChange) {
	if !p.claim(change) {
		obs.CountPropagationDrop()
		p.logger.Printf("propagate: stale %s for %s/%s (occurred %s), superseded",
			change.Change, change.SubjectID, change.AreaID, change.OccurredAt.Format(time.RFC3339))
		return
	}

	devices, err := p.devices.ListByArea(ctx, change.AreaID)
	if err != nil {
		p.logger.Printf("propagate: listing devices for area %s: %v", change.AreaID, err)
		return
	}
	if len(devices) == 0 {
		p.logger.Printf("propagate: area %s has no enabled devices, nothing to push", change.AreaID)
		return
	}

	cmd := protocol.Command{
		Type:      protocol.CommandGrantAdd,
		SubjectID: change.SubjectID,
		IssuedAt:  time.Now().UTC(),
	}
	if change.Change == types.ChangeRemoved {
		cmd.Type = protocol.CommandGrantRemove
	}

	// One failed device never blocks the rest of the area.
	for _, device := range devices {
		p.push(ctx, device, cmd)
	}
}

// claim advances the pair's watermark to the change's occurrence time.
// Returns false when a newer effect was already applied.
func (p *Propagator) claim(change types.PermissionChange) bool {
	key := pairKey{change.SubjectID, change.AreaID}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sweepLocked(time.Now())

	if wm, ok := p.watermarks[key]; ok && !change.OccurredAt.After(wm) {
		return false
	}
	p.watermarks[key] = change.OccurredAt
	return true
}

// sweepLocked evicts watermarks older than the TTL so one-off pairs do
// not accumulate forever. At most once per TTL; caller holds p.mu.
func (p *Propagator) sweepLocked(now time.Time) {
	if now.Sub(p.lastSweep) < p.watermarkTTL {
		return
	}
	p.lastSweep = now

	cutoff := now.Add(-p.watermarkTTL)
	for key, wm := range p.watermarks {
		if wm.Before(cutoff) {
			delete(p.watermarks, key)
		}
	}
}

func (p *Propagator) push(ctx context.Context, device store.DeviceRecord, cmd protocol.Command) {
	adapter, ok := p.adapters.ForProtocol(device.Protocol)
	if !ok {
		obs.ObservePush(false)
		p.logger.Printf("propagate: device %s has unknown protocol %q, skipping", device.DeviceID, device.Protocol)
		return
	}

	if p.staleAfter > 0 && time.Since(device.LastSeen) > p.staleAfter {
		p.logger.Printf("propagate: device %s not seen within %s, pushing anyway", device.DeviceID, p.staleAfter)
	}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		pushCtx, cancel := context.WithTimeout(ctx, p.pushTimeout)
		res := adapter.SendCommand(pushCtx, device, cmd)
		cancel()

		if res.OK {
			obs.ObservePush(true)
			return
		}
		p.logger.Printf("propagate: %s to device %s attempt %d/%d failed: %s",
			cmd.Type, device.DeviceID, attempt, p.maxAttempts, res.Message)

		if attempt < p.maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryBackoff * time.Duration(attempt)):
			}
		}
	}
	obs.ObservePush(false)
	p.logger.Printf("propagate: giving up on %s to device %s after %d attempts", cmd.Type, device.DeviceID, p.maxAttempts)
}
