package collector

import (
	"context"
	"log/slog"
	"time"
)

// Start runs the collection loop until Stop is called or ctx is cancelled.
// The first cycle fires immediately. Ticks that arrive while a cycle is in
// flight are dropped. Start returns nil after Stop and ctx.Err() after
// cancellation.
func (c *Collector) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	started := c.now()
	c.cancel, c.done = cancel, done
	c.startedAt = &started
	c.interval = interval
	c.state = StateIdle
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel, c.done = nil, nil
		c.state = StateStopped
		c.nextCleanup = nil
		c.mu.Unlock()
		close(done)
	}()

	slog.Info("collector started",
		"interval", interval.String(),
		"fetch_count", c.fetchCount,
		"cleanup_days", c.cleanupDays,
		"cleanup_hour", c.cleanupHour,
	)
	c.loop(loopCtx, interval)
	slog.Info("collector stopped")

	return ctx.Err()
}

// Stop is idempotent. It waits for an in-flight cycle to finish; cycles
// themselves are never cancelled by it.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	if done == nil {
		c.state = StateStopped
	}
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger requests an immediate cycle from a running loop. Best-effort and
// non-blocking.
func (c *Collector) Trigger() {
	c.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case c.triggerCh <- struct{}{}:
	default:
	}
}

func (c *Collector) loop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	cleanup := c.armCleanup()
	defer func() {
		if cleanup != nil {
			cleanup.Stop()
		}
	}()

	c.cycle(ctx)
	for {
		var cleanupC <-chan time.Time
		if cleanup != nil {
			cleanupC = cleanup.C
		}

		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.cycle(ctx)
		case <-c.triggerCh:
			c.cycle(ctx)
		case <-cleanupC:
			_, _ = c.Cleanup(context.WithoutCancel(ctx), c.cleanupDays)
			cleanup = c.armCleanup()
		}
	}
}

// cycle detaches from the loop context so that Stop never interrupts a
// store write. The feed client's timeout bounds the cycle.
func (c *Collector) cycle(ctx context.Context) {
	c.RunOnce(context.WithoutCancel(ctx))
}

func (c *Collector) armCleanup() *time.Timer {
	if c.cleanupDays <= 0 {
		return nil
	}
	now := time.Now()
	next := NextCleanup(now, c.cleanupHour)

	at := next.UTC()
	c.mu.Lock()
	c.nextCleanup = &at
	c.mu.Unlock()

	return time.NewTimer(next.Sub(now))
}
