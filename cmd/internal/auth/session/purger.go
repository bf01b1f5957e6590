package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purger periodically deletes expired sessions.
type Purger struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
	metrics  Metrics
}

// NewPurger builds a Purger sweeping every interval.
func NewPurger(store Store, interval time.Duration, log *slog.Logger, metrics Metrics) *Purger {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultConfig().PurgeInterval
	}
	return &Purger{
		store:    store,
		interval: interval,
		log:      log,
		now:      time.Now,
		metrics:  metrics,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
// Failed sweeps are logged and retried on the next tick.
func (p *Purger) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.log.Info("session.purge.start", "interval", p.interval)
	for {
		_, _ = p.Sweep(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("session.purge.stop")
			return
		case <-t.C:
		}
	}
}

// Sweep deletes expired sessions once. Panics inside the store are recovered
// and reported as ErrPurgePanic.
func (p *Purger) Sweep(ctx context.Context) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrPurgePanic, r)
		}
		if err != nil {
			p.log.Error("session.purge.fail", "err", err)
			if p.metrics != nil {
				p.metrics.SessionPurgeFailed()
			}
		}
	}()

	n, err = p.store.DeleteExpiredSessions(ctx, p.now())
	if err != nil {
		return 0, err
	}

	p.log.Info("session.purge.ok", "deleted", n)
	if p.metrics != nil {
		p.metrics.SessionsPurged(n)
	}
	return n, nil
}
