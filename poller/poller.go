// Package poller drives the per-agency feed adapters on a shared
// cadence and pushes accepted batches into the normalized store. Each
// agency polls in its own goroutine per cycle so one slow or failing
// feed never delays or empties the others.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trainwatch/feed"
	"trainwatch/metrics"
	"trainwatch/normalize"
)

type Poller struct {
	adapters []feed.Adapter
	store    *normalize.Store
	logger   *slog.Logger
	metrics  *metrics.Collector

	interval time.Duration
	timeout  time.Duration

	ready   bool
	readyMu sync.RWMutex
}

// New builds a Poller. The metrics collector may be nil.
func New(adapters []feed.Adapter, store *normalize.Store, interval, timeout time.Duration, logger *slog.Logger, collector *metrics.Collector) *Poller {
	return &Poller{
		adapters: adapters,
		store:    store,
		logger:   logger,
		metrics:  collector,
		interval: interval,
		timeout:  timeout,
	}
}

// Run polls immediately, then on every tick until the context ends.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce runs one fan-out cycle across all adapters and waits for
// every agency to finish or time out.
func (p *Poller) PollOnce(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(p.adapters))
	for _, a := range p.adapters {
		go func(a feed.Adapter) {
			defer wg.Done()
			p.pollAgency(ctx, a)
		}(a)
	}
	wg.Wait()

	if !p.IsReady() {
		p.setReady(true)
		p.logger.Info("poller ready", "trains", p.store.Count())
	}
}

func (p *Poller) pollAgency(ctx context.Context, a feed.Adapter) {
	agency := string(a.Agency())

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	trains, err := a.Poll(callCtx)
	p.metrics.ObservePoll(agency, time.Since(start), err)

	if err != nil {
		// The store keeps the last good batch for this agency.
		p.logger.Error("poll failed", "agency", agency, "error", err)
		return
	}

	if !p.store.Apply(a.Agency(), trains) {
		p.metrics.RecordStaleBatch(agency)
		p.logger.Warn("discarded stale batch", "agency", agency, "trains", len(trains))
		return
	}

	p.metrics.SetLiveTrains(agency, len(trains))
	p.logger.Debug("poll completed", "agency", agency, "trains", len(trains))
}

// IsReady reports whether at least one full cycle has completed.
func (p *Poller) IsReady() bool {
	p.readyMu.RLock()
	defer p.readyMu.RUnlock()
	return p.ready
}

func (p *Poller) setReady(ready bool) {
	p.readyMu.Lock()
	defer p.readyMu.Unlock()
	p.ready = ready
}
