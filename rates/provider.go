package rates

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/types"
)

// Listener is notified with the new rates after every successful refresh.
type Listener func(types.AssetRates)

// Provider caches the USD rates and refreshes them on a fixed schedule.
// Rates are replaced as a whole or not at all.
type Provider struct {
	source   Source
	interval time.Duration
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	mu        sync.RWMutex
	rates     types.AssetRates
	updatedAt time.Time
	listeners []Listener

	refreshing atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProvider starts from types.DefaultRates so a rate is never zero.
func NewProvider(source Source, interval time.Duration, log logger.Logger, rec metrics.Recorder) *Provider {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Provider{
		source:   source,
		interval: interval,
		log:      log,
		metrics:  rec,
		now:      time.Now,
		rates:    types.DefaultRates,
	}
}

// Rates returns the current rates.
func (p *Provider) Rates() types.AssetRates {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rates
}

// UpdatedAt is the time of the last successful refresh, zero before one.
func (p *Provider) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// OnRefresh registers fn to run after each successful refresh.
func (p *Provider) OnRefresh(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Refresh fetches new rates. On failure the previous rates and timestamp are
// kept and the error is returned. A refresh already in flight makes this call
// a no-op returning the current rates.
func (p *Provider) Refresh(ctx context.Context) (types.AssetRates, error) {
	if !p.refreshing.CompareAndSwap(false, true) {
		p.log.Debug("rate refresh already in flight", nil)
		return p.Rates(), nil
	}
	defer p.refreshing.Store(false)

	start := p.now()
	fresh, err := p.source.FetchRates(ctx)
	p.metrics.ObserveLatency("rate_refresh", time.Since(start), nil)
	if err != nil {
		p.metrics.IncCounter(metrics.EventRatesFailed, nil)
		p.log.Warn("failed to refresh rates, keeping last known values", map[string]any{"error": err})
		return p.Rates(), err
	}

	p.mu.Lock()
	p.rates = fresh
	p.updatedAt = p.now()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	p.metrics.IncCounter(metrics.EventRatesRefreshed, nil)
	for _, asset := range types.Assets {
		p.metrics.SetGauge("rate_usd", fresh.Rate(asset), map[string]string{"asset": asset.String()})
	}
	p.log.Debug("rates refreshed", map[string]any{"btc": fresh.BTC, "eth": fresh.ETH, "usdt": fresh.USDT})

	for _, fn := range listeners {
		fn(fresh)
	}
	return fresh, nil
}

// Start refreshes once and then on every interval until Stop or ctx is done.
func (p *Provider) Start(ctx context.Context) {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		_, _ = p.Refresh(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = p.Refresh(ctx)
			}
		}
	}(p.done)
}

// Stop cancels the refresh loop and waits for it to exit.
func (p *Provider) Stop() {
	p.loopMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
