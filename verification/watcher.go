// Package verification detects incoming payments by polling receiving
// address balances across every supported network.
package verification

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
)

// Epsilon absorbs float error when comparing a balance increase to the total.
const Epsilon = 1e-10

// DefaultInterval is the delay between detection passes.
const DefaultInterval = 45 * time.Second

// Config wires a Watcher to its collaborators.
type Config struct {
	// Targets are scanned in slice order; the first qualifying target wins.
	Targets  []types.PaymentTarget
	Fetchers map[types.Network]clients.BalanceFetcher
	Rates    types.RateSource
	Orders   types.OrderSource
	Paid     types.PaidChecker
	Sink     types.OutcomeSink
	Interval time.Duration
	Logger   logger.Logger
	Metrics  metrics.Recorder
}

// Result describes one pass.
type Result struct {
	// Skipped is set when another pass was in flight or the order was paid.
	Skipped bool
	// Checked lists the keys of targets fetched, in scan order.
	Checked  []string
	Detected bool
	Outcome  types.PaymentOutcome
	// Won reports whether Outcome was the first for its order.
	Won bool
	// Err aggregates per-target failures; they never abort the pass.
	Err error
}

// Watcher infers payment from balance increases over a per-target baseline.
type Watcher struct {
	cfg Config
	log logger.Logger
	now func() time.Time

	inFlight atomic.Bool

	mu        sync.Mutex
	baselines map[string]float64

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWatcher(cfg Config) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoopRecorder{}
	}
	return &Watcher{
		cfg:       cfg,
		log:       cfg.Logger.With(map[string]any{"component": "watcher"}),
		now:       time.Now,
		baselines: make(map[string]float64),
	}
}

// Start runs a baseline pass and then a detection pass every interval until
// a payment is detected or Stop is called. It does nothing for an order that
// is already paid, and it is a no-op while the loop is running.
func (w *Watcher) Start(ctx context.Context) error {
	order := w.cfg.Orders.Order()
	if order.IsEmpty() {
		return types.ErrEmptyCart
	}
	if paid, err := w.isPaid(ctx, order.Key()); err != nil {
		return err
	} else if paid {
		w.log.Info("order already paid, watcher not started", map[string]any{"order_key": order.Key()})
		return nil
	}

	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.done != nil {
		select {
		case <-w.done:
		default:
			return nil
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel, w.done = cancel, done

	go func() {
		defer close(done)
		w.loop(loopCtx)
	}()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		res, err := w.CheckNow(ctx)
		if err != nil {
			w.log.Warn("detection pass failed", map[string]any{"error": err})
		}
		// A detection whose outcome was not recorded is retried next pass.
		if res.Detected && err == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Running reports whether the polling loop is active.
func (w *Watcher) Running() bool {
	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Cancel stops the polling loop without waiting for it. It is safe to call
// from an OutcomeSink.
func (w *Watcher) Cancel() {
	w.loopMu.Lock()
	defer w.loopMu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
}

// Stop stops the polling loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.loopMu.Lock()
	cancel, done := w.cancel, w.done
	w.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Baselines returns a copy of the recorded USD baselines keyed by target.
func (w *Watcher) Baselines() map[string]float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]float64, len(w.baselines))
	for k, v := range w.baselines {
		out[k] = v
	}
	return out
}

// CheckNow runs one pass immediately. A target seen for the first time only
// records its baseline. A pass already in flight makes this call a no-op.
func (w *Watcher) CheckNow(ctx context.Context) (Result, error) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer w.inFlight.Store(false)

	order := w.cfg.Orders.Order()
	if order.IsEmpty() {
		return Result{Skipped: true}, nil
	}
	paid, err := w.isPaid(ctx, order.Key())
	if err != nil {
		return Result{}, err
	}
	if paid {
		w.Cancel()
		return Result{Skipped: true}, nil
	}

	start := time.Now()
	res := w.scan(ctx, order)
	w.cfg.Metrics.ObserveLatency(metrics.EventWatcherPass, time.Since(start), nil)
	w.cfg.Metrics.IncCounter(metrics.EventWatcherPass, nil)

	if !res.Detected {
		return res, nil
	}

	w.cfg.Metrics.IncCounter(metrics.EventPaymentDetected, map[string]string{
		"asset": res.Outcome.Asset.String(), "network": res.Outcome.Network.String(),
	})
	w.log.Info("payment detected", map[string]any{
		"order_key": res.Outcome.OrderKey,
		"asset":     res.Outcome.Asset.String(),
		"network":   res.Outcome.Network.String(),
		"usd":       res.Outcome.ObservedUSD,
	})

	if w.cfg.Sink != nil {
		res.Won, err = w.cfg.Sink.Complete(context.WithoutCancel(ctx), res.Outcome)
		if err != nil {
			if !res.Won {
				return res, fmt.Errorf("complete order: %w", err)
			}
			w.log.Warn("order paid with completion errors", map[string]any{"order_key": res.Outcome.OrderKey, "error": err})
		}
	}
	w.Cancel()
	return res, nil
}

func (w *Watcher) scan(ctx context.Context, order types.Order) Result {
	var res Result
	total, _ := order.Total.Float64()
	rates := w.cfg.Rates.Rates()

	for _, target := range w.cfg.Targets {
		if ctx.Err() != nil {
			res.Err = multierr.Append(res.Err, ctx.Err())
			break
		}

		key := target.Key()
		res.Checked = append(res.Checked, key)

		balance, err := w.fetch(ctx, target)
		if err != nil {
			w.cfg.Metrics.IncCounter(metrics.EventBalanceCheckFailed, map[string]string{
				"asset": target.Asset.String(), "network": target.Network.String(),
			})
			w.log.Warn("balance check failed", map[string]any{
				"target": key, "asset": target.Asset.String(), "network": target.Network.String(), "error": err,
			})
			res.Err = multierr.Append(res.Err, fmt.Errorf("%s: %w", key, err))
			continue
		}

		usd := utils.USDValue(balance, rates.Rate(target.Asset))
		baseline, ok := w.baseline(key, usd)
		if !ok {
			w.log.Debug("baseline recorded", map[string]any{"target": key, "usd": usd})
			continue
		}

		increase := usd - baseline
		if increase+Epsilon >= total {
			res.Detected = true
			res.Outcome = types.PaymentOutcome{
				OrderKey:    order.Key(),
				Asset:       target.Asset,
				Network:     target.Network,
				ObservedUSD: increase,
				Source:      types.SourceWatcher,
				Timestamp:   w.now(),
			}
			break
		}
	}
	return res
}

// baseline returns the recorded baseline for key. The first call records usd
// and reports false.
func (w *Watcher) baseline(key string, usd float64) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.baselines[key]; ok {
		return b, true
	}
	w.baselines[key] = usd
	return 0, false
}

func (w *Watcher) fetch(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	fetcher, ok := w.cfg.Fetchers[target.Network]
	if !ok {
		return decimal.Zero, types.NewError(types.ErrCodeUnknownTarget, "no balance fetcher for "+target.Network.String(), nil)
	}

	var (
		balance decimal.Decimal
		err     error
		catcher panics.Catcher
	)
	start := time.Now()
	catcher.Try(func() {
		balance, err = fetcher.Balance(ctx, target)
	})
	w.cfg.Metrics.ObserveLatency("balance_check", time.Since(start), map[string]string{"network": target.Network.String()})
	if r := catcher.Recovered(); r != nil {
		return decimal.Zero, r.AsError()
	}
	return balance, err
}

func (w *Watcher) isPaid(ctx context.Context, orderKey string) (bool, error) {
	if w.cfg.Paid == nil {
		return false, nil
	}
	paid, err := w.cfg.Paid.IsPaid(ctx, orderKey)
	if err != nil {
		return false, fmt.Errorf("check paid state: %w", err)
	}
	return paid, nil
}
