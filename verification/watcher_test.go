package verification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/types"
)

// scriptedFetcher returns the i-th scripted value on the i-th call for a
// target, repeating the last one. Values are decimals, errors, or a string
// that is raised as a panic.
type scriptedFetcher struct {
	mu     sync.Mutex
	script map[string][]any
	calls  map[string]int
	block  map[string]chan struct{}
}

func newScripted(script map[string][]any) *scriptedFetcher {
	return &scriptedFetcher{script: script, calls: map[string]int{}, block: map[string]chan struct{}{}}
}

func (s *scriptedFetcher) Balance(_ context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	key := target.Key()
	s.mu.Lock()
	i := s.calls[key]
	s.calls[key]++
	seq := s.script[key]
	gate := s.block[key]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if len(seq) == 0 {
		return decimal.Zero, nil
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	switch v := seq[i].(type) {
	case error:
		return decimal.Zero, v
	case string:
		panic(v)
	case decimal.Decimal:
		return v, nil
	}
	return decimal.Zero, nil
}

func (s *scriptedFetcher) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

type sink struct {
	mu       sync.Mutex
	outcomes []types.PaymentOutcome
	attempts int
	// failures is the number of leading Complete calls that fail.
	failures int
	paid     atomic.Bool
}

var errLocked = errors.New("database is locked")

func (s *sink) Complete(_ context.Context, o types.PaymentOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return false, errLocked
	}
	s.outcomes = append(s.outcomes, o)
	return s.paid.CompareAndSwap(false, true), nil
}

func (s *sink) completeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *sink) IsPaid(context.Context, string) (bool, error) {
	return s.paid.Load(), nil
}

func (s *sink) recorded() []types.PaymentOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.PaymentOutcome(nil), s.outcomes...)
}

type fixedOrder types.Order

func (o fixedOrder) Order() types.Order { return types.Order(o) }

type fixedRates types.AssetRates

func (r fixedRates) Rates() types.AssetRates { return types.AssetRates(r) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// order40 totals $40: $35 subtotal plus $5 shipping.
func order40() types.Order {
	return types.NewOrder([]types.LineItem{
		{ProductID: "p1", Name: "Tee", UnitPrice: decimal.NewFromInt(35), Quantity: 1},
	}, time.UnixMilli(1700000000000))
}

func newWatcher(f clients.BalanceFetcher, s *sink, order types.Order) *Watcher {
	targets := types.BuildTargets(types.ReceivingAddresses{
		BTC:  "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		EVM:  "0x1111111111111111111111111111111111111111",
		Tron: "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf",
	})
	fetchers := map[types.Network]clients.BalanceFetcher{}
	for _, t := range targets {
		fetchers[t.Network] = f
	}
	return NewWatcher(Config{
		Targets:  targets,
		Fetchers: fetchers,
		Rates:    fixedRates(types.DefaultRates),
		Orders:   fixedOrder(order),
		Paid:     s,
		Sink:     s,
		Interval: 10 * time.Millisecond,
	})
}

func TestBaselineRecordedOnce(t *testing.T) {
	f := newScripted(map[string][]any{
		"btc_bitcoin": {d("0.0025"), d("0.003"), d("0.001")},
	})
	w := newWatcher(f, &sink{}, order40())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := w.CheckNow(ctx)
		require.NoError(t, err)
		assert.False(t, res.Detected)
		assert.InDelta(t, 100.0, w.Baselines()["btc_bitcoin"], 1e-9)
	}
	assert.Len(t, w.Baselines(), len(types.BuildTargets(types.ReceivingAddresses{})))
}

func TestFirstObservationNeverDetects(t *testing.T) {
	f := newScripted(map[string][]any{"usdt_erc20": {d("1000")}})
	s := &sink{}
	w := newWatcher(f, s, order40())

	res, err := w.CheckNow(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Empty(t, s.recorded())
}

func TestDetectionBoundary(t *testing.T) {
	cases := []struct {
		name   string
		after  string
		detect bool
	}{
		{"exactly the total", "50", true},
		{"one cent short", "49.99", false},
		{"above the total", "75", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newScripted(map[string][]any{"usdt_erc20": {d("10"), d(tc.after)}})
			s := &sink{}
			w := newWatcher(f, s, order40())
			ctx := context.Background()

			_, err := w.CheckNow(ctx)
			require.NoError(t, err)
			res, err := w.CheckNow(ctx)
			require.NoError(t, err)

			assert.Equal(t, tc.detect, res.Detected)
			if !tc.detect {
				assert.Empty(t, s.recorded())
				return
			}
			assert.True(t, res.Won)
			require.Len(t, s.recorded(), 1)
			o := s.recorded()[0]
			assert.Equal(t, types.AssetUSDT, o.Asset)
			assert.Equal(t, types.NetworkERC20, o.Network)
			assert.Equal(t, types.SourceWatcher, o.Source)
			assert.Equal(t, "1700000000000", o.OrderKey)
		})
	}
}

func TestScanOrderDecidesWinner(t *testing.T) {
	f := newScripted(map[string][]any{
		"btc_bitcoin":  {d("0.0025"), d("0.003625")}, // $100 -> $145
		"eth_ethereum": {d("0.025"), d("0.0475")},    // $50 -> $95
	})
	s := &sink{}
	w := newWatcher(f, s, order40())
	ctx := context.Background()

	_, err := w.CheckNow(ctx)
	require.NoError(t, err)
	res, err := w.CheckNow(ctx)
	require.NoError(t, err)

	require.True(t, res.Detected)
	assert.Equal(t, types.AssetBTC, res.Outcome.Asset)
	assert.InDelta(t, 45.0, res.Outcome.ObservedUSD, 1e-6)
	assert.Equal(t, []string{"btc_bitcoin"}, res.Checked)
	assert.Equal(t, 1, f.count("eth_ethereum"))
}

func TestAlreadyPaidMakesNoCalls(t *testing.T) {
	f := newScripted(nil)
	s := &sink{}
	s.paid.Store(true)
	w := newWatcher(f, s, order40())

	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.Running())

	res, err := w.CheckNow(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.calls)
	assert.Empty(t, s.recorded())
}

func TestTargetFailuresDoNotAbortPass(t *testing.T) {
	boom := errors.New("explorer down")
	f := newScripted(map[string][]any{
		"btc_bitcoin":  {boom},
		"eth_ethereum": {"nil pointer in decoder"},
		"usdt_trc20":   {d("0"), d("40")},
	})
	s := &sink{}
	w := newWatcher(f, s, order40())
	ctx := context.Background()

	res, err := w.CheckNow(ctx)
	require.NoError(t, err)
	assert.Len(t, multierr.Errors(res.Err), 2)
	assert.ErrorIs(t, res.Err, boom)
	assert.NotContains(t, w.Baselines(), "btc_bitcoin")
	assert.NotContains(t, w.Baselines(), "eth_ethereum")

	res, err = w.CheckNow(ctx)
	require.NoError(t, err)
	require.True(t, res.Detected)
	assert.Equal(t, types.NetworkTRC20, res.Outcome.Network)
	assert.Len(t, res.Checked, 9)
}

func TestMissingFetcherIsTargetFailure(t *testing.T) {
	w := newWatcher(newScripted(nil), &sink{}, order40())
	delete(w.cfg.Fetchers, types.NetworkPolygon)

	res, err := w.CheckNow(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, types.ErrUnknownTarget)
	assert.Len(t, w.Baselines(), 8)
}

func TestCheckNowNotReentrant(t *testing.T) {
	f := newScripted(nil)
	gate := make(chan struct{})
	f.block["btc_bitcoin"] = gate
	w := newWatcher(f, &sink{}, order40())

	done := make(chan Result)
	go func() {
		res, _ := w.CheckNow(context.Background())
		done <- res
	}()
	require.Eventually(t, func() bool { return f.count("btc_bitcoin") == 1 }, time.Second, time.Millisecond)

	res, err := w.CheckNow(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(gate)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, f.count("btc_bitcoin"))
}

func TestStartDetectsAndStops(t *testing.T) {
	f := newScripted(map[string][]any{"usdt_polygon": {d("5"), d("5"), d("45")}})
	s := &sink{}
	w := newWatcher(f, s, order40())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return len(s.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, types.NetworkPolygon, s.recorded()[0].Network)
	assert.Equal(t, 3, f.count("usdt_polygon"))
	w.Stop()
}

func TestFailedCompletionKeepsWatching(t *testing.T) {
	f := newScripted(map[string][]any{"usdt_erc20": {d("10"), d("60")}})
	s := &sink{failures: 1}
	w := newWatcher(f, s, order40())
	w.cfg.Interval = time.Hour

	_, err := w.CheckNow(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	// The loop's first pass detects but the outcome is not recorded.
	require.Eventually(t, func() bool { return s.completeCalls() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, s.recorded())
	assert.True(t, w.Running())

	var res Result
	require.Eventually(t, func() bool {
		res, err = w.CheckNow(context.Background())
		return err == nil && !res.Skipped
	}, time.Second, time.Millisecond)
	assert.True(t, res.Detected)
	assert.True(t, res.Won)
	require.Len(t, s.recorded(), 1)
	assert.Equal(t, types.NetworkERC20, s.recorded()[0].Network)
	assert.Equal(t, 10.0, w.Baselines()["usdt_erc20"])
	require.Eventually(t, func() bool { return !w.Running() }, time.Second, time.Millisecond)
}

func TestStartRetriesFailedCompletion(t *testing.T) {
	f := newScripted(map[string][]any{"usdt_erc20": {d("10"), d("60")}})
	s := &sink{failures: 2}
	w := newWatcher(f, s, order40())

	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return len(s.recorded()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !w.Running() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, s.completeCalls())
	assert.Equal(t, 4, f.count("usdt_erc20"))
	w.Stop()
}

func TestStartEmptyOrder(t *testing.T) {
	w := newWatcher(newScripted(nil), &sink{}, types.NewOrder(nil, time.Now()))
	assert.ErrorIs(t, w.Start(context.Background()), types.ErrEmptyCart)
}

func TestStopCancelsLoop(t *testing.T) {
	w := newWatcher(newScripted(nil), &sink{}, order40())
	require.NoError(t, w.Start(context.Background()))
	require.Eventually(t, func() bool { return len(w.Baselines()) == 9 }, time.Second, time.Millisecond)

	w.Stop()
	assert.False(t, w.Running())
}
