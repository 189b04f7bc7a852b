// Package checkout lets a buyer pay an order in BTC, ETH or USDT on one of
// several networks, and detects the payment either from a wallet transaction
// receipt or from a balance increase on the receiving addresses.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/ledger"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/rates"
	"github.com/vitwit/checkout/settlement"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
	"github.com/vitwit/checkout/verification"
	"github.com/vitwit/checkout/wallet"
)

// Version is reported in the summary and the daemon's startup log.
const Version = "1.0.0"

// ExpiredNotice is shown when the payment window runs out.
const ExpiredNotice = "Payment time has expired. Please start over."

// Navigator performs the success redirect.
type Navigator interface {
	Redirect(url string)
}

// Selection is the asset and network the buyer chose to pay with.
type Selection struct {
	Asset   types.Asset   `json:"asset"`
	Network types.Network `json:"network"`
}

// Session orchestrates one checkout: it owns the order snapshot, the
// selection, the countdown and the single paid transition.
type Session struct {
	cfg *types.CheckoutConfig

	log          logger.Logger
	metrics      metrics.Recorder
	store        ledger.Store
	provider     wallet.Provider
	rateSource   rates.Source
	fetcher      *clients.Fetcher
	fetchers     map[types.Network]clients.BalanceFetcher
	chainClients map[types.Network]settlement.ChainClient
	navigator    Navigator

	createdAt     time.Time
	countdownTick time.Duration
	now           func() time.Time

	targets   []types.PaymentTarget
	notices   *NoticeBoard
	rates     *rates.Provider
	wallet    *wallet.Session
	switcher  *wallet.Switcher
	tracker   *settlement.Tracker
	submitter *settlement.Submitter
	watcher   *verification.Watcher
	countdown *Countdown

	mu            sync.RWMutex
	order         types.Order
	selection     Selection
	options       []PaymentOption
	buyer         string
	walletStatus  wallet.State
	paid          bool
	outcome       *types.PaymentOutcome
	redirect      string
	redirectTimer *time.Timer
}

// New builds a session for the cart items. Components are wired from cfg
// unless an option replaces them.
func New(cfg *types.CheckoutConfig, items []types.LineItem, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = types.DefaultConfig()
	}
	for i, item := range items {
		if err := utils.Validator().Struct(item); err != nil {
			return nil, types.NewError(types.ErrCodeConfig, fmt.Sprintf("invalid cart item %d", i), err)
		}
	}

	s := &Session{
		cfg:     cfg,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = ledger.NewMemoryStore()
	}
	if s.createdAt.IsZero() {
		s.createdAt = s.now()
	}
	if s.fetcher == nil {
		s.fetcher = clients.NewFetcher(cfg.DefaultTimeout, cfg.RetryCount)
	}
	if s.rateSource == nil {
		s.rateSource = rates.NewCoinGecko(s.fetcher, cfg.Endpoints.Rates)
	}

	s.order = types.NewOrder(items, s.createdAt)
	s.selection = Selection{Asset: types.AssetBTC, Network: types.DefaultNetwork(types.AssetBTC)}
	s.targets = types.BuildTargets(cfg.Addresses())
	s.notices = NewNoticeBoard(s.log)
	s.countdown = NewCountdown(cfg.Intervals.PaymentWindow, s.countdownTick)

	s.rates = rates.NewProvider(s.rateSource, cfg.Intervals.Rates, s.log, s.metrics)
	s.rates.OnRefresh(s.recompute)

	s.wallet = wallet.NewSession(s.provider, cfg.SupportedChains, s.log, s.notices)
	s.walletStatus = wallet.StateDisconnected
	s.wallet.OnChange(s.walletChanged)
	s.switcher = wallet.NewSwitcher(s.wallet, cfg.Intervals.SwitchSettle, s.log, s.metrics, s.notices)

	s.tracker = settlement.NewTracker(cfg.Intervals.Receipt, s, s.store, s.log, s.metrics, s.notices)
	readers := make(map[types.Network]clients.BalanceFetcher)
	for network, c := range s.chainClients {
		if err := s.tracker.AddClient(network, c); err != nil {
			return nil, err
		}
		if r, ok := c.(clients.BalanceFetcher); ok {
			readers[network] = r
		}
	}
	if s.fetchers == nil {
		s.fetchers = clients.NewBalanceFetchers(cfg, s.fetcher, readers)
	}

	s.submitter = settlement.NewSubmitter(s.wallet, s.switcher, s.tracker, s.targets, s, s.rates, s.log, s.metrics, s.notices)
	s.watcher = verification.NewWatcher(verification.Config{
		Targets:  s.targets,
		Fetchers: s.fetchers,
		Rates:    s.rates,
		Orders:   s,
		Paid:     s.store,
		Sink:     s,
		Interval: cfg.Intervals.Watch,
		Logger:   s.log,
		Metrics:  s.metrics,
	})

	s.recompute(s.rates.Rates())
	return s, nil
}

// Start begins rate refreshes, restores an authorized wallet, starts the
// countdown and the balance watcher. An order that is already paid only
// reloads its outcome.
func (s *Session) Start(ctx context.Context) error {
	s.rates.Start(ctx)

	if restored, err := s.wallet.Restore(ctx); err != nil {
		s.log.Warn("wallet restore failed", map[string]any{"error": err})
	} else if restored {
		s.log.Info("wallet restored", map[string]any{"account": s.wallet.Wallet().Account})
	}

	order := s.Order()
	outcome, paid, err := s.store.Outcome(ctx, order.Key())
	if err != nil {
		return fmt.Errorf("load outcome: %w", err)
	}
	if paid {
		s.mu.Lock()
		s.paid, s.outcome = true, &outcome
		s.mu.Unlock()
		s.log.Info("order already paid", map[string]any{"order_key": order.Key()})
		return nil
	}

	if order.IsEmpty() {
		return nil
	}

	s.countdown.Start(s.expire)
	return s.watcher.Start(ctx)
}

func (s *Session) expire() {
	s.metrics.IncCounter(metrics.EventPaymentExpired, nil)
	s.notices.Notify(types.NoticeWarning, ExpiredNotice)
}

// Order returns the order being paid.
func (s *Session) Order() types.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order
}

// Targets returns every payment target in scan order.
func (s *Session) Targets() []types.PaymentTarget {
	return s.targets
}

// Notices returns the recent buyer notices.
func (s *Session) Notices() []types.Notice {
	return s.notices.Recent()
}

// Select changes the payment method. An empty network picks the asset's
// default network.
func (s *Session) Select(asset types.Asset, network types.Network) (Selection, error) {
	if !asset.Valid() {
		return Selection{}, types.NewError(types.ErrCodeUnknownTarget, fmt.Sprintf("unknown asset %q", asset), nil)
	}
	target, ok := types.FindTarget(s.targets, asset, network)
	if !ok {
		return Selection{}, types.NewError(types.ErrCodeUnknownTarget, fmt.Sprintf("%s is not available on %s", asset, network), nil)
	}

	sel := Selection{Asset: target.Asset, Network: target.Network}
	s.mu.Lock()
	s.selection = sel
	s.mu.Unlock()
	return sel, nil
}

// RefreshRates fetches rates now. On failure the last known rates stay.
func (s *Session) RefreshRates(ctx context.Context) (types.AssetRates, error) {
	r, err := s.rates.Refresh(ctx)
	if err != nil {
		s.notices.Notify(types.NoticeWarning, "Could not refresh exchange rates, using last known values")
		return r, err
	}
	return r, nil
}

// ConnectWallet asks the buyer's wallet for account access.
func (s *Session) ConnectWallet(ctx context.Context) (types.WalletState, error) {
	return s.wallet.Connect(ctx)
}

// walletChanged mirrors wallet transitions into the summary.
func (s *Session) walletChanged(state wallet.State, w types.WalletState) {
	s.mu.Lock()
	s.walletStatus = state
	s.mu.Unlock()
	s.log.Info("wallet status changed", map[string]any{
		"state": string(state), "account": w.Account, "chain_id": w.ChainID,
	})
}

// Pay submits a wallet transaction for the current selection.
func (s *Session) Pay(ctx context.Context) (string, error) {
	if s.IsPaid() {
		return "", types.ErrAlreadyPaid
	}
	s.mu.RLock()
	sel := s.selection
	s.mu.RUnlock()
	return s.submitter.Submit(ctx, sel.Asset, sel.Network)
}

// CheckNow runs a detection pass immediately.
func (s *Session) CheckNow(ctx context.Context) (verification.Result, error) {
	if s.IsPaid() {
		return verification.Result{Skipped: true}, nil
	}
	return s.watcher.CheckNow(ctx)
}

// SetBuyer sets the email purchase history is recorded under. Empty means
// anonymous.
func (s *Session) SetBuyer(email string) {
	s.mu.Lock()
	s.buyer = email
	s.mu.Unlock()
}

// SaveCustomer records shipping info on the last order record.
func (s *Session) SaveCustomer(ctx context.Context, c types.Customer) error {
	return s.store.SaveCustomer(ctx, c)
}

// Purchases returns the purchase history of email.
func (s *Session) Purchases(ctx context.Context, email string) ([]types.PurchaseRecord, error) {
	return s.store.Purchases(ctx, email)
}

// IsPaid reports whether this session observed or loaded a paid outcome.
func (s *Session) IsPaid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paid
}

// Complete finalizes a detected payment. Only the first outcome for the
// order wins; it stops both producers, stores the completed order and
// redirects to the success view.
func (s *Session) Complete(ctx context.Context, outcome types.PaymentOutcome) (bool, error) {
	won, err := s.store.MarkPaid(ctx, outcome)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	if !won {
		s.log.Debug("outcome ignored, order already paid", map[string]any{
			"order_key": outcome.OrderKey, "source": string(outcome.Source),
		})
		return false, nil
	}

	s.watcher.Cancel()
	s.tracker.StopAll()
	s.countdown.Stop()

	s.mu.Lock()
	s.paid, s.outcome = true, &outcome
	order, buyer := s.order, s.buyer
	s.mu.Unlock()

	s.metrics.IncCounter(metrics.EventOrderCompleted, map[string]string{
		"asset": outcome.Asset.String(), "network": outcome.Network.String(),
	})
	s.log.Info("order paid", map[string]any{
		"order_key": outcome.OrderKey,
		"asset":     outcome.Asset.String(),
		"network":   outcome.Network.String(),
		"source":    string(outcome.Source),
		"tx_hash":   outcome.TxHash,
	})

	err = s.recordOrder(ctx, order, buyer)
	if err != nil {
		s.log.Error("failed to record completed order", map[string]any{"order_key": outcome.OrderKey, "error": err})
	}

	delay := time.Duration(0)
	if outcome.Source == types.SourceTracker {
		delay = s.cfg.Intervals.Redirect
	}
	s.scheduleRedirect(SuccessURL(s.cfg.SuccessURL, outcome), delay)
	return true, err
}

// SuccessURL appends the winning asset and network to base.
func SuccessURL(base string, outcome types.PaymentOutcome) string {
	q := url.Values{}
	q.Set("currency", outcome.Asset.String())
	q.Set("network", outcome.Network.String())
	return base + "?" + q.Encode()
}

func (s *Session) scheduleRedirect(target string, delay time.Duration) {
	do := func() {
		s.mu.Lock()
		s.redirect = target
		nav := s.navigator
		s.mu.Unlock()
		if nav != nil {
			nav.Redirect(target)
		}
	}
	if delay <= 0 {
		do()
		return
	}
	s.mu.Lock()
	s.redirectTimer = time.AfterFunc(delay, do)
	s.mu.Unlock()
}

// Redirect returns the success URL once the redirect happened.
func (s *Session) Redirect() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redirect
}

// Close stops every loop. The store is owned by the caller.
func (s *Session) Close() {
	s.watcher.Stop()
	s.tracker.Close()
	s.rates.Stop()
	s.wallet.Close()
	s.countdown.Stop()

	s.mu.Lock()
	if s.redirectTimer != nil {
		s.redirectTimer.Stop()
	}
	s.mu.Unlock()
}
