package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/types"
)

// State is the connection state of a Session.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateChainMismatch State = "chain_mismatch"
)

const inboxSize = 16

// Snapshot captures the session state so a failed operation can restore it.
type Snapshot struct {
	State  State
	Wallet types.WalletState
}

// Session owns the WalletState. Only the session writes it: directly from
// Connect/Restore/RefreshAccount and from provider events consumed by its
// own inbox loop.
type Session struct {
	provider  Provider
	supported map[string]bool
	log       logger.Logger
	notifier  types.Notifier

	mu        sync.RWMutex
	state     State
	wallet    types.WalletState
	listeners []func(State, types.WalletState)

	subMu       sync.Mutex
	unsubscribe func()
	stop        chan struct{}
	loopDone    chan struct{}
}

// NewSession builds a session. A nil provider means no wallet is installed.
func NewSession(provider Provider, supportedChains []string, log logger.Logger, notifier types.Notifier) *Session {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if notifier == nil {
		notifier = types.NoopNotifier{}
	}
	supported := make(map[string]bool, len(supportedChains))
	for _, id := range supportedChains {
		supported[strings.ToLower(id)] = true
	}
	return &Session{
		provider:  provider,
		supported: supported,
		log:       log,
		notifier:  notifier,
		state:     StateDisconnected,
	}
}

// Provider returns the underlying provider, nil when none is installed.
func (s *Session) Provider() Provider {
	return s.provider
}

// State returns the current state and wallet.
func (s *Session) State() (State, types.WalletState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.wallet
}

// Wallet returns the current WalletState.
func (s *Session) Wallet() types.WalletState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

// Snapshot returns the current state for a later Revert.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: s.state, Wallet: s.wallet}
}

// Revert restores a Snapshot.
func (s *Session) Revert(snap Snapshot) {
	s.set(snap.State, snap.Wallet)
}

// OnChange registers fn to run after every state transition.
func (s *Session) OnChange(fn func(State, types.WalletState)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// IsSupported reports whether chainID is on the allow-list.
func (s *Session) IsSupported(chainID string) bool {
	return s.supported[strings.ToLower(chainID)]
}

// Connect asks the buyer for account access. An unsupported chain returns
// ErrUnsupportedChain with the account still connected.
func (s *Session) Connect(ctx context.Context) (types.WalletState, error) {
	if s.provider == nil {
		s.notifier.Notify(types.NoticeError, "No crypto wallet found. Please install MetaMask: "+InstallURL)
		return types.WalletState{}, types.ErrProviderMissing
	}

	prev := s.Snapshot()
	s.set(StateConnecting, prev.Wallet)

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.set(StateDisconnected, types.WalletState{})
		if ErrorCode(err) == CodeUserRejected {
			s.notifier.Notify(types.NoticeWarning, "Wallet connection was rejected")
			return types.WalletState{}, types.NewError(types.ErrCodeUserRejected, "wallet connection rejected", err)
		}
		s.notifier.Notify(types.NoticeError, "Wallet connection failed: "+err.Error())
		return types.WalletState{}, fmt.Errorf("request accounts: %w", err)
	}

	return s.attach(ctx, accounts)
}

// Restore reconnects silently when the provider already authorized an
// account. It reports whether the session is now connected.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.provider == nil {
		return false, nil
	}
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return false, fmt.Errorf("read accounts: %w", err)
	}
	if len(accounts) == 0 {
		return false, nil
	}
	if _, err := s.attach(ctx, accounts); err != nil && !isUnsupportedChain(err) {
		return false, err
	}
	return true, nil
}

func (s *Session) attach(ctx context.Context, accounts []string) (types.WalletState, error) {
	if len(accounts) == 0 {
		s.set(StateDisconnected, types.WalletState{})
		return types.WalletState{}, types.ErrWalletDisconnected
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		s.set(StateDisconnected, types.WalletState{})
		return types.WalletState{}, fmt.Errorf("read chain id: %w", err)
	}

	w := types.WalletState{Connected: true, Account: accounts[0], ChainID: chainID}
	s.subscribe()

	if !s.IsSupported(chainID) {
		s.set(StateChainMismatch, w)
		s.notifier.Notify(types.NoticeWarning, fmt.Sprintf("Please switch to a supported network (currently on %s)", types.ChainName(chainID)))
		return w, types.NewError(types.ErrCodeUnsupportedChain, fmt.Sprintf("chain %s is not supported", chainID), nil)
	}

	s.set(StateConnected, w)
	s.log.Info("wallet connected", map[string]any{"account": w.Account, "chain_id": chainID})
	return w, nil
}

// RefreshAccount re-reads the authorized account. An empty list disconnects
// the session and returns ErrWalletDisconnected.
func (s *Session) RefreshAccount(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", types.ErrProviderMissing
	}
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("read accounts: %w", err)
	}
	s.handle(Event{Kind: EventAccountsChanged, Accounts: accounts})
	if len(accounts) == 0 {
		return "", types.ErrWalletDisconnected
	}
	return accounts[0], nil
}

// SyncChain re-reads the active chain from the provider.
func (s *Session) SyncChain(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", types.ErrProviderMissing
	}
	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		return "", err
	}
	s.handle(Event{Kind: EventChainChanged, ChainID: chainID})
	return chainID, nil
}

// SendTransaction sends tx through the provider. A buyer rejection maps to
// ErrUserRejected.
func (s *Session) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	if s.provider == nil {
		return "", types.ErrProviderMissing
	}
	hash, err := s.provider.SendTransaction(ctx, tx)
	if err != nil {
		if ErrorCode(err) == CodeUserRejected {
			return "", types.NewError(types.ErrCodeUserRejected, "transaction rejected by user", err)
		}
		return "", err
	}
	return hash, nil
}

// subscribe replaces any previous subscription so each event is handled once.
func (s *Session) subscribe() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.unsubscribeLocked()

	inbox := make(chan Event, inboxSize)
	stop := make(chan struct{})
	done := make(chan struct{})
	s.unsubscribe = s.provider.Subscribe(inbox)
	s.stop = stop
	s.loopDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case ev := <-inbox:
				s.handle(ev)
			}
		}
	}()
}

func (s *Session) unsubscribeLocked() {
	if s.unsubscribe == nil {
		return
	}
	s.unsubscribe()
	close(s.stop)
	<-s.loopDone
	s.unsubscribe, s.stop, s.loopDone = nil, nil, nil
}

// handle is the transition function for provider events.
func (s *Session) handle(ev Event) {
	s.mu.Lock()
	state, w := s.state, s.wallet

	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			state, w = StateDisconnected, types.WalletState{ChainID: w.ChainID}
			break
		}
		w.Connected = true
		w.Account = ev.Accounts[0]
		state = s.connectedState(w.ChainID)
	case EventChainChanged:
		w.ChainID = ev.ChainID
		if w.Connected {
			state = s.connectedState(ev.ChainID)
		}
	default:
		s.mu.Unlock()
		return
	}

	changed := state != s.state || w != s.wallet
	s.state, s.wallet = state, w
	listeners := append(([]func(State, types.WalletState))(nil), s.listeners...)
	s.mu.Unlock()

	if !changed {
		return
	}
	s.log.Debug("wallet state changed", map[string]any{"state": string(state), "account": w.Account, "chain_id": w.ChainID})
	for _, fn := range listeners {
		fn(state, w)
	}
}

func (s *Session) connectedState(chainID string) State {
	if chainID == "" || s.IsSupported(chainID) {
		return StateConnected
	}
	return StateChainMismatch
}

func (s *Session) set(state State, w types.WalletState) {
	s.mu.Lock()
	changed := state != s.state || w != s.wallet
	s.state, s.wallet = state, w
	listeners := append(([]func(State, types.WalletState))(nil), s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(state, w)
		}
	}
}

// Close drops the provider subscription.
func (s *Session) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.unsubscribeLocked()
}

func isUnsupportedChain(err error) bool {
	return errors.Is(err, types.ErrUnsupportedChain)
}
