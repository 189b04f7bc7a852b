package wallet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/types"
)

// Switcher moves the wallet onto a target chain.
type Switcher struct {
	session  *Session
	settle   time.Duration
	log      logger.Logger
	metrics  metrics.Recorder
	notifier types.Notifier
}

// NewSwitcher builds a Switcher. settle is how long to wait after a switch
// before reading the chain back.
func NewSwitcher(session *Session, settle time.Duration, log logger.Logger, rec metrics.Recorder, notifier types.Notifier) *Switcher {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if notifier == nil {
		notifier = types.NoopNotifier{}
	}
	return &Switcher{session: session, settle: settle, log: log, metrics: rec, notifier: notifier}
}

// SwitchTo switches to chainID. It succeeds without a provider call when the
// wallet is already there. A chain unknown to the wallet produces a manual
// add notice and ErrChainNotAdded; other provider errors are returned as is.
func (s *Switcher) SwitchTo(ctx context.Context, chainID string) (bool, error) {
	provider := s.session.Provider()
	if provider == nil {
		return false, types.ErrProviderMissing
	}

	if strings.EqualFold(s.session.Wallet().ChainID, chainID) {
		return true, nil
	}

	if err := provider.SwitchChain(ctx, chainID); err != nil {
		if ErrorCode(err) == CodeChainNotAdded {
			notice := fmt.Sprintf("Please add network %s manually in your wallet", chainID)
			if chain, ok := types.ChainByID(chainID); ok && chain.AddNetworkNotice != "" {
				notice = chain.AddNetworkNotice
			}
			s.notifier.Notify(types.NoticeWarning, notice)
			return false, types.NewError(types.ErrCodeChainNotAdded, notice, err)
		}
		s.notifier.Notify(types.NoticeError, "Network switch failed: "+err.Error())
		s.log.Warn("network switch failed", map[string]any{"chain_id": chainID, "error": err})
		return false, err
	}

	if s.settle > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.settle):
		}
	}

	current, err := s.session.SyncChain(ctx)
	if err != nil {
		return false, fmt.Errorf("read chain after switch: %w", err)
	}
	if !strings.EqualFold(current, chainID) {
		return false, fmt.Errorf("wallet reports chain %s after switching to %s", current, chainID)
	}

	s.metrics.IncCounter(metrics.EventNetworkSwitched, map[string]string{"network": types.ChainName(chainID)})
	s.log.Info("switched network", map[string]any{"chain_id": chainID})
	return true, nil
}
