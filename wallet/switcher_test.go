package wallet_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/wallet"
	"github.com/vitwit/checkout/wallet/wallettest"
)

func connected(t *testing.T, p *wallettest.Provider, n types.Notifier) (*wallet.Session, *wallet.Switcher) {
	t.Helper()
	s := newSession(p, n)
	t.Cleanup(s.Close)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	return s, wallet.NewSwitcher(s, 0, nil, nil, n)
}

func TestSwitchToCurrentChainIsNoop(t *testing.T) {
	p := wallettest.New(account, types.ChainIDEthereum)
	_, sw := connected(t, p, nil)

	ok, err := sw.SwitchTo(context.Background(), types.ChainIDEthereum)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, p.SwitchCalls)
}

func TestSwitchTo(t *testing.T) {
	p := wallettest.New(account, types.ChainIDEthereum)
	s, sw := connected(t, p, nil)

	ok, err := sw.SwitchTo(context.Background(), types.ChainIDPolygon)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.ChainIDPolygon, s.Wallet().ChainID)
}

func TestSwitchToUnknownChainNotices(t *testing.T) {
	n := &recordingNotifier{}
	p := wallettest.New(account, types.ChainIDEthereum)
	p.Unknown = map[string]bool{types.ChainIDBSC: true}
	s, sw := connected(t, p, n)

	ok, err := sw.SwitchTo(context.Background(), types.ChainIDBSC)
	assert.False(t, ok)
	assert.ErrorIs(t, err, types.ErrChainNotAdded)
	assert.Contains(t, n.messages(), "Please add the BSC network manually in your wallet")
	assert.Equal(t, types.ChainIDEthereum, s.Wallet().ChainID)
}

func TestSwitchToOtherErrorVerbatim(t *testing.T) {
	p := wallettest.New(account, types.ChainIDEthereum)
	providerErr := &wallet.ProviderError{Code: -32002, Message: "request already pending"}
	p.SwitchErr = providerErr
	_, sw := connected(t, p, nil)

	ok, err := sw.SwitchTo(context.Background(), types.ChainIDPolygon)
	assert.False(t, ok)
	assert.Same(t, providerErr, err)
}
