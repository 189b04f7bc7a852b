package settlement_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/checkout/settlement"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/wallet"
	"github.com/vitwit/checkout/wallet/wallettest"
)

type staticOrder types.Order

func (o staticOrder) Order() types.Order { return types.Order(o) }

type staticRates types.AssetRates

func (r staticRates) Rates() types.AssetRates { return types.AssetRates(r) }

type submitterFixture struct {
	provider *wallettest.Provider
	session  *wallet.Session
	tracker  *settlement.Tracker
	chains   map[types.Network]*fakeChain
	notices  *notices
	sub      *settlement.Submitter
}

func newSubmitter(t *testing.T, order types.Order) *submitterFixture {
	t.Helper()
	f := &submitterFixture{
		provider: wallettest.New(buyer, types.ChainIDEthereum),
		notices:  &notices{},
		chains:   map[types.Network]*fakeChain{},
	}
	f.session = wallet.NewSession(f.provider, types.DefaultSupportedChains, nil, f.notices)
	t.Cleanup(f.session.Close)

	f.tracker = settlement.NewTracker(time.Hour, &fakeSink{}, nil, nil, nil, f.notices)
	t.Cleanup(f.tracker.Close)
	for _, n := range []types.Network{types.NetworkEthereum, types.NetworkERC20, types.NetworkPolygon, types.NetworkBEP20} {
		c := &fakeChain{gasPrice: big.NewInt(30_000_000_000), gas: 65000}
		f.chains[n] = c
		require.NoError(t, f.tracker.AddClient(n, c))
	}

	targets := types.BuildTargets(types.ReceivingAddresses{
		BTC:  "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		EVM:  merchant,
		Tron: "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf",
	})
	switcher := wallet.NewSwitcher(f.session, 0, nil, nil, f.notices)
	f.sub = settlement.NewSubmitter(f.session, switcher, f.tracker, targets,
		staticOrder(order), staticRates(types.DefaultRates), nil, nil, f.notices)
	return f
}

func TestSubmitNativeETH(t *testing.T) {
	f := newSubmitter(t, testOrder())

	hash, err := f.sub.Submit(context.Background(), types.AssetETH, "")
	require.NoError(t, err)
	assert.Equal(t, f.provider.SendHash, hash)

	sent := f.provider.Transactions()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, buyer, tx.From)
	assert.Equal(t, merchant, tx.To)
	// $40 at $2000/ETH
	assert.Equal(t, "20000000000000000", tx.Value.String())
	assert.Equal(t, settlement.NativeTransferGas, tx.Gas)
	assert.Equal(t, big.NewInt(30_000_000_000), tx.GasPrice)
	assert.Empty(t, tx.Data)
	assert.Empty(t, f.provider.SwitchCalls)
	assert.Equal(t, []string{hash}, f.tracker.Jobs())
}

func TestSubmitTokenSwitchesNetwork(t *testing.T) {
	f := newSubmitter(t, testOrder())

	_, err := f.sub.Submit(context.Background(), types.AssetUSDT, types.NetworkPolygon)
	require.NoError(t, err)

	assert.Equal(t, []string{types.ChainIDPolygon}, f.provider.SwitchCalls)
	sent := f.provider.Transactions()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, types.USDTContractPolygon, tx.To)
	assert.Equal(t, int64(0), tx.Value.Int64())
	assert.Equal(t, uint64(65000), tx.Gas)
	require.Len(t, tx.Data, 4+32+32)
	assert.Equal(t, "a9059cbb", common.Bytes2Hex(tx.Data[:4]))
	assert.Equal(t, int64(40_000_000), new(big.Int).SetBytes(tx.Data[36:]).Int64())
	assert.Equal(t, common.HexToAddress(merchant), common.BytesToAddress(tx.Data[4:36]))

	require.Len(t, f.chains[types.NetworkPolygon].msgs, 1)
	assert.Equal(t, common.HexToAddress(buyer), f.chains[types.NetworkPolygon].msgs[0].From)
}

func TestSubmitTokenGasFallback(t *testing.T) {
	f := newSubmitter(t, testOrder())
	f.chains[types.NetworkERC20].gasErr = errBoom

	_, err := f.sub.Submit(context.Background(), types.AssetUSDT, "")
	require.NoError(t, err)
	require.Len(t, f.provider.Transactions(), 1)
	assert.Equal(t, settlement.FallbackTokenGas, f.provider.Transactions()[0].Gas)
}

func TestSubmitManualTransferTargets(t *testing.T) {
	f := newSubmitter(t, testOrder())

	for _, tc := range []struct {
		asset   types.Asset
		network types.Network
	}{
		{types.AssetBTC, ""},
		{types.AssetUSDT, types.NetworkTRC20},
	} {
		_, err := f.sub.Submit(context.Background(), tc.asset, tc.network)
		assert.ErrorIs(t, err, types.ErrManualTransferRequired, tc.asset)
	}
	assert.Empty(t, f.provider.Transactions())
}

func TestSubmitEmptyCart(t *testing.T) {
	f := newSubmitter(t, types.NewOrder(nil, time.Now()))

	_, err := f.sub.Submit(context.Background(), types.AssetETH, "")
	assert.ErrorIs(t, err, types.ErrEmptyCart)
	assert.Empty(t, f.provider.Transactions())
}

func TestSubmitWithoutWallet(t *testing.T) {
	f := newSubmitter(t, testOrder())
	f.provider.RequestErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "rejected"}

	_, err := f.sub.Submit(context.Background(), types.AssetETH, "")
	assert.ErrorIs(t, err, types.ErrWalletRequired)
}

func TestSubmitUserRejected(t *testing.T) {
	f := newSubmitter(t, testOrder())
	f.provider.SendErr = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User denied transaction signature."}

	_, err := f.sub.Submit(context.Background(), types.AssetETH, "")
	assert.ErrorIs(t, err, types.ErrUserRejected)
	assert.Empty(t, f.tracker.Jobs())
	assert.Contains(t, f.notices.all(), "Transaction was rejected in the wallet")
	assert.True(t, f.session.Wallet().Connected)
}

func TestSubmitUnknownChainReverts(t *testing.T) {
	f := newSubmitter(t, testOrder())
	f.provider.Unknown = map[string]bool{types.ChainIDBSC: true}
	_, err := f.session.Connect(context.Background())
	require.NoError(t, err)
	before := f.session.Snapshot()

	_, err = f.sub.Submit(context.Background(), types.AssetUSDT, types.NetworkBEP20)
	assert.ErrorIs(t, err, types.ErrChainNotAdded)
	assert.Equal(t, before, f.session.Snapshot())
	assert.Contains(t, f.notices.all(), "Please add the BSC network manually in your wallet")
	assert.Empty(t, f.provider.Transactions())
}

func TestSubmitDisconnectedBeforeSend(t *testing.T) {
	f := newSubmitter(t, testOrder())
	_, err := f.session.Connect(context.Background())
	require.NoError(t, err)
	f.provider.SetAccount("")

	_, err = f.sub.Submit(context.Background(), types.AssetETH, "")
	assert.ErrorIs(t, err, types.ErrWalletDisconnected)
	assert.False(t, f.session.Wallet().Connected)
}
