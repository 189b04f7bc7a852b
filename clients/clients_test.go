package clients

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/checkout/types"
)

const (
	testEVMAddress  = "0x2525f55Fb0708582E05620BAEB44eDFfB76b779f"
	testTronAddress = "TBy5XCn9AkqLToUPWmok7QMSKmdCwqQ2t7"
	testBTCAddress  = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"
)

func testTargets() []types.PaymentTarget {
	return types.BuildTargets(types.ReceivingAddresses{BTC: testBTCAddress, EVM: testEVMAddress, Tron: testTronAddress})
}

func target(t *testing.T, asset types.Asset, network types.Network) types.PaymentTarget {
	t.Helper()
	tgt, ok := types.FindTarget(testTargets(), asset, network)
	require.True(t, ok)
	return tgt
}

func testFetcher() *Fetcher {
	f := NewFetcher(time.Second, 3)
	f.delay = time.Millisecond
	return f
}

func TestBitcoinClientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/q/addressbalance/"+testBTCAddress, r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("confirmations"))
		fmt.Fprint(w, "150000000\n")
	}))
	defer srv.Close()

	bal, err := NewBitcoinClient(testFetcher(), srv.URL).Balance(context.Background(), target(t, types.AssetBTC, ""))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.5").Equal(bal), bal.String())
}

func TestEtherscanClientTokenBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "tokenbalance", q.Get("action"))
		assert.Equal(t, types.USDTContractPolygon, q.Get("contractaddress"))
		assert.Equal(t, testEVMAddress, q.Get("address"))
		assert.Equal(t, "poly-key", q.Get("apikey"))
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"25500000"}`)
	}))
	defer srv.Close()

	bal, err := NewEtherscanClient(testFetcher(), srv.URL, "poly-key").
		Balance(context.Background(), target(t, types.AssetUSDT, types.NetworkPolygon))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.5").Equal(bal), bal.String())
}

func TestEtherscanClientNativeBalanceWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "balance", q.Get("action"))
		assert.False(t, q.Has("apikey"))
		assert.False(t, q.Has("contractaddress"))
		fmt.Fprint(w, `{"status":"1","message":"OK","result":"2000000000000000000"}`)
	}))
	defer srv.Close()

	bal, err := NewEtherscanClient(testFetcher(), srv.URL, "").
		Balance(context.Background(), target(t, types.AssetETH, ""))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(bal))
}

func TestEtherscanClientStatusNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0","message":"NOTOK","result":"Max rate limit reached"}`)
	}))
	defer srv.Close()

	_, err := NewEtherscanClient(testFetcher(), srv.URL, "").
		Balance(context.Background(), target(t, types.AssetUSDT, types.NetworkERC20))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExternalAPIUnavailable)
}

func TestTronscanClientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/account/tokens", r.URL.Path)
		assert.Equal(t, testTronAddress, r.URL.Query().Get("address"))
		fmt.Fprintf(w, `{"data":[
			{"tokenId":"_","balance":"1000000","tokenDecimal":6},
			{"tokenId":"%s","balance":"42000000","tokenDecimal":6}
		]}`, types.USDTContractTRC20)
	}))
	defer srv.Close()

	bal, err := NewTronscanClient(testFetcher(), srv.URL).
		Balance(context.Background(), target(t, types.AssetUSDT, types.NetworkTRC20))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(42).Equal(bal), bal.String())
}

func TestTronscanClientMissingTokenIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	bal, err := NewTronscanClient(testFetcher(), srv.URL).
		Balance(context.Background(), target(t, types.AssetUSDT, types.NetworkTRC20))
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestFetcherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct{ OK bool }
	require.NoError(t, testFetcher().GetJSON(context.Background(), srv.URL, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var out struct{}
	err := testFetcher().GetJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExternalAPIUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCacheBusted(t *testing.T) {
	f := testFetcher()
	f.now = func() time.Time { return time.UnixMilli(1700000000123) }
	assert.Equal(t,
		"https://api.example.com/price?_=1700000000123&ids=bitcoin",
		f.CacheBusted("https://api.example.com/price?ids=bitcoin"))
}

func TestPackTransfer(t *testing.T) {
	data, err := PackTransfer(common.HexToAddress(testEVMAddress), big.NewInt(12340000))
	require.NoError(t, err)
	require.Len(t, data, 4+32+32)
	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Equal(t, big.NewInt(12340000), new(big.Int).SetBytes(data[36:]))
}

func TestUnpackBalanceOf(t *testing.T) {
	word := common.LeftPadBytes(big.NewInt(777).Bytes(), 32)
	bal, err := UnpackBalanceOf(word)
	require.NoError(t, err)
	assert.Equal(t, int64(777), bal.Int64())
}

type stubFetcher struct {
	bal decimal.Decimal
	err error
}

func (s stubFetcher) Balance(context.Context, types.PaymentTarget) (decimal.Decimal, error) {
	return s.bal, s.err
}

func TestFallbackFetcher(t *testing.T) {
	tgt := target(t, types.AssetUSDT, types.NetworkBEP20)

	f := FallbackFetcher{Primary: stubFetcher{err: errors.New("down")}, Secondary: stubFetcher{bal: decimal.NewFromInt(9)}}
	bal, err := f.Balance(context.Background(), tgt)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9).Equal(bal))

	f.Secondary = stubFetcher{err: errors.New("also down")}
	_, err = f.Balance(context.Background(), tgt)
	assert.Error(t, err)
}

func TestNewBalanceFetchersCoversEveryTarget(t *testing.T) {
	cfg := types.DefaultConfig()
	fetchers := NewBalanceFetchers(cfg, testFetcher(), map[types.Network]BalanceFetcher{
		types.NetworkPolygon: stubFetcher{},
	})
	for _, tgt := range testTargets() {
		assert.Contains(t, fetchers, tgt.Network)
	}
	assert.IsType(t, FallbackFetcher{}, fetchers[types.NetworkPolygon])
}
