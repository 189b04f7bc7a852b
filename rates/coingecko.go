package rates

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/types"
)

// Source fetches a full set of USD prices.
type Source interface {
	FetchRates(ctx context.Context) (types.AssetRates, error)
}

var coinGeckoIDs = map[types.Asset]string{
	types.AssetBTC:  "bitcoin",
	types.AssetETH:  "ethereum",
	types.AssetUSDT: "tether",
}

// CoinGecko reads prices from the CoinGecko simple price endpoint.
type CoinGecko struct {
	fetcher *clients.Fetcher
	baseURL string
}

func NewCoinGecko(f *clients.Fetcher, baseURL string) *CoinGecko {
	return &CoinGecko{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchRates returns all three rates or ErrRateFetchIncomplete when any of
// them is missing or not positive.
func (c *CoinGecko) FetchRates(ctx context.Context) (types.AssetRates, error) {
	q := url.Values{}
	q.Set("ids", "bitcoin,ethereum,tether")
	q.Set("vs_currencies", "usd")
	endpoint := c.fetcher.CacheBusted(c.baseURL + "/api/v3/simple/price?" + q.Encode())

	var resp map[string]map[string]float64
	if err := c.fetcher.GetJSON(ctx, endpoint, &resp); err != nil {
		return types.AssetRates{}, err
	}

	prices := make(map[types.Asset]float64, len(coinGeckoIDs))
	for asset, id := range coinGeckoIDs {
		usd := resp[id]["usd"]
		if usd <= 0 {
			return types.AssetRates{}, types.NewError(
				types.ErrCodeRateFetchIncomplete,
				fmt.Sprintf("received incomplete price data: missing %s", asset),
				nil,
			)
		}
		prices[asset] = usd
	}

	return types.AssetRates{
		BTC:  prices[types.AssetBTC],
		ETH:  prices[types.AssetETH],
		USDT: prices[types.AssetUSDT],
	}, nil
}
