package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

// BitcoinConfirmations is the confirmation threshold trusted by the watcher.
const BitcoinConfirmations = 2

// BitcoinClient reads BTC balances from the blockchain.info query API.
type BitcoinClient struct {
	fetcher *Fetcher
	baseURL string
}

func NewBitcoinClient(f *Fetcher, baseURL string) *BitcoinClient {
	return &BitcoinClient{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Balance returns the confirmed balance of target.Address in BTC.
func (c *BitcoinClient) Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/q/addressbalance/%s?confirmations=%d",
		c.baseURL, url.PathEscape(target.Address), BitcoinConfirmations)

	body, err := c.fetcher.GetText(ctx, endpoint)
	if err != nil {
		return decimal.Zero, err
	}

	satoshis, err := decimal.NewFromString(strings.TrimSpace(body))
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "invalid balance response", err)
	}
	return satoshis.Shift(-target.Decimals), nil
}
