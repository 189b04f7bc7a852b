package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

// EtherscanClient reads native and token balances from an etherscan-compatible
// explorer (etherscan, polygonscan, bscscan, arbiscan, optimistic etherscan,
// routescan).
type EtherscanClient struct {
	fetcher *Fetcher
	baseURL string
	apiKey  string
}

type etherscanResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// NewEtherscanClient builds a client. An empty apiKey is omitted from requests.
func NewEtherscanClient(f *Fetcher, baseURL, apiKey string) *EtherscanClient {
	return &EtherscanClient{
		fetcher: f,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Balance returns the balance of target.Address in whole units. Token targets
// query the contract balance, native targets the account balance.
func (c *EtherscanClient) Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("address", target.Address)
	if target.IsToken() {
		q.Set("action", "tokenbalance")
		q.Set("contractaddress", target.Contract)
	} else {
		q.Set("action", "balance")
	}
	q.Set("tag", "latest")
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	var resp etherscanResponse
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/api?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, err
	}

	if resp.Status != "1" {
		return decimal.Zero, types.NewError(
			types.ErrCodeExternalAPIUnavailable,
			fmt.Sprintf("explorer returned status %q: %s", resp.Status, resp.Message),
			nil,
		)
	}

	raw, err := decimal.NewFromString(resp.Result)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "invalid balance result", err)
	}
	return raw.Shift(-target.Decimals), nil
}
