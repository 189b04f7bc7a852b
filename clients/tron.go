package clients

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

// TronscanClient reads TRC-20 balances from the tronscan token list API.
type TronscanClient struct {
	fetcher *Fetcher
	baseURL string
}

type tronToken struct {
	TokenID      string `json:"tokenId"`
	Balance      string `json:"balance"`
	TokenDecimal *int32 `json:"tokenDecimal"`
}

type tronTokensResponse struct {
	Data []tronToken `json:"data"`
}

func NewTronscanClient(f *Fetcher, baseURL string) *TronscanClient {
	return &TronscanClient{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Balance returns the target token balance. An account without the token in
// its list holds zero.
func (c *TronscanClient) Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("address", target.Address)
	q.Set("start", "0")
	q.Set("limit", "20")

	var resp tronTokensResponse
	if err := c.fetcher.GetJSON(ctx, c.baseURL+"/api/account/tokens?"+q.Encode(), &resp); err != nil {
		return decimal.Zero, err
	}
	if resp.Data == nil {
		return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "tronscan returned no token list", nil)
	}

	for _, tok := range resp.Data {
		if tok.TokenID != target.Contract {
			continue
		}
		raw, err := decimal.NewFromString(tok.Balance)
		if err != nil {
			return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "invalid token balance", err)
		}
		decimals := target.Decimals
		if tok.TokenDecimal != nil {
			decimals = *tok.TokenDecimal
		}
		return raw.Shift(-decimals), nil
	}
	return decimal.Zero, nil
}
