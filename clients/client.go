package clients

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

// BalanceFetcher reads the current balance of a PaymentTarget's receiving
// address in whole asset units.
type BalanceFetcher interface {
	Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error)
}

// NewBalanceFetchers wires one explorer client per network from cfg. Networks
// present in rpc fall back to the JSON-RPC reader when the explorer fails.
func NewBalanceFetchers(cfg *types.CheckoutConfig, f *Fetcher, rpc map[types.Network]BalanceFetcher) map[types.Network]BalanceFetcher {
	ep := cfg.Endpoints
	keys := cfg.APIKeys

	etherscan := NewEtherscanClient(f, ep.Etherscan, keys.Etherscan)
	fetchers := map[types.Network]BalanceFetcher{
		types.NetworkBitcoin:   NewBitcoinClient(f, ep.Blockchain),
		types.NetworkEthereum:  etherscan,
		types.NetworkERC20:     etherscan,
		types.NetworkPolygon:   NewEtherscanClient(f, ep.Polygon, keys.Polygonscan),
		types.NetworkBEP20:     NewEtherscanClient(f, ep.BSC, keys.BscScan),
		types.NetworkAvalanche: NewEtherscanClient(f, ep.Avalanche, ""),
		types.NetworkArbitrum:  NewEtherscanClient(f, ep.Arbitrum, keys.Arbiscan),
		types.NetworkOptimism:  NewEtherscanClient(f, ep.Optimism, keys.Optimism),
		types.NetworkTRC20:     NewTronscanClient(f, ep.Tronscan),
	}

	for network, secondary := range rpc {
		if primary, ok := fetchers[network]; ok {
			fetchers[network] = FallbackFetcher{Primary: primary, Secondary: secondary}
		}
	}
	return fetchers
}
