package types

import "fmt"

// USDT contract addresses per network.
const (
	USDTContractERC20     = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	USDTContractPolygon   = "0xc2132D05D31c914a87C6611C10748AEb04B58e8F"
	USDTContractBEP20     = "0x55d398326f99059fF775485246999027B3197955"
	USDTContractAvalanche = "0x9702230A8Ea53601f5cD2dc00fDBc13d4dF4A8c7"
	USDTContractArbitrum  = "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"
	USDTContractOptimism  = "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"
	USDTContractTRC20     = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

// PaymentTarget is one (asset, network) pair with its own receiving address.
type PaymentTarget struct {
	Asset   Asset   `json:"asset"`
	Network Network `json:"network"`
	Address string  `json:"address"`
	// Contract is empty for native assets.
	Contract string `json:"contract,omitempty"`
	Decimals int32  `json:"decimals"`
	ChainID  string `json:"chainId,omitempty"`
}

// Key identifies the target in baselines and logs, e.g. "usdt_polygon".
func (t PaymentTarget) Key() string {
	return fmt.Sprintf("%s_%s", t.Asset, t.Network)
}

// IsToken reports whether the target is a token contract balance.
func (t PaymentTarget) IsToken() bool {
	return t.Contract != ""
}

// WalletTransferable reports whether an injected EVM wallet can pay t.
func (t PaymentTarget) WalletTransferable() bool {
	return t.Network.IsEVM() && t.ChainID != ""
}

// ReceivingAddresses are the merchant addresses targets are built from.
type ReceivingAddresses struct {
	BTC  string
	EVM  string
	Tron string
}

// BuildTargets returns every PaymentTarget in watcher priority order:
// BTC, ETH, then USDT across its seven networks with TRC-20 last.
func BuildTargets(addr ReceivingAddresses) []PaymentTarget {
	targets := []PaymentTarget{
		{Asset: AssetBTC, Network: NetworkBitcoin, Address: addr.BTC, Decimals: 8},
		{Asset: AssetETH, Network: NetworkEthereum, Address: addr.EVM, Decimals: 18, ChainID: ChainIDEthereum},
	}

	usdt := []struct {
		network  Network
		contract string
		decimals int32
	}{
		{NetworkERC20, USDTContractERC20, 6},
		{NetworkPolygon, USDTContractPolygon, 6},
		{NetworkBEP20, USDTContractBEP20, 18},
		{NetworkAvalanche, USDTContractAvalanche, 6},
		{NetworkArbitrum, USDTContractArbitrum, 6},
		{NetworkOptimism, USDTContractOptimism, 6},
		{NetworkTRC20, USDTContractTRC20, 6},
	}
	for _, u := range usdt {
		address := addr.EVM
		if u.network == NetworkTRC20 {
			address = addr.Tron
		}
		chain, _ := Chain(u.network)
		targets = append(targets, PaymentTarget{
			Asset:    AssetUSDT,
			Network:  u.network,
			Address:  address,
			Contract: u.contract,
			Decimals: u.decimals,
			ChainID:  chain.ChainID,
		})
	}
	return targets
}

// FindTarget resolves (asset, network). An empty network picks the asset's
// default: native network for BTC/ETH and ERC-20 for USDT.
func FindTarget(targets []PaymentTarget, asset Asset, network Network) (PaymentTarget, bool) {
	if network == "" {
		network = DefaultNetwork(asset)
	}
	for _, t := range targets {
		if t.Asset == asset && t.Network == network {
			return t, true
		}
	}
	return PaymentTarget{}, false
}

// DefaultNetwork is the network selected for asset when none is chosen.
func DefaultNetwork(asset Asset) Network {
	switch asset {
	case AssetBTC:
		return NetworkBitcoin
	case AssetETH:
		return NetworkEthereum
	default:
		return NetworkERC20
	}
}
