package types

import "fmt"

// ChainFamily classifies a network into a blockchain family.
type ChainFamily string

const (
	ChainEVM     ChainFamily = "evm"
	ChainBitcoin ChainFamily = "bitcoin"
	ChainTron    ChainFamily = "tron"
)

// Asset is the symbol of a payable asset.
type Asset string

const (
	AssetBTC  Asset = "btc"
	AssetETH  Asset = "eth"
	AssetUSDT Asset = "usdt"
)

// Assets lists every asset in display order.
var Assets = []Asset{AssetBTC, AssetETH, AssetUSDT}

func (a Asset) String() string {
	return string(a)
}

// Valid reports whether a is one of the supported assets.
func (a Asset) Valid() bool {
	return a == AssetBTC || a == AssetETH || a == AssetUSDT
}

// Network identifies the chain a PaymentTarget lives on. Native BTC and ETH
// use their own network names; USDT networks use the names buyers pick from.
type Network string

const (
	NetworkBitcoin   Network = "bitcoin"
	NetworkEthereum  Network = "ethereum"
	NetworkERC20     Network = "erc20"
	NetworkPolygon   Network = "polygon"
	NetworkBEP20     Network = "bep20"
	NetworkAvalanche Network = "avalanche"
	NetworkArbitrum  Network = "arbitrum"
	NetworkOptimism  Network = "optimism"
	NetworkTRC20     Network = "trc20"
)

// USDTNetworks is the scan order of the USDT networks, TRC-20 last.
var USDTNetworks = []Network{
	NetworkERC20,
	NetworkPolygon,
	NetworkBEP20,
	NetworkAvalanche,
	NetworkArbitrum,
	NetworkOptimism,
	NetworkTRC20,
}

func (n Network) String() string {
	return string(n)
}

// Family returns the chain family of n.
func (n Network) Family() ChainFamily {
	switch n {
	case NetworkBitcoin:
		return ChainBitcoin
	case NetworkTRC20:
		return ChainTron
	default:
		return ChainEVM
	}
}

// IsEVM reports whether n is reachable through an EVM wallet provider.
func (n Network) IsEVM() bool {
	return n.Family() == ChainEVM
}

// Chain IDs as reported by eth_chainId.
const (
	ChainIDEthereum  = "0x1"
	ChainIDBSC       = "0x38"
	ChainIDPolygon   = "0x89"
	ChainIDAvalanche = "0xa86a"
	ChainIDArbitrum  = "0xa4b1"
	ChainIDOptimism  = "0xa"
)

// ChainConfig holds the static metadata of one network.
type ChainConfig struct {
	Network Network
	// ChainID is empty for networks without an EVM wallet path.
	ChainID          string
	Name             string
	AddNetworkNotice string
	FeeHint          string
	ConfirmationHint string
	// ExplorerTxURL is a format string taking the transaction hash.
	ExplorerTxURL string
}

var chainConfigs = map[Network]ChainConfig{
	NetworkBitcoin: {
		Network:          NetworkBitcoin,
		Name:             "Bitcoin",
		FeeHint:          "~$1-10",
		ConfirmationHint: "10-60 minutes",
		ExplorerTxURL:    "https://www.blockchain.com/btc/tx/%s",
	},
	NetworkEthereum: {
		Network:          NetworkEthereum,
		ChainID:          ChainIDEthereum,
		Name:             "Ethereum Mainnet",
		AddNetworkNotice: "Please add the Ethereum network manually in your wallet",
		FeeHint:          "~$1-5",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://etherscan.io/tx/%s",
	},
	NetworkERC20: {
		Network:          NetworkERC20,
		ChainID:          ChainIDEthereum,
		Name:             "Ethereum Mainnet",
		AddNetworkNotice: "Please add the Ethereum network manually in your wallet",
		FeeHint:          "~$1-5",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://etherscan.io/tx/%s",
	},
	NetworkBEP20: {
		Network:          NetworkBEP20,
		ChainID:          ChainIDBSC,
		Name:             "Binance Smart Chain",
		AddNetworkNotice: "Please add the BSC network manually in your wallet",
		FeeHint:          "~0.5-2",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://bscscan.com/tx/%s",
	},
	NetworkPolygon: {
		Network:          NetworkPolygon,
		ChainID:          ChainIDPolygon,
		Name:             "Polygon Mainnet",
		AddNetworkNotice: "Please add the Polygon network manually in your wallet",
		FeeHint:          "~0.01-0.1",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://polygonscan.com/tx/%s",
	},
	NetworkAvalanche: {
		Network:          NetworkAvalanche,
		ChainID:          ChainIDAvalanche,
		Name:             "Avalanche C-Chain",
		AddNetworkNotice: "Please add the Avalanche network manually in your wallet",
		FeeHint:          "~0.3-1",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://snowtrace.io/tx/%s",
	},
	NetworkArbitrum: {
		Network:          NetworkArbitrum,
		ChainID:          ChainIDArbitrum,
		Name:             "Arbitrum One",
		AddNetworkNotice: "Please add the Arbitrum network manually in your wallet",
		FeeHint:          "~0.1-0.5",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://arbiscan.io/tx/%s",
	},
	NetworkOptimism: {
		Network:          NetworkOptimism,
		ChainID:          ChainIDOptimism,
		Name:             "Optimism",
		AddNetworkNotice: "Please add the Optimism network manually in your wallet",
		FeeHint:          "~0.1-0.3",
		ConfirmationHint: "2-5 minutes",
		ExplorerTxURL:    "https://optimistic.etherscan.io/tx/%s",
	},
	NetworkTRC20: {
		Network:          NetworkTRC20,
		Name:             "Tron",
		FeeHint:          "~$1",
		ConfirmationHint: "1-3 minutes",
		ExplorerTxURL:    "https://tronscan.org/#/transaction/%s",
	},
}

// Chain returns the metadata of network n.
func Chain(n Network) (ChainConfig, bool) {
	c, ok := chainConfigs[n]
	return c, ok
}

// ChainByID returns the metadata of the first network using chainID.
func ChainByID(chainID string) (ChainConfig, bool) {
	// ERC20 and Ethereum share 0x1; prefer the native entry.
	if chainID == ChainIDEthereum {
		return chainConfigs[NetworkEthereum], true
	}
	for _, c := range chainConfigs {
		if c.ChainID != "" && c.ChainID == chainID {
			return c, true
		}
	}
	return ChainConfig{}, false
}

// ChainName returns a display name for chainID.
func ChainName(chainID string) string {
	if c, ok := ChainByID(chainID); ok {
		return c.Name
	}
	return "Unknown network"
}

// NetworkInfo is the fee/confirmation hint shown next to a network.
func (c ChainConfig) NetworkInfo() string {
	return fmt.Sprintf("Network fee: %s. Confirmation: %s.", c.FeeHint, c.ConfirmationHint)
}

// TxURL returns the explorer link for hash.
func (c ChainConfig) TxURL(hash string) string {
	if c.ExplorerTxURL == "" {
		return ""
	}
	return fmt.Sprintf(c.ExplorerTxURL, hash)
}

// DefaultSupportedChains is the wallet chain allow-list.
var DefaultSupportedChains = []string{ChainIDEthereum, ChainIDBSC, ChainIDPolygon}
