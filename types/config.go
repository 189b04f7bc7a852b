package types

import "time"

// APIKeys are the explorer API keys. Empty keys are omitted from requests.
type APIKeys struct {
	Etherscan   string `yaml:"etherscan" env:"ETHERSCAN"`
	Polygonscan string `yaml:"polygonscan" env:"POLYGONSCAN"`
	BscScan     string `yaml:"bscscan" env:"BSCSCAN"`
	Arbiscan    string `yaml:"arbiscan" env:"ARBISCAN"`
	Optimism    string `yaml:"optimism" env:"OPTIMISM"`
}

// Endpoints are the base URLs of every external read API.
type Endpoints struct {
	Rates      string `yaml:"rates" env:"RATES" validate:"required,url"`
	Blockchain string `yaml:"blockchain" env:"BLOCKCHAIN" validate:"required,url"`
	Etherscan  string `yaml:"etherscan" env:"ETHERSCAN" validate:"required,url"`
	Polygon    string `yaml:"polygon" env:"POLYGON" validate:"required,url"`
	BSC        string `yaml:"bsc" env:"BSC" validate:"required,url"`
	Avalanche  string `yaml:"avalanche" env:"AVALANCHE" validate:"required,url"`
	Arbitrum   string `yaml:"arbitrum" env:"ARBITRUM" validate:"required,url"`
	Optimism   string `yaml:"optimism" env:"OPTIMISM" validate:"required,url"`
	Tronscan   string `yaml:"tronscan" env:"TRONSCAN" validate:"required,url"`
}

// Intervals are the fixed schedules of the checkout loops.
type Intervals struct {
	Rates         time.Duration `yaml:"rates" env:"RATES" validate:"gt=0"`
	Watch         time.Duration `yaml:"watch" env:"WATCH" validate:"gt=0"`
	Receipt       time.Duration `yaml:"receipt" env:"RECEIPT" validate:"gt=0"`
	AccountPoll   time.Duration `yaml:"account_poll" env:"ACCOUNT_POLL" validate:"gt=0"`
	PaymentWindow time.Duration `yaml:"payment_window" env:"PAYMENT_WINDOW" validate:"gt=0"`
	Redirect      time.Duration `yaml:"redirect" env:"REDIRECT" validate:"gte=0"`
	SwitchSettle  time.Duration `yaml:"switch_settle" env:"SWITCH_SETTLE" validate:"gte=0"`
}

// CheckoutConfig contains the configuration of a checkout deployment.
type CheckoutConfig struct {
	BTCAddress  string `yaml:"btc_address" env:"BTC_ADDRESS" validate:"required,btcaddr"`
	EVMAddress  string `yaml:"evm_address" env:"EVM_ADDRESS" validate:"required,evmaddr"`
	TronAddress string `yaml:"tron_address" env:"TRON_ADDRESS" validate:"required,tronaddr"`

	APIKeys   APIKeys   `yaml:"api_keys" envPrefix:"API_KEY_"`
	Endpoints Endpoints `yaml:"endpoints" envPrefix:"ENDPOINT_"`
	Intervals Intervals `yaml:"intervals" envPrefix:"INTERVAL_"`

	// RPCURLs maps EVM networks to JSON-RPC endpoints used for receipts and gas.
	RPCURLs map[string]string `yaml:"rpc_urls" env:"RPC_URLS"`
	// WalletRPCURL points at the wallet provider bridge. Empty means no wallet.
	WalletRPCURL    string   `yaml:"wallet_rpc_url" env:"WALLET_RPC_URL"`
	SupportedChains []string `yaml:"supported_chains" env:"SUPPORTED_CHAINS" validate:"min=1"`

	SuccessURL  string `yaml:"success_url" env:"SUCCESS_URL" validate:"required"`
	DBPath      string `yaml:"db_path" env:"DB_PATH"`
	CartFile    string `yaml:"cart_file" env:"CART_FILE"`
	HTTPAddr    string `yaml:"http_addr" env:"HTTP_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	JWTSecret   string `yaml:"jwt_secret" env:"JWT_SECRET"`

	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT" validate:"gt=0"`
	RetryCount     uint          `yaml:"retry_count" env:"RETRY_COUNT" validate:"gte=1"`
	LogLevel       string        `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	EnableMetrics  bool          `yaml:"enable_metrics" env:"ENABLE_METRICS"`
}

// Addresses returns the receiving addresses targets are built from.
func (c *CheckoutConfig) Addresses() ReceivingAddresses {
	return ReceivingAddresses{BTC: c.BTCAddress, EVM: c.EVMAddress, Tron: c.TronAddress}
}

// DefaultConfig returns the production defaults. Addresses must be supplied.
func DefaultConfig() *CheckoutConfig {
	return &CheckoutConfig{
		Endpoints: Endpoints{
			Rates:      "https://api.coingecko.com",
			Blockchain: "https://blockchain.info",
			Etherscan:  "https://api.etherscan.io",
			Polygon:    "https://api.polygonscan.com",
			BSC:        "https://api.bscscan.com",
			Avalanche:  "https://api.routescan.io/v2/network/avalanche/evm/43114/etherscan",
			Arbitrum:   "https://api.arbiscan.io",
			Optimism:   "https://api-optimistic.etherscan.io",
			Tronscan:   "https://apilist.tronscanapi.com",
		},
		Intervals: Intervals{
			Rates:         60 * time.Second,
			Watch:         45 * time.Second,
			Receipt:       5 * time.Second,
			AccountPoll:   2 * time.Second,
			PaymentWindow: 15 * time.Minute,
			Redirect:      2 * time.Second,
			SwitchSettle:  time.Second,
		},
		SupportedChains: append([]string(nil), DefaultSupportedChains...),
		SuccessURL:      "/success",
		DBPath:          "checkout.db",
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9010",
		DefaultTimeout:  30 * time.Second,
		RetryCount:      2,
		LogLevel:        "info",
	}
}
