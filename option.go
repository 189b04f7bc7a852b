package checkout

import (
	"time"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/ledger"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/rates"
	"github.com/vitwit/checkout/settlement"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/wallet"
)

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = r
	}
}

// WithStore sets the durable ledger. The default is an in-memory store.
func WithStore(store ledger.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

// WithWalletProvider installs the buyer's wallet. Without one, wallet
// payments report ProviderMissing and only manual transfers are possible.
func WithWalletProvider(p wallet.Provider) Option {
	return func(s *Session) {
		s.provider = p
	}
}

func WithRateSource(src rates.Source) Option {
	return func(s *Session) {
		s.rateSource = src
	}
}

// WithFetcher replaces the HTTP fetcher used by the default rate source and
// explorer clients.
func WithFetcher(f *clients.Fetcher) Option {
	return func(s *Session) {
		s.fetcher = f
	}
}

// WithBalanceFetchers replaces the explorer clients used by the watcher.
func WithBalanceFetchers(f map[types.Network]clients.BalanceFetcher) Option {
	return func(s *Session) {
		s.fetchers = f
	}
}

// WithChainClient registers a JSON-RPC client for an EVM network. It is used
// for gas and receipts, and as a balance fallback when it can read balances.
func WithChainClient(network types.Network, c settlement.ChainClient) Option {
	return func(s *Session) {
		if s.chainClients == nil {
			s.chainClients = make(map[types.Network]settlement.ChainClient)
		}
		s.chainClients[network] = c
	}
}

func WithNavigator(n Navigator) Option {
	return func(s *Session) {
		s.navigator = n
	}
}

// WithOrderTime fixes the order creation time, and so its identity key.
func WithOrderTime(t time.Time) Option {
	return func(s *Session) {
		s.createdAt = t
	}
}

// WithCountdownTick changes the countdown resolution. Tests use it to run
// the payment window quickly.
func WithCountdownTick(d time.Duration) Option {
	return func(s *Session) {
		s.countdownTick = d
	}
}
