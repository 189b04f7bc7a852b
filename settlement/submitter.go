package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
	"github.com/vitwit/checkout/wallet"
)

const (
	// NativeTransferGas is the gas limit of a plain value transfer.
	NativeTransferGas uint64 = 21000
	// FallbackTokenGas is used when token transfer gas estimation fails.
	FallbackTokenGas uint64 = 100000

	gasPriceTTL = 30 * time.Second
)

// Submitter builds and sends wallet transactions for the selected target.
type Submitter struct {
	session  *wallet.Session
	switcher *wallet.Switcher
	tracker  *Tracker
	targets  []types.PaymentTarget
	orders   types.OrderSource
	rates    types.RateSource
	log      logger.Logger
	metrics  metrics.Recorder
	notifier types.Notifier

	gasPrices *cache.Cache[types.Network, *big.Int]
}

func NewSubmitter(
	session *wallet.Session,
	switcher *wallet.Switcher,
	tracker *Tracker,
	targets []types.PaymentTarget,
	orders types.OrderSource,
	rates types.RateSource,
	log logger.Logger,
	rec metrics.Recorder,
	notifier types.Notifier,
) *Submitter {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if notifier == nil {
		notifier = types.NoopNotifier{}
	}
	return &Submitter{
		session:   session,
		switcher:  switcher,
		tracker:   tracker,
		targets:   targets,
		orders:    orders,
		rates:     rates,
		log:       log,
		metrics:   rec,
		notifier:  notifier,
		gasPrices: cache.New[types.Network, *big.Int](),
	}
}

// Submit pays the current order total with asset on network through the
// connected wallet and hands the transaction to the tracker.
func (s *Submitter) Submit(ctx context.Context, asset types.Asset, network types.Network) (string, error) {
	order := s.orders.Order()
	if order.IsEmpty() {
		return "", types.ErrEmptyCart
	}

	if _, w := s.session.State(); !w.Connected {
		if _, err := s.session.Connect(ctx); err != nil && !errors.Is(err, types.ErrUnsupportedChain) {
			return "", types.NewError(types.ErrCodeWalletRequired, "please connect your wallet first", err)
		}
	}

	target, ok := types.FindTarget(s.targets, asset, network)
	if !ok {
		return "", types.NewError(types.ErrCodeUnknownTarget, fmt.Sprintf("unsupported target %s/%s", asset, network), nil)
	}
	if !target.WalletTransferable() {
		s.notifier.Notify(types.NoticeInfo, fmt.Sprintf("Please send %s on %s manually to %s", asset, target.Network, target.Address))
		return "", types.NewError(types.ErrCodeManualTransferRequired,
			fmt.Sprintf("%s on %s requires a manual transfer", asset, target.Network), nil)
	}

	snap := s.session.Snapshot()
	if ok, err := s.switcher.SwitchTo(ctx, target.ChainID); err != nil || !ok {
		s.session.Revert(snap)
		if err == nil {
			err = fmt.Errorf("could not switch to %s", types.ChainName(target.ChainID))
		}
		return "", err
	}

	from, err := s.session.RefreshAccount(ctx)
	if err != nil {
		s.notifier.Notify(types.NoticeError, "Wallet disconnected. Please reconnect.")
		return "", err
	}

	rate := s.rates.Rates().Rate(asset)
	units, err := utils.ToBaseUnits(order.Total, rate, target.Decimals)
	if err != nil {
		return "", fmt.Errorf("compute amount: %w", err)
	}

	tx, err := s.buildTx(ctx, target, from, units)
	if err != nil {
		return "", err
	}

	labels := map[string]string{"asset": asset.String(), "network": target.Network.String()}
	hash, err := s.session.SendTransaction(ctx, tx)
	if err != nil {
		s.metrics.IncCounter(metrics.EventTransactionFailed, labels)
		if errors.Is(err, types.ErrUserRejected) {
			s.notifier.Notify(types.NoticeWarning, "Transaction was rejected in the wallet")
		} else {
			s.notifier.Notify(types.NoticeError, "Transaction failed: "+err.Error())
		}
		if _, rerr := s.session.RefreshAccount(ctx); rerr != nil {
			s.log.Debug("account reconcile after failed send", map[string]any{"error": rerr})
		}
		return "", err
	}

	s.metrics.IncCounter(metrics.EventTransactionSent, labels)
	s.log.Info("transaction sent", map[string]any{
		"tx_hash": hash, "asset": asset.String(), "network": target.Network.String(), "amount": units.String(),
	})
	s.notifier.Notify(types.NoticeInfo, "Transaction sent. Waiting for confirmation...")

	totalUSD, _ := order.Total.Float64()
	if err := s.tracker.Track(hash, target, order.Key(), totalUSD); err != nil {
		s.log.Warn("transaction not tracked, relying on balance watcher", map[string]any{"tx_hash": hash, "error": err})
	}
	return hash, nil
}

func (s *Submitter) buildTx(ctx context.Context, target types.PaymentTarget, from string, units *big.Int) (wallet.TxRequest, error) {
	client, hasClient := s.tracker.Client(target.Network)

	tx := wallet.TxRequest{From: from}
	if hasClient {
		tx.GasPrice = s.gasPrice(ctx, target.Network, client)
	}

	if !target.IsToken() {
		tx.To = target.Address
		tx.Value = units
		tx.Gas = NativeTransferGas
		return tx, nil
	}

	data, err := clients.PackTransfer(common.HexToAddress(target.Address), units)
	if err != nil {
		return wallet.TxRequest{}, fmt.Errorf("encode transfer: %w", err)
	}
	tx.To = target.Contract
	tx.Value = big.NewInt(0)
	tx.Data = data
	tx.Gas = FallbackTokenGas

	if hasClient {
		fromAddr := common.HexToAddress(from)
		contract := common.HexToAddress(target.Contract)
		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: fromAddr, To: &contract, Data: data})
		if err != nil {
			s.log.Debug("gas estimation failed, using fallback", map[string]any{"network": target.Network.String(), "error": err})
		} else {
			tx.Gas = gas
		}
	}
	return tx, nil
}

// gasPrice returns a cached suggestion, or nil to let the wallet decide.
func (s *Submitter) gasPrice(ctx context.Context, network types.Network, client ChainClient) *big.Int {
	if price, ok := s.gasPrices.Get(network); ok {
		return price
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		s.log.Debug("gas price suggestion failed", map[string]any{"network": network.String(), "error": err})
		return nil
	}
	s.gasPrices.Set(network, price, cache.WithExpiration(gasPriceTTL))
	return price
}
