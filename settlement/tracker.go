package settlement

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/puzpuzpuz/xsync/v2"

	"github.com/vitwit/checkout/clients"
	"github.com/vitwit/checkout/logger"
	"github.com/vitwit/checkout/metrics"
	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
)

// ChainClient is the JSON-RPC surface the submitter and tracker need.
type ChainClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// Job is one tracked transaction.
type Job struct {
	Hash     string
	Target   types.PaymentTarget
	OrderKey string
	TotalUSD float64
}

// Tracker polls receipts of submitted transactions until each one is mined.
// There is no timeout: a job ends on a receipt, a paid order or Stop.
type Tracker struct {
	interval time.Duration
	sink     types.OutcomeSink
	paid     types.PaidChecker
	log      logger.Logger
	metrics  metrics.Recorder
	notifier types.Notifier
	now      func() time.Time

	clientsMu sync.RWMutex
	clients   map[types.Network]ChainClient

	jobs *xsync.MapOf[string, *Job]
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewTracker(interval time.Duration, sink types.OutcomeSink, paid types.PaidChecker, log logger.Logger, rec metrics.Recorder, notifier types.Notifier) *Tracker {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if notifier == nil {
		notifier = types.NoopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		interval: interval,
		sink:     sink,
		paid:     paid,
		log:      log,
		metrics:  rec,
		notifier: notifier,
		now:      time.Now,
		clients:  make(map[types.Network]ChainClient),
		jobs:     xsync.NewMapOf[*Job](),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddClient registers the receipt source for an EVM network.
func (t *Tracker) AddClient(network types.Network, client ChainClient) error {
	if !network.IsEVM() {
		return types.NewError(types.ErrCodeUnknownTarget, fmt.Sprintf("network %s is not an EVM network", network), nil)
	}
	t.clientsMu.Lock()
	t.clients[network] = client
	t.clientsMu.Unlock()
	return nil
}

// Client returns the registered client for network.
func (t *Tracker) Client(network types.Network) (ChainClient, bool) {
	t.clientsMu.RLock()
	defer t.clientsMu.RUnlock()
	c, ok := t.clients[network]
	return c, ok
}

// Track starts polling hash. Tracking the same hash twice is a no-op.
func (t *Tracker) Track(hash string, target types.PaymentTarget, orderKey string, totalUSD float64) error {
	if err := utils.ValidateTransactionHash(hash); err != nil {
		return types.NewError(types.ErrCodeInvalidTxHash, "wallet returned an invalid transaction hash", err)
	}
	client, ok := t.Client(target.Network)
	if !ok {
		return types.NewError(types.ErrCodeUnknownTarget, fmt.Sprintf("no receipt client for %s", target.Network), nil)
	}

	job := &Job{Hash: hash, Target: target, OrderKey: orderKey, TotalUSD: totalUSD}
	if _, loaded := t.jobs.LoadOrStore(hash, job); loaded {
		return nil
	}

	ctx, cancel := context.WithCancel(t.ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()
		t.run(ctx, client, job)
	}()
	return nil
}

func (t *Tracker) run(ctx context.Context, client ChainClient, job *Job) {
	log := t.log.With(map[string]any{"tx_hash": job.Hash, "network": string(job.Target.Network)})
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if done := t.poll(ctx, client, job, log); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll performs one receipt check and reports whether the job is finished.
func (t *Tracker) poll(ctx context.Context, client ChainClient, job *Job, log logger.Logger) bool {
	if t.paid != nil {
		paid, err := t.paid.IsPaid(ctx, job.OrderKey)
		if err != nil {
			log.Warn("paid check failed", map[string]any{"error": err})
		} else if paid {
			log.Info("order already paid, stopping receipt polling", nil)
			return true
		}
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(job.Hash))
	if err != nil {
		if clients.IsNotFound(err) {
			log.Debug("receipt pending", nil)
		} else if ctx.Err() == nil {
			log.Warn("receipt lookup failed, will retry", map[string]any{"error": err})
		}
		return ctx.Err() != nil
	}

	labels := map[string]string{"asset": job.Target.Asset.String(), "network": job.Target.Network.String()}
	chain, _ := types.Chain(job.Target.Network)

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		t.metrics.IncCounter(metrics.EventReceiptReverted, labels)
		t.notifier.Notify(types.NoticeError, "Transaction failed on-chain: "+chain.TxURL(job.Hash))
		log.Warn("transaction reverted", map[string]any{"block": receipt.BlockNumber})
		return true
	}

	log.Info("transaction confirmed", map[string]any{"block": receipt.BlockNumber})

	if t.sink != nil {
		// The sink stops every job, including this one.
		won, err := t.sink.Complete(context.WithoutCancel(ctx), types.PaymentOutcome{
			OrderKey:    job.OrderKey,
			Asset:       job.Target.Asset,
			Network:     job.Target.Network,
			ObservedUSD: job.TotalUSD,
			TxHash:      job.Hash,
			Source:      types.SourceTracker,
			Timestamp:   t.now(),
		})
		if err != nil && !won {
			log.Error("failed to record payment outcome, will retry", map[string]any{"error": err})
			return ctx.Err() != nil
		}
	}

	t.metrics.IncCounter(metrics.EventReceiptConfirmed, labels)
	t.notifier.Notify(types.NoticeInfo, "Payment confirmed! View transaction: "+chain.TxURL(job.Hash))
	return true
}

// Jobs returns the hashes ever tracked.
func (t *Tracker) Jobs() []string {
	var hashes []string
	t.jobs.Range(func(hash string, _ *Job) bool {
		hashes = append(hashes, hash)
		return true
	})
	return hashes
}

// StopAll cancels every job without waiting. It is safe to call from an
// OutcomeSink running on a tracker goroutine.
func (t *Tracker) StopAll() {
	t.cancel()
}

// Close cancels every job and waits for them to exit.
func (t *Tracker) Close() {
	t.cancel()
	t.wg.Wait()
}
