package wallet

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/checkout/logger"
)

var _ Provider = (*RPCProvider)(nil)

// RPCProvider drives a wallet that exposes the EIP-1193 methods over
// JSON-RPC. Account and chain changes are detected by polling.
type RPCProvider struct {
	client       *rpc.Client
	pollInterval time.Duration
	log          logger.Logger

	mu       sync.Mutex
	nextID   int
	subs     map[int]chan<- Event
	stopPoll context.CancelFunc
}

func DialRPCProvider(ctx context.Context, url string, pollInterval time.Duration, log logger.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewRPCProvider(client, pollInterval, log), nil
}

func NewRPCProvider(client *rpc.Client, pollInterval time.Duration, log logger.Logger) *RPCProvider {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &RPCProvider{
		client:       client,
		pollInterval: pollInterval,
		log:          log,
		subs:         make(map[int]chan<- Event),
	}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := p.call(ctx, &id, "eth_chainId"); err != nil {
		return "", err
	}
	return id.String(), nil
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID string) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain", map[string]string{"chainId": chainID})
}

type sendTxArgs struct {
	From     common.Address  `json:"from"`
	To       common.Address  `json:"to"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxRequest) (string, error) {
	args := sendTxArgs{
		From: common.HexToAddress(tx.From),
		To:   common.HexToAddress(tx.To),
		Data: tx.Data,
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}
	if tx.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice)
	}

	var hash common.Hash
	if err := p.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (p *RPCProvider) call(ctx context.Context, result any, method string, args ...any) error {
	err := p.client.CallContext(ctx, result, method, args...)
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}

// Subscribe starts the poll loop on the first subscriber and stops it when
// the last one leaves.
func (p *RPCProvider) Subscribe(ch chan<- Event) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	if p.stopPoll == nil {
		ctx, cancel := context.WithCancel(context.Background())
		p.stopPoll = cancel
		go p.poll(ctx)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, id)
			if len(p.subs) == 0 && p.stopPoll != nil {
				p.stopPoll()
				p.stopPoll = nil
			}
		})
	}
}

func (p *RPCProvider) poll(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	lastAccounts, _ := p.Accounts(ctx)
	lastChain, _ := p.ChainID(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		accounts, err := p.Accounts(ctx)
		if err != nil {
			p.log.Debug("wallet account poll failed", map[string]any{"error": err})
		} else if !slices.Equal(accounts, lastAccounts) {
			lastAccounts = accounts
			p.emit(Event{Kind: EventAccountsChanged, Accounts: accounts})
		}

		chain, err := p.ChainID(ctx)
		if err != nil {
			p.log.Debug("wallet chain poll failed", map[string]any{"error": err})
		} else if chain != lastChain {
			lastChain = chain
			p.emit(Event{Kind: EventChainChanged, ChainID: chain})
		}
	}
}

// emit never blocks the poll loop; a subscriber with a full inbox misses ev.
func (p *RPCProvider) emit(ev Event) {
	p.mu.Lock()
	subs := make([]chan<- Event, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			p.log.Warn("wallet event dropped, subscriber inbox full", map[string]any{"event": string(ev.Kind)})
		}
	}
}

// Close stops polling and closes the RPC connection.
func (p *RPCProvider) Close() {
	p.mu.Lock()
	if p.stopPoll != nil {
		p.stopPoll()
		p.stopPoll = nil
	}
	p.subs = make(map[int]chan<- Event)
	p.mu.Unlock()
	p.client.Close()
}
