package clients

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

var _ BalanceFetcher = (*EVMClient)(nil)

// EVMClient talks JSON-RPC to one EVM network. It serves gas and receipt
// lookups for the submitter and tracker, and balance reads as a fallback for
// the explorer clients.
type EVMClient struct {
	rpcURL  string
	network types.Network
	client  *ethclient.Client
}

func NewEVMClient(ctx context.Context, network types.Network, rpcURL string) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", network, err)
	}

	return &EVMClient{
		network: network,
		rpcURL:  rpcURL,
		client:  client,
	}, nil
}

func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

func (e *EVMClient) Close() {
	e.client.Close()
}

func (e *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return e.client.SuggestGasPrice(ctx)
}

func (e *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return e.client.EstimateGas(ctx, msg)
}

// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
func (e *EVMClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return e.client.TransactionReceipt(ctx, hash)
}

// Balance reads the native or ERC-20 balance of target.Address at the latest
// block.
func (e *EVMClient) Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	owner := common.HexToAddress(target.Address)

	if !target.IsToken() {
		wei, err := e.client.BalanceAt(ctx, owner, nil)
		if err != nil {
			return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "balance call failed", err)
		}
		return decimal.NewFromBigInt(wei, -target.Decimals), nil
	}

	data, err := PackBalanceOf(owner)
	if err != nil {
		return decimal.Zero, err
	}
	contract := common.HexToAddress(target.Contract)
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "balanceOf call failed", err)
	}
	bal, err := UnpackBalanceOf(out)
	if err != nil {
		return decimal.Zero, types.NewError(types.ErrCodeExternalAPIUnavailable, "invalid balanceOf result", err)
	}
	return decimal.NewFromBigInt(bal, -target.Decimals), nil
}

// FallbackFetcher reads from Primary and, when it fails, from Secondary.
type FallbackFetcher struct {
	Primary   BalanceFetcher
	Secondary BalanceFetcher
}

func (f FallbackFetcher) Balance(ctx context.Context, target types.PaymentTarget) (decimal.Decimal, error) {
	bal, err := f.Primary.Balance(ctx, target)
	if err == nil || f.Secondary == nil {
		return bal, err
	}
	bal, secErr := f.Secondary.Balance(ctx, target)
	if secErr != nil {
		return decimal.Zero, fmt.Errorf("%w; fallback: %v", err, secErr)
	}
	return bal, nil
}
