package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

// InstallURL is where buyers without a wallet are sent.
const InstallURL = "https://metamask.io/download/"

// EventKind names a provider event.
type EventKind string

const (
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event is a provider-level notification delivered to the session inbox.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  string
}

// TxRequest is the eth_sendTransaction payload.
type TxRequest struct {
	From     string
	To       string
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
}

// Provider is the wallet capability the checkout drives.
type Provider interface {
	// RequestAccounts asks the buyer to authorize accounts.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Accounts returns already authorized accounts without prompting.
	Accounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
	// Subscribe delivers account and chain changes to ch until the returned
	// function is called.
	Subscribe(ch chan<- Event) (unsubscribe func())
}

// ProviderError is an error reported by the wallet with its numeric code.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the provider code of err, or 0.
func ErrorCode(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}
