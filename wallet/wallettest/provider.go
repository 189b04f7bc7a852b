// Package wallettest provides an in-memory wallet.Provider for tests.
package wallettest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vitwit/checkout/wallet"
)

var _ wallet.Provider = (*Provider)(nil)

// Provider is a scriptable wallet. Switching to a chain succeeds unless the
// chain is listed in Unknown or SwitchErr is set.
type Provider struct {
	mu sync.Mutex

	Account    string
	Authorized bool
	Chain      string

	RequestErr error
	SwitchErr  error
	SendErr    error
	SendHash   string
	Unknown    map[string]bool

	Sent        []wallet.TxRequest
	SwitchCalls []string
	// AfterSwitch runs after a successful switch, before it returns.
	AfterSwitch func()

	nextID   int
	subs     map[int]chan<- wallet.Event
	subbed   int
	unsubbed int
}

func New(account, chain string) *Provider {
	return &Provider{Account: account, Chain: chain, SendHash: "0x" + strings.Repeat("ab", 32)}
}

func (p *Provider) RequestAccounts(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RequestErr != nil {
		return nil, p.RequestErr
	}
	p.Authorized = true
	return []string{p.Account}, nil
}

func (p *Provider) Accounts(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Authorized || p.Account == "" {
		return []string{}, nil
	}
	return []string{p.Account}, nil
}

func (p *Provider) ChainID(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Chain, nil
}

func (p *Provider) SwitchChain(_ context.Context, chainID string) error {
	p.mu.Lock()
	p.SwitchCalls = append(p.SwitchCalls, chainID)
	if p.SwitchErr != nil {
		err := p.SwitchErr
		p.mu.Unlock()
		return err
	}
	if p.Unknown[chainID] {
		p.mu.Unlock()
		return &wallet.ProviderError{Code: wallet.CodeChainNotAdded, Message: fmt.Sprintf("Unrecognized chain ID %q", chainID)}
	}
	p.Chain = chainID
	after := p.AfterSwitch
	p.mu.Unlock()

	if after != nil {
		after()
	}
	return nil
}

func (p *Provider) SendTransaction(_ context.Context, tx wallet.TxRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return "", p.SendErr
	}
	p.Sent = append(p.Sent, tx)
	return p.SendHash, nil
}

func (p *Provider) Subscribe(ch chan<- wallet.Event) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs == nil {
		p.subs = make(map[int]chan<- wallet.Event)
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subbed++

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.unsubbed++
			p.mu.Unlock()
		})
	}
}

// Emit delivers ev to every active subscriber.
func (p *Provider) Emit(ev wallet.Event) {
	p.mu.Lock()
	subs := make([]chan<- wallet.Event, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// Subscriptions returns how many subscriptions are active and how many were
// ever made.
func (p *Provider) Subscriptions() (active, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs), p.subbed
}

// SetAccount changes the authorized account; empty revokes access.
func (p *Provider) SetAccount(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Account = account
}

// Transactions returns a copy of the sent transactions.
func (p *Provider) Transactions() []wallet.TxRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wallet.TxRequest(nil), p.Sent...)
}
