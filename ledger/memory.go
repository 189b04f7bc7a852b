package ledger

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v2"

	"github.com/vitwit/checkout/types"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	paid *xsync.MapOf[string, types.PaymentOutcome]

	mu        sync.Mutex
	lastOrder *types.CompletedOrder
	purchases map[string][]types.PurchaseRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		paid:      xsync.NewMapOf[types.PaymentOutcome](),
		purchases: make(map[string][]types.PurchaseRecord),
	}
}

func (m *MemoryStore) IsPaid(_ context.Context, orderKey string) (bool, error) {
	_, ok := m.paid.Load(orderKey)
	return ok, nil
}

func (m *MemoryStore) MarkPaid(_ context.Context, outcome types.PaymentOutcome) (bool, error) {
	_, loaded := m.paid.LoadOrStore(outcome.OrderKey, outcome)
	return !loaded, nil
}

func (m *MemoryStore) Outcome(_ context.Context, orderKey string) (types.PaymentOutcome, bool, error) {
	o, ok := m.paid.Load(orderKey)
	return o, ok, nil
}

func (m *MemoryStore) LastOrder(context.Context) (types.CompletedOrder, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastOrder == nil {
		return types.CompletedOrder{}, false, nil
	}
	return *m.lastOrder, true, nil
}

func (m *MemoryStore) SaveLastOrder(_ context.Context, order types.CompletedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrder = &order
	return nil
}

func (m *MemoryStore) SaveCustomer(_ context.Context, customer types.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastOrder == nil {
		m.lastOrder = &types.CompletedOrder{}
	}
	m.lastOrder.Customer = customer
	return nil
}

func (m *MemoryStore) AppendPurchase(_ context.Context, email string, rec types.PurchaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.purchases[email] {
		if existing.OrderKey == rec.OrderKey {
			return nil
		}
	}
	m.purchases[email] = append(m.purchases[email], rec)
	return nil
}

func (m *MemoryStore) Purchases(_ context.Context, email string) ([]types.PurchaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.PurchaseRecord(nil), m.purchases[email]...), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
