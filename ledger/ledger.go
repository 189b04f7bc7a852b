// Package ledger persists the paid-orders ledger, the last completed order
// and per-buyer purchase history.
package ledger

import (
	"context"

	"github.com/vitwit/checkout/types"
)

// Store is the durable checkout state shared by the watcher, the tracker and
// the session.
type Store interface {
	// IsPaid reports whether orderKey already has a PaymentOutcome.
	IsPaid(ctx context.Context, orderKey string) (bool, error)
	// MarkPaid records outcome unless its order key is already paid. It
	// reports whether this call won the write.
	MarkPaid(ctx context.Context, outcome types.PaymentOutcome) (bool, error)
	// Outcome returns the recorded outcome for orderKey.
	Outcome(ctx context.Context, orderKey string) (types.PaymentOutcome, bool, error)

	LastOrder(ctx context.Context) (types.CompletedOrder, bool, error)
	SaveLastOrder(ctx context.Context, order types.CompletedOrder) error
	// SaveCustomer attaches shipping info to the last order record.
	SaveCustomer(ctx context.Context, customer types.Customer) error

	// AppendPurchase adds rec to the history of email. A second record for
	// the same order key is ignored.
	AppendPurchase(ctx context.Context, email string, rec types.PurchaseRecord) error
	Purchases(ctx context.Context, email string) ([]types.PurchaseRecord, error)

	Close() error
}
