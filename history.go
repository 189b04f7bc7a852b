package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/vitwit/checkout/types"
)

// recordOrder writes the last completed order, keeping the customer info
// recorded before payment, and appends to the buyer's purchase history.
func (s *Session) recordOrder(ctx context.Context, order types.Order, buyer string) error {
	prev, _, err := s.store.LastOrder(ctx)
	if err != nil {
		return fmt.Errorf("load last order: %w", err)
	}

	err = s.store.SaveLastOrder(ctx, types.CompletedOrder{
		Total:    order.Total,
		Cart:     order.Items,
		Customer: prev.Customer,
	})
	if err != nil {
		err = fmt.Errorf("save last order: %w", err)
	}
	if buyer == "" {
		return err
	}

	rec := types.PurchaseRecord{
		ID:       uuid.NewString(),
		OrderKey: order.Key(),
		Items:    order.Items,
		Total:    order.Total,
		Date:     s.now(),
		Address:  prev.Customer.Address,
		Status:   types.PurchaseStatusCompleted,
	}
	if perr := s.store.AppendPurchase(ctx, buyer, rec); perr != nil {
		err = multierr.Append(err, fmt.Errorf("append purchase: %w", perr))
	}
	return err
}
