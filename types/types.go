package types

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// FreeShippingThreshold is the subtotal from which shipping is free.
	FreeShippingThreshold = decimal.NewFromInt(50)
	// ShippingFee is charged below FreeShippingThreshold.
	ShippingFee = decimal.NewFromInt(5)
)

// LineItem is one cart row supplied by the cart collaborator.
type LineItem struct {
	ProductID string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal is unit price times quantity.
func (li LineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Order is the immutable snapshot a checkout is paying for.
type Order struct {
	Items     []LineItem      `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewOrder computes subtotal, shipping and total for items. An empty cart
// costs nothing, including shipping.
func NewOrder(items []LineItem, createdAt time.Time) Order {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}

	shipping := decimal.Zero
	if len(items) > 0 && subtotal.LessThan(FreeShippingThreshold) {
		shipping = ShippingFee
	}

	cp := make([]LineItem, len(items))
	copy(cp, items)

	return Order{
		Items:     cp,
		Subtotal:  subtotal,
		Shipping:  shipping,
		Total:     subtotal.Add(shipping),
		CreatedAt: createdAt,
	}
}

// Key is the order identity key derived from its creation timestamp.
func (o Order) Key() string {
	return strconv.FormatInt(o.CreatedAt.UnixMilli(), 10)
}

// IsEmpty reports whether the order has no items.
func (o Order) IsEmpty() bool {
	return len(o.Items) == 0
}

// AssetRates holds USD prices for the payable assets.
type AssetRates struct {
	BTC  float64 `json:"btc"`
	ETH  float64 `json:"eth"`
	USDT float64 `json:"usdt"`
}

// DefaultRates are used until the first successful refresh.
var DefaultRates = AssetRates{BTC: 40000, ETH: 2000, USDT: 1}

// Rate returns the USD price of asset.
func (r AssetRates) Rate(asset Asset) float64 {
	switch asset {
	case AssetBTC:
		return r.BTC
	case AssetETH:
		return r.ETH
	case AssetUSDT:
		return r.USDT
	}
	return 0
}

// WalletState is the connection state owned by the wallet session.
type WalletState struct {
	Connected bool   `json:"connected"`
	Account   string `json:"account,omitempty"`
	ChainID   string `json:"chainId,omitempty"`
}

// OutcomeSource names the producer of a PaymentOutcome.
type OutcomeSource string

const (
	SourceWatcher OutcomeSource = "watcher"
	SourceTracker OutcomeSource = "tracker"
)

// PaymentOutcome is the terminal record of a paid order. Exactly one exists
// per order key.
type PaymentOutcome struct {
	OrderKey    string        `json:"orderKey"`
	Asset       Asset         `json:"asset"`
	Network     Network       `json:"network,omitempty"`
	ObservedUSD float64       `json:"observedUsd"`
	TxHash      string        `json:"txHash,omitempty"`
	Source      OutcomeSource `json:"source"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Customer is the shipping info recorded by the registration collaborator.
type Customer struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// CompletedOrder is the "last completed order" record.
type CompletedOrder struct {
	Total    decimal.Decimal `json:"total"`
	Cart     []LineItem      `json:"cart"`
	Customer Customer        `json:"customer"`
}

// PurchaseRecord is one entry of a buyer's purchase history.
type PurchaseRecord struct {
	ID       string          `json:"id"`
	OrderKey string          `json:"orderKey"`
	Items    []LineItem      `json:"items"`
	Total    decimal.Decimal `json:"total"`
	Date     time.Time       `json:"date"`
	Address  string          `json:"address"`
	Status   string          `json:"status"`
}

const PurchaseStatusCompleted = "completed"

// NoticeLevel grades a transient buyer notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message surfaced to the buyer.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Notifier receives transient buyer notices.
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// NoopNotifier drops every notice.
type NoopNotifier struct{}

func (NoopNotifier) Notify(NoticeLevel, string) {}

// OutcomeSink finalizes a detected payment. It reports whether outcome was
// the first for its order.
type OutcomeSink interface {
	Complete(ctx context.Context, outcome PaymentOutcome) (bool, error)
}

// PaidChecker reports whether an order already has an outcome.
type PaidChecker interface {
	IsPaid(ctx context.Context, orderKey string) (bool, error)
}

// OrderSource returns the order currently being paid.
type OrderSource interface {
	Order() Order
}

// RateSource returns the current USD rates.
type RateSource interface {
	Rates() AssetRates
}
