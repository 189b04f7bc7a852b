package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
	"github.com/vitwit/checkout/utils"
	"github.com/vitwit/checkout/wallet"
)

// PaymentOption is one payable target with its amount and QR payload at the
// current rates.
type PaymentOption struct {
	Asset    types.Asset   `json:"asset"`
	Network  types.Network `json:"network"`
	Address  string        `json:"address"`
	Amount   string        `json:"amount"`
	URI      string        `json:"uri"`
	Wallet   bool          `json:"wallet"`
	FeeHint  string        `json:"networkInfo"`
	ChainID  string        `json:"chainId,omitempty"`
	Contract string        `json:"contract,omitempty"`
}

// Summary is everything the checkout view renders.
type Summary struct {
	Items    []types.LineItem `json:"items"`
	Subtotal decimal.Decimal  `json:"subtotal"`
	Shipping decimal.Decimal  `json:"shipping"`
	Total    decimal.Decimal  `json:"total"`
	Empty    bool             `json:"empty"`

	Rates          types.AssetRates       `json:"rates"`
	RatesUpdatedAt time.Time              `json:"ratesUpdatedAt,omitempty"`
	Amounts        map[types.Asset]string `json:"amounts"`
	Options        []PaymentOption        `json:"options"`
	Selected       Selection              `json:"selected"`
	SelectedOption PaymentOption          `json:"selectedOption"`

	Countdown string `json:"countdown"`
	Expired   bool   `json:"expired"`

	Wallet       types.WalletState `json:"wallet"`
	WalletStatus wallet.State      `json:"walletStatus"`
	CanPay       bool              `json:"canPay"`

	Paid     bool                  `json:"paid"`
	Outcome  *types.PaymentOutcome `json:"outcome,omitempty"`
	Redirect string                `json:"redirect,omitempty"`

	Version string `json:"version"`
}

// recompute rebuilds every payment option for r. It runs on every
// successful rate refresh.
func (s *Session) recompute(r types.AssetRates) {
	order := s.Order()
	options := make([]PaymentOption, 0, len(s.targets))
	for _, t := range s.targets {
		rate := r.Rate(t.Asset)
		chain, _ := types.Chain(t.Network)
		options = append(options, PaymentOption{
			Asset:    t.Asset,
			Network:  t.Network,
			Address:  t.Address,
			Amount:   utils.FormatAssetAmount(t.Asset, utils.AssetAmount(order.Total, rate)),
			URI:      utils.PaymentURI(t, order.Total, rate),
			Wallet:   t.WalletTransferable(),
			FeeHint:  chain.NetworkInfo(),
			ChainID:  t.ChainID,
			Contract: t.Contract,
		})
	}

	s.mu.Lock()
	s.options = options
	s.mu.Unlock()
}

// Summary returns a consistent view of the session.
func (s *Session) Summary() Summary {
	r := s.rates.Rates()
	w := s.wallet.Wallet()
	remaining := s.countdown.Remaining()

	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Items:          s.order.Items,
		Subtotal:       s.order.Subtotal,
		Shipping:       s.order.Shipping,
		Total:          s.order.Total,
		Empty:          s.order.IsEmpty(),
		Rates:          r,
		RatesUpdatedAt: s.rates.UpdatedAt(),
		Amounts:        make(map[types.Asset]string, len(types.Assets)),
		Options:        append([]PaymentOption(nil), s.options...),
		Selected:       s.selection,
		Countdown:      FormatRemaining(remaining),
		Expired:        remaining <= 0,
		Wallet:         w,
		WalletStatus:   s.walletStatus,
		Version:        Version,
		Paid:           s.paid,
		Outcome:        s.outcome,
		Redirect:       s.redirect,
	}
	for _, asset := range types.Assets {
		sum.Amounts[asset] = utils.FormatAssetAmount(asset, utils.AssetAmount(s.order.Total, r.Rate(asset)))
	}
	for _, o := range s.options {
		if o.Asset == s.selection.Asset && o.Network == s.selection.Network {
			sum.SelectedOption = o
			break
		}
	}
	sum.CanPay = !sum.Empty && !sum.Paid && sum.SelectedOption.Wallet
	return sum
}
