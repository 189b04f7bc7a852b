package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/vitwit/checkout/types"
)

// ToBaseUnits converts a USD total into integer base units of an asset with
// the given decimals. The total is truncated to cents and the quotient is
// truncated to the asset precision, so the result never rounds up.
func ToBaseUnits(totalUSD decimal.Decimal, rate float64, decimals int32) (*big.Int, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %v", rate)
	}
	if totalUSD.IsNegative() {
		return nil, fmt.Errorf("total cannot be negative")
	}

	cents := totalUSD.Truncate(2)
	quotient, _ := cents.QuoRem(decimal.NewFromFloat(rate), decimals)
	return quotient.Shift(decimals).BigInt(), nil
}

// AssetAmount is the display amount of asset due for totalUSD at rate.
func AssetAmount(totalUSD decimal.Decimal, rate float64) decimal.Decimal {
	if rate <= 0 {
		return decimal.Zero
	}
	return totalUSD.DivRound(decimal.NewFromFloat(rate), 18)
}

// FormatAssetAmount renders amount with the display precision of asset.
func FormatAssetAmount(asset types.Asset, amount decimal.Decimal) string {
	switch asset {
	case types.AssetBTC:
		if amount.LessThan(decimal.New(1, -4)) {
			return amount.StringFixed(10)
		}
		return amount.StringFixed(8)
	case types.AssetETH:
		if amount.LessThan(decimal.New(1, -3)) {
			return amount.StringFixed(8)
		}
		return amount.StringFixed(6)
	default:
		return amount.StringFixed(2)
	}
}

// USDValue converts a whole-unit balance to USD at rate.
func USDValue(balance decimal.Decimal, rate float64) float64 {
	f, _ := balance.Float64()
	return f * rate
}

// PaymentURI builds the QR payload for paying totalUSD to target at rate.
func PaymentURI(target types.PaymentTarget, totalUSD decimal.Decimal, rate float64) string {
	switch {
	case target.Network == types.NetworkBitcoin:
		amount := AssetAmount(totalUSD, rate)
		return fmt.Sprintf("bitcoin:%s?amount=%s", target.Address, FormatAssetAmount(types.AssetBTC, amount))

	case target.Network == types.NetworkEthereum:
		wei, err := ToBaseUnits(totalUSD, rate, target.Decimals)
		if err != nil {
			return target.Address
		}
		return fmt.Sprintf("ethereum:%s?value=%s", target.Address, wei.String())

	case target.Network == types.NetworkERC20:
		units, err := ToBaseUnits(totalUSD, rate, target.Decimals)
		if err != nil {
			return target.Address
		}
		return fmt.Sprintf("ethereum:%s/transfer?address=%s&uint256=%s", target.Contract, target.Address, units.String())

	default:
		return target.Address
	}
}
