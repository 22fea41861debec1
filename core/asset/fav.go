package asset

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"iapgate/core/plain"
)

// ErrInvalidAmount is returned when an amount cannot be expressed as a whole
// number of minor units at the currency's scale.
var ErrInvalidAmount = errors.New("asset: amount is not an exact number of minor units")

// FungibleAssetValue is an amount of a currency. The amount is kept as an
// arbitrary-precision decimal; the wire form uses integer minor units.
type FungibleAssetValue struct {
	currency Currency
	amount   decimal.Decimal
	minor    *big.Int
}

// NewFungibleAssetValue checks that amount × 10^decimalPlaces is integral.
func NewFungibleAssetValue(currency Currency, amount decimal.Decimal) (FungibleAssetValue, error) {
	scaled := amount.Shift(int32(currency.DecimalPlaces()))
	if !scaled.IsInteger() {
		return FungibleAssetValue{}, fmt.Errorf("%w: %s with %d decimal places", ErrInvalidAmount, amount.String(), currency.DecimalPlaces())
	}
	return FungibleAssetValue{currency: currency, amount: amount, minor: scaled.BigInt()}, nil
}

// FromRaw builds the currency and the value in one step.
func FromRaw(ticker string, decimalPlaces uint8, minters []string, amount decimal.Decimal) (FungibleAssetValue, error) {
	parsed, err := ParseMinters(minters)
	if err != nil {
		return FungibleAssetValue{}, err
	}
	return NewFungibleAssetValue(NewCurrency(ticker, decimalPlaces, parsed, false), amount)
}

// MustFromRaw is FromRaw for literals in tests and fixtures.
func MustFromRaw(ticker string, decimalPlaces uint8, minters []string, amount decimal.Decimal) FungibleAssetValue {
	fav, err := FromRaw(ticker, decimalPlaces, minters, amount)
	if err != nil {
		panic(err)
	}
	return fav
}

func (f FungibleAssetValue) Currency() Currency { return f.currency }

func (f FungibleAssetValue) Amount() decimal.Decimal { return f.amount }

// MinorUnits returns a copy of amount × 10^decimalPlaces.
func (f FungibleAssetValue) MinorUnits() *big.Int {
	if f.minor == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(f.minor)
}

// Equal compares currency and amount numerically (1.0 equals 1).
func (f FungibleAssetValue) Equal(other FungibleAssetValue) bool {
	return f.currency.Equal(other.currency) && f.amount.Equal(other.amount)
}

func (f FungibleAssetValue) String() string {
	return f.amount.String() + " " + f.currency.Ticker()
}

// Tree renders [currencyTree, minorUnits].
func (f FungibleAssetValue) Tree() plain.List {
	return plain.List{f.currency.Tree(), plain.BigInt(f.minor)}
}
