package asset

import (
	"fmt"
	"strings"

	"iapgate/core/plain"
	"iapgate/crypto"
)

// Currency describes a fungible asset type on the ledger.
//
// Currency is immutable once constructed. An empty minter list is stored as
// absent so that Currency(minters=[]) and Currency(minters=nil) are the same
// value both in Equal and on the wire.
type Currency struct {
	ticker               string
	decimalPlaces        uint8
	minters              []crypto.Address
	totalSupplyTrackable bool
}

// NewCurrency builds a currency. The minter slice is copied.
func NewCurrency(ticker string, decimalPlaces uint8, minters []crypto.Address, totalSupplyTrackable bool) Currency {
	c := Currency{
		ticker:               ticker,
		decimalPlaces:        decimalPlaces,
		totalSupplyTrackable: totalSupplyTrackable,
	}
	if len(minters) > 0 {
		c.minters = append([]crypto.Address(nil), minters...)
	}
	return c
}

// ParseMinters parses textual minter addresses. An empty input yields nil.
func ParseMinters(minters []string) ([]crypto.Address, error) {
	if len(minters) == 0 {
		return nil, nil
	}
	out := make([]crypto.Address, 0, len(minters))
	for _, m := range minters {
		addr, err := crypto.ParseAddress(m)
		if err != nil {
			return nil, fmt.Errorf("asset: minter: %w", err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// NCG is the 2-decimal governance currency with its single minter.
func NCG() Currency {
	return NewCurrency("NCG", 2, []crypto.Address{crypto.MustParseAddress("47d082a115c63e7b58b1532d20e631538eafadde")}, false)
}

// CRYSTAL is the 18-decimal currency without minters.
func CRYSTAL() Currency {
	return NewCurrency("CRYSTAL", 18, nil, false)
}

// GARAGE is the 18-decimal garage token whose total supply is tracked.
func GARAGE() Currency {
	return NewCurrency("GARAGE", 18, nil, true)
}

// CurrencyForTicker resolves a ticker to its ledger currency. Unknown tickers
// are treated as 0-decimal, minterless currencies with an upper-cased ticker.
func CurrencyForTicker(ticker string) Currency {
	switch strings.ToLower(strings.TrimSpace(ticker)) {
	case "crystal":
		return CRYSTAL()
	case "garage":
		return GARAGE()
	case "ncg":
		return NCG()
	default:
		return NewCurrency(strings.ToUpper(strings.TrimSpace(ticker)), 0, nil, false)
	}
}

func (c Currency) Ticker() string { return c.ticker }

func (c Currency) DecimalPlaces() uint8 { return c.decimalPlaces }

func (c Currency) TotalSupplyTrackable() bool { return c.totalSupplyTrackable }

// Minters returns a copy of the minter set, or nil when absent.
func (c Currency) Minters() []crypto.Address {
	if len(c.minters) == 0 {
		return nil
	}
	return append([]crypto.Address(nil), c.minters...)
}

// Equal compares all four fields. Minter order is significant.
func (c Currency) Equal(other Currency) bool {
	if c.ticker != other.ticker || c.decimalPlaces != other.decimalPlaces || c.totalSupplyTrackable != other.totalSupplyTrackable {
		return false
	}
	if len(c.minters) != len(other.minters) {
		return false
	}
	for i := range c.minters {
		if c.minters[i] != other.minters[i] {
			return false
		}
	}
	return true
}

func (c Currency) String() string {
	return fmt.Sprintf("%s(%d)", c.ticker, c.decimalPlaces)
}

// Tree renders the canonical form:
//
//	{ticker, decimalPlaces: <one raw byte>, minters: [raw20...] | null, totalSupplyTrackable: true?}
//
// totalSupplyTrackable is omitted entirely when false.
func (c Currency) Tree() plain.Dict {
	var minters plain.Value = plain.Null
	if len(c.minters) > 0 {
		list := make(plain.List, 0, len(c.minters))
		for _, m := range c.minters {
			list = append(list, plain.Bytes(m.Bytes()))
		}
		minters = list
	}
	d := plain.Dict{
		plain.KV("ticker", plain.Text(c.ticker)),
		plain.KV("decimalPlaces", plain.Bytes{c.decimalPlaces}),
		plain.KV("minters", minters),
	}
	if c.totalSupplyTrackable {
		d = append(d, plain.KV("totalSupplyTrackable", plain.Bool(true)))
	}
	return d
}
