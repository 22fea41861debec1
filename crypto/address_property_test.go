package crypto_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"iapgate/crypto"
)

// Property: ParseAddress(Long(ParseAddress(s))) == ParseAddress(s) for any 20 bytes,
// regardless of prefix and letter case.
func TestAddressParseRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parse round-trips through the long form", prop.ForAll(
		func(raw []byte, prefixed bool, upper bool) bool {
			text := hex.EncodeToString(raw)
			if upper {
				text = strings.ToUpper(text)
			}
			if prefixed {
				text = "0x" + text
			}
			first, err := crypto.ParseAddress(text)
			if err != nil {
				return false
			}
			second, err := crypto.ParseAddress(first.Long())
			if err != nil {
				return false
			}
			return first == second && len(second.Bytes()) == crypto.AddressLength
		},
		gen.SliceOfN(crypto.AddressLength, gen.UInt8()),
		gen.Bool(),
		gen.Bool(),
	))

	properties.Property("derive is deterministic", prop.ForAll(
		func(raw []byte, key string) bool {
			addr, err := crypto.AddressFromBytes(raw)
			if err != nil {
				return false
			}
			return addr.Derive(key) == addr.Derive(key)
		},
		gen.SliceOfN(crypto.AddressLength, gen.UInt8()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
