package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the size of a raw account identifier in bytes.
const AddressLength = 20

// ErrInvalidFormat is returned when textual or raw input cannot form an address.
var ErrInvalidFormat = errors.New("crypto: invalid address format")

// Address is a 20-byte account identifier. It is a value type: equality and
// map hashing operate on the raw bytes.
type Address [AddressLength]byte

// ParseAddress decodes a 40 character hex string with an optional 0x prefix.
// Hex digits are accepted in either case.
func ParseAddress(text string) (Address, error) {
	trimmed := text
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != AddressLength*2 {
		return Address{}, fmt.Errorf("%w: %q must have exactly %d hex characters", ErrInvalidFormat, text, AddressLength*2)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, text, err)
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// MustParseAddress is ParseAddress for compile-time constants. It panics on malformed input.
func MustParseAddress(text string) Address {
	addr, err := ParseAddress(text)
	if err != nil {
		panic(err)
	}
	return addr
}

// AddressFromBytes copies a raw 20-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidFormat, AddressLength, len(b))
	}
	var addr Address
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// Long renders the address as 0x followed by 40 lowercase hex characters.
func (a Address) Long() string {
	return "0x" + a.Short()
}

// Short renders the address as 40 lowercase hex characters without prefix.
func (a Address) Short() string {
	return hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Long()
}

// IsZero reports whether every byte of the address is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Derive computes HMAC-SHA1(key, address) and returns the 20-byte digest as a
// new address. The construction matches the ledger's own derivation so the
// result must not be altered.
func (a Address) Derive(key string) Address {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write(a[:])
	var derived Address
	copy(derived[:], mac.Sum(nil))
	return derived
}

// Checksum renders the ERC-55 mixed-case form with a 0x prefix.
func (a Address) Checksum() string {
	lower := a.Short()
	hash := ethcrypto.Keccak256([]byte(lower))
	out := make([]byte, 0, len(lower)+2)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'a' && c <= 'f' {
			nibble := hash[i/2]
			if i%2 == 0 {
				nibble >>= 4
			} else {
				nibble &= 0x0f
			}
			if nibble > 7 {
				c -= 'a' - 'A'
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// MarshalText implements encoding.TextMarshaler using the long form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Long()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
