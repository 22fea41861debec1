// Package receipt holds the receipt lifecycle vocabulary shared by the
// validators and the settlement gate.
package receipt

import (
	"fmt"
	"strconv"
	"strings"
)

// Store identifies the storefront that issued a receipt. The numeric values
// are persisted and must not change.
type Store int

const (
	StoreTest       Store = 0
	StoreApple      Store = 1
	StoreGoogle     Store = 2
	StoreWeb        Store = 3
	StoreAppleTest  Store = 91
	StoreGoogleTest Store = 92
	StoreWebTest    Store = 93
)

var storeNames = map[Store]string{
	StoreTest:       "TEST",
	StoreApple:      "APPLE",
	StoreGoogle:     "GOOGLE",
	StoreWeb:        "WEB",
	StoreAppleTest:  "APPLE_TEST",
	StoreGoogleTest: "GOOGLE_TEST",
	StoreWebTest:    "WEB_TEST",
}

// Stores lists every known store in ascending code order.
func Stores() []Store {
	return []Store{StoreTest, StoreApple, StoreGoogle, StoreWeb, StoreAppleTest, StoreGoogleTest, StoreWebTest}
}

func (s Store) String() string {
	if name, ok := storeNames[s]; ok {
		return name
	}
	return "STORE(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is a known store code.
func (s Store) Valid() bool {
	_, ok := storeNames[s]
	return ok
}

// Sandbox reports whether receipts come from a store's sandbox environment.
func (s Store) Sandbox() bool {
	return s == StoreAppleTest || s == StoreGoogleTest || s == StoreWebTest
}

// Family maps sandbox stores onto their production counterpart.
func (s Store) Family() Store {
	switch s {
	case StoreAppleTest:
		return StoreApple
	case StoreGoogleTest:
		return StoreGoogle
	case StoreWebTest:
		return StoreWeb
	default:
		return s
	}
}

// ParseStore accepts either the store name or its numeric code.
func ParseStore(text string) (Store, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(text))
	if n, err := strconv.Atoi(trimmed); err == nil {
		s := Store(n)
		if s.Valid() {
			return s, nil
		}
		return 0, fmt.Errorf("receipt: unknown store code %d", n)
	}
	for s, name := range storeNames {
		if name == trimmed {
			return s, nil
		}
	}
	return 0, fmt.Errorf("receipt: unknown store %q", text)
}

func (s Store) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Store) UnmarshalText(text []byte) error {
	parsed, err := ParseStore(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
