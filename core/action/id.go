package action

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidID is returned for action identifiers that are not 16 bytes.
	ErrInvalidID = errors.New("action: invalid action id")
	// ErrInvalidFungibleItemID is returned for fungible item identifiers that are not 32 bytes.
	ErrInvalidFungibleItemID = errors.New("action: invalid fungible item id")
)

// ID identifies a single settlement action. It is rendered as 32 lowercase
// hex characters and encoded on the wire as its raw 16 bytes.
type ID [16]byte

// NewID returns a random identifier.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID accepts 32 hex characters or the hyphenated UUID layout.
func ParseID(text string) (ID, error) {
	parsed, err := uuid.Parse(text)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q: %v", ErrInvalidID, text, err)
	}
	return ID(parsed), nil
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// FungibleItemID is the 32-byte identifier of a fungible inventory item.
type FungibleItemID [32]byte

// ParseFungibleItemID decodes 64 hex characters.
func ParseFungibleItemID(text string) (FungibleItemID, error) {
	if len(text) != 64 {
		return FungibleItemID{}, fmt.Errorf("%w: %q must have 64 hex characters", ErrInvalidFungibleItemID, text)
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return FungibleItemID{}, fmt.Errorf("%w: %q: %v", ErrInvalidFungibleItemID, text, err)
	}
	var id FungibleItemID
	copy(id[:], raw)
	return id, nil
}

// FungibleItemIDFromBytes copies a raw 32-byte identifier.
func FungibleItemIDFromBytes(raw []byte) (FungibleItemID, error) {
	if len(raw) != 32 {
		return FungibleItemID{}, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidFungibleItemID, len(raw))
	}
	var id FungibleItemID
	copy(id[:], raw)
	return id, nil
}

// FungibleItemIDOf normalises either representation to the raw identifier.
func FungibleItemIDOf[T string | []byte](v T) (FungibleItemID, error) {
	switch x := any(v).(type) {
	case string:
		return ParseFungibleItemID(x)
	case []byte:
		return FungibleItemIDFromBytes(x)
	}
	return FungibleItemID{}, ErrInvalidFungibleItemID
}

func (id FungibleItemID) String() string {
	return hex.EncodeToString(id[:])
}

func (id FungibleItemID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *FungibleItemID) UnmarshalText(text []byte) error {
	parsed, err := ParseFungibleItemID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
