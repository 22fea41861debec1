// Package action compiles settlement intents into canonical trees.
//
// Every concrete action validates its inputs in its constructor. Once an
// action exists, building its tree and encoding it cannot fail, and the same
// action always produces the same bytes.
package action

import (
	"errors"

	"iapgate/core/plain"
)

// Type identifiers as understood by the ledger.
const (
	TypeClaimItems            = "claim_items"
	TypeGrantItems            = "grant_items"
	TypeBurnAsset             = "burn_asset"
	TypeIssueToken            = "issue_token"
	TypeIssueTokensFromGarage = "issue_tokens_from_garage"
	TypeUnloadFromMyGarages   = "unload_from_my_garages"
	TypeTransferAssets        = "transfer_assets3"
)

var (
	// ErrInvalidCount is returned when an item count is not positive.
	ErrInvalidCount = errors.New("action: item count must be positive")
	// ErrEmptyAction is returned when an action would carry no payload.
	ErrEmptyAction = errors.New("action: no entries")
)

// Action is a settlement action. The set of implementations is closed to
// this package.
type Action interface {
	TypeID() string
	ID() ID
	// Values returns the action specific payload tree.
	Values() plain.Value
	sealed()
}

// Option customises the common fields of an action.
type Option func(*base)

// WithID pins the action identifier, so a retried settlement reproduces the
// exact same payload.
func WithID(id ID) Option {
	return func(b *base) {
		b.id = id
	}
}

type base struct {
	id ID
}

func newBase(opts []Option) base {
	b := base{}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	if b.id.IsZero() {
		b.id = NewID()
	}
	return b
}

func (b base) ID() ID { return b.id }

func (base) sealed() {}

// PlainValue returns the external form {type_id, id, values}.
func PlainValue(a Action) plain.Dict {
	id := a.ID()
	return plain.Dict{
		plain.KV("type_id", plain.Text(a.TypeID())),
		plain.KV("id", plain.Bytes(id[:])),
		plain.KV("values", a.Values()),
	}
}

// Encode serialises the external form of a.
func Encode(a Action) []byte {
	return plain.Marshal(PlainValue(a))
}

func optionalText(s string) plain.Value {
	if s == "" {
		return plain.Null
	}
	return plain.Text(s)
}
