package action

import (
	"fmt"

	"iapgate/core/asset"
	"iapgate/core/plain"
	"iapgate/crypto"
)

// ItemSpec is a non-fungible item grant inside IssueToken.
type ItemSpec struct {
	ItemID   int64
	Count    int64
	Tradable bool
}

// IssueToken wraps assets and items held by an avatar into tokens.
//
//	{a: avatar, f: [fav...], i: [[itemId, count, tradable]...]}
type IssueToken struct {
	base
	avatar crypto.Address
	favs   []asset.FungibleAssetValue
	items  []ItemSpec
}

func NewIssueToken(avatar crypto.Address, favs []asset.FungibleAssetValue, items []ItemSpec, opts ...Option) (*IssueToken, error) {
	if len(favs) == 0 && len(items) == 0 {
		return nil, fmt.Errorf("%w: issue_token", ErrEmptyAction)
	}
	for _, it := range items {
		if it.Count <= 0 {
			return nil, fmt.Errorf("%w: item %d has count %d", ErrInvalidCount, it.ItemID, it.Count)
		}
	}
	return &IssueToken{
		base:   newBase(opts),
		avatar: avatar,
		favs:   append([]asset.FungibleAssetValue(nil), favs...),
		items:  append([]ItemSpec(nil), items...),
	}, nil
}

func (a *IssueToken) TypeID() string { return TypeIssueToken }

func (a *IssueToken) Values() plain.Value {
	favs := make(plain.List, 0, len(a.favs))
	for _, fav := range a.favs {
		favs = append(favs, fav.Tree())
	}
	items := make(plain.List, 0, len(a.items))
	for _, it := range a.items {
		items = append(items, plain.List{plain.NewInt(it.ItemID), plain.NewInt(it.Count), plain.Bool(it.Tradable)})
	}
	return plain.Dict{
		plain.KV("a", plain.Bytes(a.avatar.Bytes())),
		plain.KV("f", favs),
		plain.KV("i", items),
	}
}

// IssueSpec is either a currency amount or a fungible item count, never both.
// Build one with FavIssue or ItemIssue.
type IssueSpec struct {
	fav    *asset.FungibleAssetValue
	itemID FungibleItemID
	count  int64
}

// FavIssue issues a currency amount from the garage.
func FavIssue(fav asset.FungibleAssetValue) IssueSpec {
	return IssueSpec{fav: &fav}
}

// ItemIssue issues count units of a fungible item from the garage.
func ItemIssue(id FungibleItemID, count int64) (IssueSpec, error) {
	if count <= 0 {
		return IssueSpec{}, fmt.Errorf("%w: %s has count %d", ErrInvalidCount, id, count)
	}
	return IssueSpec{itemID: id, count: count}, nil
}

func (s IssueSpec) tree() plain.List {
	if s.fav != nil {
		return plain.List{s.fav.Tree(), plain.Null}
	}
	return plain.List{plain.Null, plain.List{plain.Bytes(s.itemID[:]), plain.NewInt(s.count)}}
}

// IssueTokensFromGarage issues tokens out of the operator's garage.
//
//	[[fav, null] | [null, [itemId, count]]...]   or null when there are no specs
type IssueTokensFromGarage struct {
	base
	specs []IssueSpec
}

func NewIssueTokensFromGarage(specs []IssueSpec, opts ...Option) *IssueTokensFromGarage {
	return &IssueTokensFromGarage{base: newBase(opts), specs: append([]IssueSpec(nil), specs...)}
}

func (a *IssueTokensFromGarage) TypeID() string { return TypeIssueTokensFromGarage }

func (a *IssueTokensFromGarage) Values() plain.Value {
	if len(a.specs) == 0 {
		return plain.Null
	}
	list := make(plain.List, 0, len(a.specs))
	for _, s := range a.specs {
		list = append(list, s.tree())
	}
	return list
}
