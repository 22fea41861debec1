package action

import (
	"fmt"

	"iapgate/core/asset"
	"iapgate/core/plain"
	"iapgate/crypto"
)

// GarageFAV moves a currency amount out of a garage balance address.
type GarageFAV struct {
	BalanceAddr crypto.Address
	Value       asset.FungibleAssetValue
}

// GarageItem moves count units of a fungible item.
type GarageItem struct {
	FungibleID FungibleItemID
	Count      int64
}

// UnloadFromMyGarages moves garage contents to an avatar.
//
//	{id: raw16, l: [avatar, [[balanceAddr, fav]...] | null, [[fungibleId, count]...] | null, memo | null]}
//
// Either list is null, never empty, when it has no entries.
type UnloadFromMyGarages struct {
	base
	avatar crypto.Address
	favs   []GarageFAV
	items  []GarageItem
	memo   string
}

func NewUnloadFromMyGarages(avatar crypto.Address, favs []GarageFAV, items []GarageItem, memo string, opts ...Option) (*UnloadFromMyGarages, error) {
	if len(favs) == 0 && len(items) == 0 {
		return nil, fmt.Errorf("%w: unload_from_my_garages", ErrEmptyAction)
	}
	for _, it := range items {
		if it.Count <= 0 {
			return nil, fmt.Errorf("%w: %s has count %d", ErrInvalidCount, it.FungibleID, it.Count)
		}
	}
	return &UnloadFromMyGarages{
		base:   newBase(opts),
		avatar: avatar,
		favs:   append([]GarageFAV(nil), favs...),
		items:  append([]GarageItem(nil), items...),
		memo:   memo,
	}, nil
}

func (a *UnloadFromMyGarages) TypeID() string { return TypeUnloadFromMyGarages }

func (a *UnloadFromMyGarages) Values() plain.Value {
	var favs plain.Value = plain.Null
	if len(a.favs) > 0 {
		list := make(plain.List, 0, len(a.favs))
		for _, f := range a.favs {
			list = append(list, plain.List{plain.Bytes(f.BalanceAddr.Bytes()), f.Value.Tree()})
		}
		favs = list
	}
	var items plain.Value = plain.Null
	if len(a.items) > 0 {
		list := make(plain.List, 0, len(a.items))
		for _, it := range a.items {
			list = append(list, plain.List{plain.Bytes(it.FungibleID[:]), plain.NewInt(it.Count)})
		}
		items = list
	}
	id := a.ID()
	return plain.Dict{
		plain.KV("id", plain.Bytes(id[:])),
		plain.KV("l", plain.List{plain.Bytes(a.avatar.Bytes()), favs, items, optionalText(a.memo)}),
	}
}
