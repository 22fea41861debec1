package action

import (
	"iapgate/core/asset"
	"iapgate/core/plain"
	"iapgate/crypto"
)

// BurnAsset destroys an amount held by owner. Its payload is a list:
//
//	[owner, fav, memo]
type BurnAsset struct {
	base
	owner  crypto.Address
	amount asset.FungibleAssetValue
	memo   string
}

func NewBurnAsset(owner crypto.Address, amount asset.FungibleAssetValue, memo string, opts ...Option) *BurnAsset {
	return &BurnAsset{base: newBase(opts), owner: owner, amount: amount, memo: memo}
}

func (a *BurnAsset) TypeID() string { return TypeBurnAsset }

func (a *BurnAsset) Values() plain.Value {
	return plain.List{
		plain.Bytes(a.owner.Bytes()),
		a.amount.Tree(),
		plain.Text(a.memo),
	}
}
