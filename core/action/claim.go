package action

import (
	"fmt"

	"iapgate/core/asset"
	"iapgate/core/plain"
	"iapgate/crypto"
)

// ClaimData is one recipient avatar and the values it receives.
type ClaimData struct {
	Avatar crypto.Address
	Assets []asset.FungibleAssetValue
}

func copyClaims(claims []ClaimData) ([]ClaimData, error) {
	if len(claims) == 0 {
		return nil, fmt.Errorf("%w: claim data", ErrEmptyAction)
	}
	out := make([]ClaimData, len(claims))
	for i, c := range claims {
		out[i] = ClaimData{
			Avatar: c.Avatar,
			Assets: append([]asset.FungibleAssetValue(nil), c.Assets...),
		}
	}
	return out, nil
}

func claimTree(claims []ClaimData) plain.List {
	list := make(plain.List, 0, len(claims))
	for _, c := range claims {
		favs := make(plain.List, 0, len(c.Assets))
		for _, fav := range c.Assets {
			favs = append(favs, fav.Tree())
		}
		list = append(list, plain.List{plain.Bytes(c.Avatar.Bytes()), favs})
	}
	return list
}

// ClaimItems delivers assets from the operator's garage to avatars.
//
//	{id: raw16, cd: [[avatar, [fav...]]...], m: memo | null}
type ClaimItems struct {
	base
	claims []ClaimData
	memo   string
}

func NewClaimItems(claims []ClaimData, memo string, opts ...Option) (*ClaimItems, error) {
	copied, err := copyClaims(claims)
	if err != nil {
		return nil, err
	}
	return &ClaimItems{base: newBase(opts), claims: copied, memo: memo}, nil
}

func (a *ClaimItems) TypeID() string { return TypeClaimItems }

func (a *ClaimItems) Memo() string { return a.memo }

func (a *ClaimItems) Values() plain.Value {
	id := a.ID()
	return plain.Dict{
		plain.KV("id", plain.Bytes(id[:])),
		plain.KV("cd", claimTree(a.claims)),
		plain.KV("m", optionalText(a.memo)),
	}
}

// GrantItems mints assets directly to avatars. Unlike ClaimItems its
// payload carries no id, and the memo key is left out when there is no memo.
//
//	{cd: [[avatar, [fav...]]...], m?: memo}
type GrantItems struct {
	base
	claims []ClaimData
	memo   string
}

func NewGrantItems(claims []ClaimData, memo string, opts ...Option) (*GrantItems, error) {
	copied, err := copyClaims(claims)
	if err != nil {
		return nil, err
	}
	return &GrantItems{base: newBase(opts), claims: copied, memo: memo}, nil
}

func (a *GrantItems) TypeID() string { return TypeGrantItems }

func (a *GrantItems) Memo() string { return a.memo }

func (a *GrantItems) Values() plain.Value {
	d := plain.Dict{plain.KV("cd", claimTree(a.claims))}
	if a.memo != "" {
		d = append(d, plain.KV("m", plain.Text(a.memo)))
	}
	return d
}
