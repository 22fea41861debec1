package action

import (
	"fmt"

	"iapgate/core/asset"
	"iapgate/core/plain"
	"iapgate/crypto"
)

// Recipient is one leg of a TransferAssets action.
type Recipient struct {
	Address crypto.Address
	Value   asset.FungibleAssetValue
}

// TransferAssets sends amounts from sender to several recipients.
//
//	{sender: raw20, recipients: [[addr, fav]...], memo?: text}
type TransferAssets struct {
	base
	sender     crypto.Address
	recipients []Recipient
	memo       string
}

func NewTransferAssets(sender crypto.Address, recipients []Recipient, memo string, opts ...Option) (*TransferAssets, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: transfer_assets3 recipients", ErrEmptyAction)
	}
	return &TransferAssets{
		base:       newBase(opts),
		sender:     sender,
		recipients: append([]Recipient(nil), recipients...),
		memo:       memo,
	}, nil
}

func (a *TransferAssets) TypeID() string { return TypeTransferAssets }

func (a *TransferAssets) Values() plain.Value {
	recipients := make(plain.List, 0, len(a.recipients))
	for _, r := range a.recipients {
		recipients = append(recipients, plain.List{plain.Bytes(r.Address.Bytes()), r.Value.Tree()})
	}
	d := plain.Dict{
		plain.KV("sender", plain.Bytes(a.sender.Bytes())),
		plain.KV("recipients", recipients),
	}
	if a.memo != "" {
		d = append(d, plain.KV("memo", plain.Text(a.memo)))
	}
	return d
}
