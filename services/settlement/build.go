package settlement

import (
	"encoding/json"
	"fmt"

	"iapgate/catalog"
	"iapgate/core/action"
	"iapgate/crypto"
)

type iapMemo struct {
	IAP struct {
		GoogleSKU string `json:"g_sku"`
		AppleSKU  string `json:"a_sku"`
	} `json:"iap"`
}

// settlementMemo tags the action with the store SKUs of the product. The
// App Store SKU follows the client package.
func settlementMemo(p catalog.Product, packageName string) string {
	var m iapMemo
	m.IAP.GoogleSKU = p.GoogleSKU
	m.IAP.AppleSKU = p.AppleSKU
	if packageName == catalog.PackageNameK {
		m.IAP.AppleSKU = p.AppleSKUK
	}
	raw, _ := json.Marshal(m)
	return string(raw)
}

// buildAction turns a product into the action that delivers it to avatar.
func buildAction(p catalog.Product, avatar crypto.Address, packageName string, id action.ID) (action.Action, error) {
	memo := settlementMemo(p, packageName)
	opt := action.WithID(id)
	switch p.Action {
	case catalog.ActionClaimItems, "":
		return action.NewClaimItems([]action.ClaimData{{Avatar: avatar, Assets: p.Assets()}}, memo, opt)
	case catalog.ActionGrantItems:
		return action.NewGrantItems([]action.ClaimData{{Avatar: avatar, Assets: p.Assets()}}, memo, opt)
	case catalog.ActionUnloadFromMyGarages:
		favs := make([]action.GarageFAV, 0, len(p.FAVs))
		for _, f := range p.FAVs {
			favs = append(favs, action.GarageFAV{BalanceAddr: f.BalanceAddr, Value: f.Value})
		}
		items := make([]action.GarageItem, 0, len(p.Items))
		for _, it := range p.Items {
			items = append(items, action.GarageItem{FungibleID: it.ID, Count: it.Amount})
		}
		return action.NewUnloadFromMyGarages(avatar, favs, items, memo, opt)
	case catalog.ActionIssueTokensFromGarage:
		specs := make([]action.IssueSpec, 0, len(p.FAVs)+len(p.Items))
		for _, f := range p.FAVs {
			specs = append(specs, action.FavIssue(f.Value))
		}
		for _, it := range p.Items {
			spec, err := action.ItemIssue(it.ID, it.Amount)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
		}
		return action.NewIssueTokensFromGarage(specs, opt), nil
	default:
		return nil, fmt.Errorf("settlement: product %s has unsupported action %q", p.ID, p.Action)
	}
}
