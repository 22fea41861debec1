package catalog

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"iapgate/core/receipt"
)

const sampleCatalog = `
products:
  - id: "101"
    name: Golden Dust Pack
    google_sku: g_pkg_golddust
    apple_sku: a_pkg_golddust
    apple_sku_k: k_pkg_golddust
    price: "12.99"
    daily_limit: 2
    weekly_limit: 5
    fav_list:
      - ticker: CRYSTAL
        amount: "1500"
      - ticker: RUNE_GOLDENLEAF
        decimal_places: 0
        amount: "3"
        balance_addr: "0x1c2ae97380cfb4f732049e454f6d9a25d4967c6f"
    fungible_item_list:
      - fungible_item_id: f8faf92c9c0d0e8e06694361ea87bfc8b29a8ae8de93044b98470a57636ed0e0
        amount: 40
  - id: "102"
    name: Retired
    google_sku: g_retired
    active: false
    action: grant_items
    fav_list:
      - ticker: NCG
        amount: "1.5"
    open_timestamp: 2024-01-01T00:00:00Z
    close_timestamp: 2024-02-01T00:00:00Z
`

func TestParseCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, c.Products(), 2)

	p, err := c.Resolve(receipt.StoreGoogle, "g_pkg_golddust", "")
	require.NoError(t, err)
	require.Equal(t, "101", p.ID)
	require.Equal(t, ActionClaimItems, p.Action)
	require.True(t, p.Price.Equal(decimal.RequireFromString("12.99")))
	require.Equal(t, "usd", p.Currency)
	require.Equal(t, 2, p.DailyLimit)

	crystal := p.FAVs[0].Value
	require.Equal(t, "CRYSTAL", crystal.Currency().Ticker())
	require.Equal(t, uint8(18), crystal.Currency().DecimalPlaces())
	goldenLeaf := p.FAVs[1]
	require.Equal(t, uint8(0), goldenLeaf.Value.Currency().DecimalPlaces())
	require.False(t, goldenLeaf.BalanceAddr.IsZero())

	assets := p.Assets()
	require.Len(t, assets, 3)
	require.Equal(t, "f8faf92c9c0d0e8e06694361ea87bfc8b29a8ae8de93044b98470a57636ed0e0", assets[0].Currency().Ticker())
	require.Equal(t, big.NewInt(40), assets[0].MinorUnits())
}

func TestResolveByStore(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)

	p, err := c.Resolve(receipt.StoreAppleTest, "a_pkg_golddust", "com.planetariumlabs.ninechroniclesmobile")
	require.NoError(t, err)
	require.Equal(t, "101", p.ID)
	p, err = c.Resolve(receipt.StoreApple, "k_pkg_golddust", PackageNameK)
	require.NoError(t, err)
	require.Equal(t, "101", p.ID)
	_, err = c.Resolve(receipt.StoreApple, "k_pkg_golddust", "")
	require.True(t, errors.Is(err, ErrProductNotFound))

	p, err = c.Resolve(receipt.StoreTest, "101", "")
	require.NoError(t, err)
	require.Equal(t, "Golden Dust Pack", p.Name)
	_, err = c.Resolve(receipt.StoreWeb, "101", "")
	require.NoError(t, err)

	_, err = c.Resolve(receipt.StoreGoogle, "g_retired", "")
	require.True(t, errors.Is(err, ErrProductNotFound))
	retired, ok := c.Get("102")
	require.True(t, ok)
	require.Equal(t, ActionGrantItems, retired.Action)
}

func TestOnSale(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	require.NoError(t, err)
	p, _ := c.Get("102")
	require.False(t, p.OnSale(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
	require.True(t, p.OnSale(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	require.False(t, p.OnSale(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)))

	always, _ := c.Get("101")
	require.True(t, always.OnSale(time.Now()))
}

func TestParseRejectsInvalidProducts(t *testing.T) {
	cases := map[string]string{
		"sub minor amount":       `products: [{id: "1", fav_list: [{ticker: NCG, amount: "0.001"}]}]`,
		"bad item id":            `products: [{id: "1", fungible_item_list: [{fungible_item_id: abcd, amount: 1}]}]`,
		"empty":                  `products: [{id: "1"}]`,
		"unknown action":         `products: [{id: "1", action: mint, fav_list: [{ticker: NCG, amount: "1"}]}]`,
		"duplicate":              `products: [{id: "1", fav_list: [{ticker: NCG, amount: "1"}]}, {id: "1", fav_list: [{ticker: NCG, amount: "1"}]}]`,
		"shared sku":             `products: [{id: "1", google_sku: g, fav_list: [{ticker: NCG, amount: "1"}]}, {id: "2", google_sku: g, fav_list: [{ticker: NCG, amount: "1"}]}]`,
		"unload without balance": `products: [{id: "1", action: unload_from_my_garages, fav_list: [{ticker: CRYSTAL, amount: "10"}]}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Get("101")
	require.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
