// Package catalog loads the product definitions that decide what a validated
// receipt is settled into.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"iapgate/core/action"
	"iapgate/core/asset"
	"iapgate/core/receipt"
	"iapgate/crypto"
)

// ErrProductNotFound indicates that no active product matches a store SKU.
var ErrProductNotFound = errors.New("catalog: product not found")

// PackageNameK is the client package whose App Store SKUs live in apple_sku_k.
const PackageNameK = "com.planetariumlabs.ninechroniclesmobilek"

// ActionKind selects the settlement action built for a product.
type ActionKind string

const (
	ActionClaimItems            ActionKind = action.TypeClaimItems
	ActionGrantItems            ActionKind = action.TypeGrantItems
	ActionUnloadFromMyGarages   ActionKind = action.TypeUnloadFromMyGarages
	ActionIssueTokensFromGarage ActionKind = action.TypeIssueTokensFromGarage
)

// FAV is a currency amount granted by a product.
type FAV struct {
	Value asset.FungibleAssetValue
	// BalanceAddr is the garage balance the amount is unloaded from.
	BalanceAddr crypto.Address
}

// Item is a fungible item count granted by a product.
type Item struct {
	ID     action.FungibleItemID
	Amount int64
}

// Product is a purchasable bundle.
type Product struct {
	ID        string
	Name      string
	GoogleSKU string
	AppleSKU  string
	AppleSKUK string
	// Price is the expected charge in major units for card payments.
	Price        decimal.Decimal
	Currency     string
	Action       ActionKind
	Active       bool
	FAVs         []FAV
	Items        []Item
	DailyLimit   int
	WeeklyLimit  int
	AccountLimit int
	OpenAt       *time.Time
	CloseAt      *time.Time
}

// OnSale reports whether now falls inside the product's sale window.
func (p Product) OnSale(now time.Time) bool {
	if p.OpenAt != nil && now.Before(*p.OpenAt) {
		return false
	}
	if p.CloseAt != nil && now.After(*p.CloseAt) {
		return false
	}
	return true
}

// Assets flattens the product into currency values. Fungible items become
// 0-decimal currencies whose ticker is the item id in hex.
func (p Product) Assets() []asset.FungibleAssetValue {
	out := make([]asset.FungibleAssetValue, 0, len(p.Items)+len(p.FAVs))
	for _, it := range p.Items {
		fav, _ := asset.NewFungibleAssetValue(asset.NewCurrency(it.ID.String(), 0, nil, false), decimal.NewFromInt(it.Amount))
		out = append(out, fav)
	}
	for _, f := range p.FAVs {
		out = append(out, f.Value)
	}
	return out
}

type favFile struct {
	Ticker        string   `yaml:"ticker"`
	DecimalPlaces *int     `yaml:"decimal_places"`
	Minters       []string `yaml:"minters"`
	Amount        string   `yaml:"amount"`
	BalanceAddr   string   `yaml:"balance_addr"`
}

type itemFile struct {
	FungibleItemID string `yaml:"fungible_item_id"`
	Amount         int64  `yaml:"amount"`
}

type productFile struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	GoogleSKU    string     `yaml:"google_sku"`
	AppleSKU     string     `yaml:"apple_sku"`
	AppleSKUK    string     `yaml:"apple_sku_k"`
	Price        string     `yaml:"price"`
	Currency     string     `yaml:"currency"`
	Action       string     `yaml:"action"`
	Active       *bool      `yaml:"active"`
	FAVs         []favFile  `yaml:"fav_list"`
	Items        []itemFile `yaml:"fungible_item_list"`
	DailyLimit   int        `yaml:"daily_limit"`
	WeeklyLimit  int        `yaml:"weekly_limit"`
	AccountLimit int        `yaml:"account_limit"`
	OpenAt       *time.Time `yaml:"open_timestamp"`
	CloseAt      *time.Time `yaml:"close_timestamp"`
}

type catalogFile struct {
	Products []productFile `yaml:"products"`
}

// Catalog indexes products by id and store SKU. It is read-only after Load.
type Catalog struct {
	products []Product
	byID     map[string]int
	byGoogle map[string]int
	byApple  map[string]int
	byAppleK map[string]int
}

// Load reads a catalog from the YAML file at path.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	products := make([]Product, 0, len(file.Products))
	for _, entry := range file.Products {
		p, err := entry.product()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return New(products)
}

// New indexes already built products.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: append([]Product(nil), products...),
		byID:     make(map[string]int),
		byGoogle: make(map[string]int),
		byApple:  make(map[string]int),
		byAppleK: make(map[string]int),
	}
	sort.SliceStable(c.products, func(i, j int) bool { return c.products[i].ID < c.products[j].ID })
	for i, p := range c.products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: product id required")
		}
		if _, exists := c.byID[p.ID]; exists {
			return nil, fmt.Errorf("catalog: duplicate product %s", p.ID)
		}
		c.byID[p.ID] = i
		skus := []struct {
			sku   string
			index map[string]int
		}{{p.GoogleSKU, c.byGoogle}, {p.AppleSKU, c.byApple}, {p.AppleSKUK, c.byAppleK}}
		for _, s := range skus {
			if s.sku == "" {
				continue
			}
			if other, exists := s.index[s.sku]; exists {
				return nil, fmt.Errorf("catalog: sku %s used by %s and %s", s.sku, c.products[other].ID, p.ID)
			}
			s.index[s.sku] = i
		}
	}
	return c, nil
}

// Products returns every product sorted by id.
func (c *Catalog) Products() []Product {
	return append([]Product(nil), c.products...)
}

// Get returns the product with the given catalog id, active or not.
func (c *Catalog) Get(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Resolve maps a store product identifier to an active product. TEST and WEB
// receipts carry the catalog id, GOOGLE its SKU, and APPLE the SKU of the
// client package.
func (c *Catalog) Resolve(store receipt.Store, productID, packageName string) (Product, error) {
	var (
		i  int
		ok bool
	)
	switch store.Family() {
	case receipt.StoreTest, receipt.StoreWeb:
		i, ok = c.byID[productID]
	case receipt.StoreGoogle:
		i, ok = c.byGoogle[productID]
	case receipt.StoreApple:
		if packageName == PackageNameK {
			i, ok = c.byAppleK[productID]
		} else {
			i, ok = c.byApple[productID]
		}
	}
	if !ok || !c.products[i].Active {
		return Product{}, fmt.Errorf("%w: %s is not valid product ID for %s store", ErrProductNotFound, productID, store)
	}
	return c.products[i], nil
}

func (f productFile) product() (Product, error) {
	id := strings.TrimSpace(f.ID)
	p := Product{
		ID:           id,
		Name:         f.Name,
		GoogleSKU:    strings.TrimSpace(f.GoogleSKU),
		AppleSKU:     strings.TrimSpace(f.AppleSKU),
		AppleSKUK:    strings.TrimSpace(f.AppleSKUK),
		Currency:     strings.ToLower(strings.TrimSpace(f.Currency)),
		Action:       ActionKind(strings.TrimSpace(f.Action)),
		Active:       f.Active == nil || *f.Active,
		DailyLimit:   f.DailyLimit,
		WeeklyLimit:  f.WeeklyLimit,
		AccountLimit: f.AccountLimit,
		OpenAt:       f.OpenAt,
		CloseAt:      f.CloseAt,
	}
	if p.Action == "" {
		p.Action = ActionClaimItems
	}
	switch p.Action {
	case ActionClaimItems, ActionGrantItems, ActionUnloadFromMyGarages, ActionIssueTokensFromGarage:
	default:
		return Product{}, fmt.Errorf("catalog: product %s: unsupported action %q", id, f.Action)
	}
	if p.Currency == "" {
		p.Currency = "usd"
	}
	if strings.TrimSpace(f.Price) != "" {
		price, err := decimal.NewFromString(strings.TrimSpace(f.Price))
		if err != nil {
			return Product{}, fmt.Errorf("catalog: product %s price: %w", id, err)
		}
		if price.IsNegative() {
			return Product{}, fmt.Errorf("catalog: product %s price must be non-negative", id)
		}
		p.Price = price
	}
	for _, fav := range f.FAVs {
		built, err := fav.build()
		if err != nil {
			return Product{}, fmt.Errorf("catalog: product %s: %w", id, err)
		}
		if p.Action == ActionUnloadFromMyGarages && built.BalanceAddr.IsZero() {
			return Product{}, fmt.Errorf("catalog: product %s: fav %s needs a balance_addr to unload from", id, fav.Ticker)
		}
		p.FAVs = append(p.FAVs, built)
	}
	for _, item := range f.Items {
		itemID, err := action.ParseFungibleItemID(strings.TrimSpace(item.FungibleItemID))
		if err != nil {
			return Product{}, fmt.Errorf("catalog: product %s: %w", id, err)
		}
		if item.Amount <= 0 {
			return Product{}, fmt.Errorf("catalog: product %s: item %s amount must be positive", id, itemID)
		}
		p.Items = append(p.Items, Item{ID: itemID, Amount: item.Amount})
	}
	if len(p.FAVs) == 0 && len(p.Items) == 0 {
		return Product{}, fmt.Errorf("catalog: product %s grants nothing", id)
	}
	if p.OpenAt != nil && p.CloseAt != nil && p.CloseAt.Before(*p.OpenAt) {
		return Product{}, fmt.Errorf("catalog: product %s closes before it opens", id)
	}
	return p, nil
}

func (f favFile) build() (FAV, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(f.Amount))
	if err != nil {
		return FAV{}, fmt.Errorf("fav %s amount: %w", f.Ticker, err)
	}
	currency := asset.CurrencyForTicker(f.Ticker)
	if f.DecimalPlaces != nil {
		if *f.DecimalPlaces < 0 || *f.DecimalPlaces > 255 {
			return FAV{}, fmt.Errorf("fav %s decimal_places out of range", f.Ticker)
		}
		minters, err := asset.ParseMinters(f.Minters)
		if err != nil {
			return FAV{}, fmt.Errorf("fav %s: %w", f.Ticker, err)
		}
		currency = asset.NewCurrency(strings.TrimSpace(f.Ticker), uint8(*f.DecimalPlaces), minters, false)
	}
	value, err := asset.NewFungibleAssetValue(currency, amount)
	if err != nil {
		return FAV{}, fmt.Errorf("fav %s: %w", f.Ticker, err)
	}
	out := FAV{Value: value}
	if strings.TrimSpace(f.BalanceAddr) != "" {
		addr, err := crypto.ParseAddress(f.BalanceAddr)
		if err != nil {
			return FAV{}, fmt.Errorf("fav %s balance_addr: %w", f.Ticker, err)
		}
		out.BalanceAddr = addr
	}
	return out, nil
}
