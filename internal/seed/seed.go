// Package seed reads the JSON seed files shared by cmd/seed-db and the
// in-memory storage driver.
package seed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-promotions/internal/domain/customer"
	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/domain/product"
)

// File names inside a seed directory. Missing files are treated as empty.
const (
	ProductsFile  = "products.json"
	RulesFile     = "rules.json"
	CustomersFile = "customers.json"
)

// DefaultStoreID is assigned to seed records without a store.
const DefaultStoreID = "default"

// Data is the content of a seed directory.
type Data struct {
	Products  []product.Product
	Rules     []discount.Rule
	Customers []customer.Profile
}

type productJSON struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"storeId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	CategoryIDs []string        `json:"categoryIds"`
	Image       struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
}

type budgetJSON struct {
	Type  string          `json:"type"`
	Limit decimal.Decimal `json:"limit"`
}

type ruleJSON struct {
	ID          string `json:"id"`
	StoreID     string `json:"storeId"`
	Code        string `json:"code"`
	Description string `json:"description"`

	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	BuyQuantity int             `json:"buyQuantity"`
	GetQuantity int             `json:"getQuantity"`

	AppliesTo   string   `json:"appliesTo"`
	ProductIDs  []string `json:"productIds"`
	CategoryIDs []string `json:"categoryIds"`

	MinimumOrderAmount    decimal.NullDecimal `json:"minimumOrderAmount"`
	MaximumOrderAmount    decimal.NullDecimal `json:"maximumOrderAmount"`
	MaximumDiscountAmount decimal.NullDecimal `json:"maximumDiscountAmount"`
	MinimumQuantity       int                 `json:"minimumQuantity"`

	UsageLimit            int `json:"usageLimit"`
	UsageLimitPerCustomer int `json:"usageLimitPerCustomer"`

	StartsAt *time.Time `json:"startsAt"`
	EndsAt   *time.Time `json:"endsAt"`

	IsActive       *bool `json:"isActive"`
	IsPublic       bool  `json:"isPublic"`
	FirstOrderOnly bool  `json:"firstOrderOnly"`

	CustomerIDs      []string `json:"customerIds"`
	CustomerGroupIDs []string `json:"customerGroupIds"`
	RegionIDs        []string `json:"regionIds"`

	IsAutomatic  bool  `json:"isAutomatic"`
	Priority     int   `json:"priority"`
	IsCombinable *bool `json:"isCombinable"`

	CampaignName string      `json:"campaignName"`
	Budget       *budgetJSON `json:"budget"`
}

type customerJSON struct {
	ID       string   `json:"id"`
	StoreID  string   `json:"storeId"`
	GroupIDs []string `json:"groupIds"`
	RegionID string   `json:"regionId"`
}

// Load reads every seed file in dir and validates the rules.
func Load(dir string) (*Data, error) {
	var (
		products  []productJSON
		rules     []ruleJSON
		customers []customerJSON
	)
	if err := readFile(filepath.Join(dir, ProductsFile), &products); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, RulesFile), &rules); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, CustomersFile), &customers); err != nil {
		return nil, err
	}

	data := &Data{
		Products:  make([]product.Product, 0, len(products)),
		Rules:     make([]discount.Rule, 0, len(rules)),
		Customers: make([]customer.Profile, 0, len(customers)),
	}
	for _, p := range products {
		data.Products = append(data.Products, p.product())
	}
	for _, r := range rules {
		rule, err := r.rule()
		if err != nil {
			return nil, err
		}
		data.Rules = append(data.Rules, rule)
	}
	for _, c := range customers {
		data.Customers = append(data.Customers, customer.Profile{
			ID:       c.ID,
			StoreID:  orDefault(c.StoreID),
			GroupIDs: c.GroupIDs,
			RegionID: c.RegionID,
		})
	}
	return data, nil
}

func readFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}
	return nil
}

func (p productJSON) product() product.Product {
	categories := p.CategoryIDs
	if p.Category != "" && !contains(categories, p.Category) {
		categories = append([]string{p.Category}, categories...)
	}
	return product.Product{
		ID:          p.ID,
		StoreID:     orDefault(p.StoreID),
		Name:        p.Name,
		Price:       p.Price,
		Category:    p.Category,
		CategoryIDs: categories,
		Image: product.Image{
			Thumbnail: p.Image.Thumbnail,
			Mobile:    p.Image.Mobile,
			Tablet:    p.Image.Tablet,
			Desktop:   p.Image.Desktop,
		},
	}
}

func (r ruleJSON) rule() (discount.Rule, error) {
	var effect discount.Effect
	switch discount.Type(r.Type) {
	case discount.TypePercentage:
		effect = discount.Percentage{Value: r.Value}
	case discount.TypeFixedAmount:
		effect = discount.FixedAmount{Value: r.Value}
	case discount.TypeFreeShipping:
		effect = discount.FreeShipping{}
	case discount.TypeBuyXGetY:
		pct := r.Value
		if pct.IsZero() {
			pct = decimal.NewFromInt(100)
		}
		effect = discount.BuyXGetY{
			BuyQuantity:        r.BuyQuantity,
			GetQuantity:        r.GetQuantity,
			DiscountPercentage: pct,
		}
	default:
		return discount.Rule{}, errors.Errorf("rule %s: unknown type %q", r.ID, r.Type)
	}

	appliesTo := discount.AppliesTo(r.AppliesTo)
	if appliesTo == "" {
		appliesTo = discount.AppliesToAll
	}
	rule := discount.Rule{
		ID:          r.ID,
		StoreID:     orDefault(r.StoreID),
		Code:        r.Code,
		Description: r.Description,
		Effect:      effect,
		Target: discount.Target{
			AppliesTo:   appliesTo,
			ProductIDs:  r.ProductIDs,
			CategoryIDs: r.CategoryIDs,
		},
		MinimumOrderAmount:    r.MinimumOrderAmount,
		MaximumOrderAmount:    r.MaximumOrderAmount,
		MaximumDiscountAmount: r.MaximumDiscountAmount,
		MinimumQuantity:       r.MinimumQuantity,
		UsageLimit:            r.UsageLimit,
		UsageLimitPerCustomer: r.UsageLimitPerCustomer,
		StartsAt:              r.StartsAt,
		EndsAt:                r.EndsAt,
		IsActive:              r.IsActive == nil || *r.IsActive,
		IsPublic:              r.IsPublic,
		FirstOrderOnly:        r.FirstOrderOnly,
		CustomerIDs:           r.CustomerIDs,
		CustomerGroupIDs:      r.CustomerGroupIDs,
		RegionIDs:             r.RegionIDs,
		IsAutomatic:           r.IsAutomatic,
		Priority:              r.Priority,
		IsCombinable:          r.IsCombinable == nil || *r.IsCombinable,
		CampaignName:          r.CampaignName,
	}
	if r.Budget != nil {
		rule.Budget = &discount.Budget{
			Type:  discount.BudgetType(r.Budget.Type),
			Limit: r.Budget.Limit,
			Used:  decimal.Zero,
		}
	}
	if err := rule.Validate(); err != nil {
		return discount.Rule{}, err
	}
	return rule, nil
}

func orDefault(storeID string) string {
	if storeID == "" {
		return DefaultStoreID
	}
	return storeID
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
