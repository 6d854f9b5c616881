// Package catalog holds the storefront's static product catalog and coupon set.
// Both are immutable after construction and safe for concurrent use.
package catalog

import (
	"sort"
	"strings"

	"order-bridge/internal/model"
)

// Product is a sellable kit with the package data the carrier needs.
type Product struct {
	SKU      string       `json:"sku"`
	ERPCode  string       `json:"erp_code"`
	Name     string       `json:"name"`
	Price    model.Amount `json:"price"`
	WeightKg float64      `json:"weight_kg"`
	LengthCm float64      `json:"length_cm"`
	HeightCm float64      `json:"height_cm"`
	WidthCm  float64      `json:"width_cm"`
}

// Coupon is a fixed-amount discount code.
// The set is pre-generated; there is no expiry or usage tracking.
type Coupon struct {
	Code     string       `json:"code"`
	Discount model.Amount `json:"discount"`
}

// Catalog indexes products by storefront SKU.
type Catalog struct {
	products map[string]Product
}

// New builds a catalog. Products without an ERP code use their SKU.
func New(products []Product) *Catalog {
	c := &Catalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		if p.ERPCode == "" {
			p.ERPCode = p.SKU
		}
		c.products[p.SKU] = p
	}
	return c
}

// Product looks up a product by SKU.
func (c *Catalog) Product(sku string) (Product, bool) {
	p, ok := c.products[strings.TrimSpace(sku)]
	return p, ok
}

// Products returns all products ordered by SKU.
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Coupons indexes coupons by normalized code.
type Coupons struct {
	byCode map[string]Coupon
}

// NewCoupons builds a coupon set. Codes are matched case-insensitively.
func NewCoupons(coupons []Coupon) *Coupons {
	c := &Coupons{byCode: make(map[string]Coupon, len(coupons))}
	for _, cp := range coupons {
		c.byCode[normalizeCode(cp.Code)] = cp
	}
	return c
}

// Lookup finds a coupon by code.
func (c *Coupons) Lookup(code string) (Coupon, bool) {
	cp, ok := c.byCode[normalizeCode(code)]
	return cp, ok
}

// Discount is the result of applying a coupon to a product.
type Discount struct {
	Original   model.Amount
	Discounted model.Amount
	Applied    model.Amount
}

// ApplyCoupon computes the coupon discount for a product.
// The discount is capped at the product price so the result is never negative.
func ApplyCoupon(p Product, cp Coupon) Discount {
	applied := cp.Discount
	if applied.IsNegative() {
		applied = model.Amount{}
	}
	applied = applied.Min(p.Price)
	return Discount{
		Original:   p.Price,
		Discounted: p.Price.Sub(applied),
		Applied:    applied,
	}
}

// Achievable reports whether price is the product's list price or the price
// left after one of the known coupons.
func (c *Coupons) Achievable(p Product, price model.Amount) bool {
	if price.Equal(p.Price) {
		return true
	}
	for _, cp := range c.byCode {
		if ApplyCoupon(p, cp).Discounted.Equal(price) {
			return true
		}
	}
	return false
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
