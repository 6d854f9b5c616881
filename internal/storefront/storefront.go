// Package storefront implements the operations the shop front end calls:
// shipping quotes, coupon checks and checkout creation.
package storefront

import (
	"context"

	"order-bridge/internal/bling"
	"order-bridge/internal/catalog"
	"order-bridge/internal/model"
	"order-bridge/internal/shipping"
)

// Service is the storefront API consumed by the HTTP and MCP handlers.
type Service interface {
	// Products lists the catalog.
	Products(ctx context.Context) []catalog.Product

	// QuoteShipping prices delivery of one unit of sku to cep.
	// Never fails because of the carrier; see shipping.Quoter.
	QuoteShipping(ctx context.Context, sku, cep string) (*Quote, error)

	// ValidateCoupon applies code to the price of sku.
	ValidateCoupon(ctx context.Context, sku, code string) (*CouponResult, error)

	// CreateCheckout creates a payment preference for sku plus shipping.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)

	// CreateOrder submits an order to the ERP directly, bypassing payment.
	CreateOrder(ctx context.Context, o bling.Order) (*bling.OrderResult, error)
}

// Quote is a shipping quote for a catalog product.
type Quote struct {
	SKU    string
	Result shipping.Result
}

// CouponResult is a successfully applied coupon.
type CouponResult struct {
	SKU             string       `json:"sku"`
	Code            string       `json:"code"`
	OriginalPrice   model.Amount `json:"precoOriginal"`
	DiscountedPrice model.Amount `json:"precoComDesconto"`
	Discount        model.Amount `json:"descontoAplicado"`
}

// CheckoutRequest is what the storefront sends to start payment.
// ShippingPrice and DiscountedPrice are the values the buyer saw; both are
// checked against server-side pricing.
type CheckoutRequest struct {
	SKU             string
	CEP             string
	CouponCode      string
	ShippingPrice   *model.Amount
	DiscountedPrice *model.Amount
}

// CheckoutResult is a created payment preference.
type CheckoutResult struct {
	PreferenceID      string
	RedirectURL       string
	ExternalReference string
	ProductPrice      model.Amount
	Shipping          shipping.Option
	ShippingSource    shipping.Kind
}

// Total is the amount the buyer will pay.
func (r *CheckoutResult) Total() model.Amount {
	return r.ProductPrice.Add(r.Shipping.Price)
}
