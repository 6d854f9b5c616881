package storefront

import (
	"context"

	"order-bridge/internal/bling"
	"order-bridge/internal/catalog"
	"order-bridge/internal/model"
)

// Mock implements Service for testing.
// Each method can be configured via function fields.
type Mock struct {
	ProductsFunc       func(ctx context.Context) []catalog.Product
	QuoteShippingFunc  func(ctx context.Context, sku, cep string) (*Quote, error)
	ValidateCouponFunc func(ctx context.Context, sku, code string) (*CouponResult, error)
	CreateCheckoutFunc func(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	CreateOrderFunc    func(ctx context.Context, o bling.Order) (*bling.OrderResult, error)
}

// Products calls ProductsFunc or returns the default catalog.
func (m *Mock) Products(ctx context.Context) []catalog.Product {
	if m.ProductsFunc != nil {
		return m.ProductsFunc(ctx)
	}
	return catalog.New(catalog.DefaultProducts()).Products()
}

// QuoteShipping calls QuoteShippingFunc or returns not found.
func (m *Mock) QuoteShipping(ctx context.Context, sku, cep string) (*Quote, error) {
	if m.QuoteShippingFunc != nil {
		return m.QuoteShippingFunc(ctx, sku, cep)
	}
	return nil, model.NewNotFoundError("product")
}

// ValidateCoupon calls ValidateCouponFunc or returns not found.
func (m *Mock) ValidateCoupon(ctx context.Context, sku, code string) (*CouponResult, error) {
	if m.ValidateCouponFunc != nil {
		return m.ValidateCouponFunc(ctx, sku, code)
	}
	return nil, model.NewNotFoundError("coupon")
}

// CreateCheckout calls CreateCheckoutFunc or returns an internal error.
func (m *Mock) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// CreateOrder calls CreateOrderFunc or reports Bling as not configured.
func (m *Mock) CreateOrder(ctx context.Context, o bling.Order) (*bling.OrderResult, error) {
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, o)
	}
	return nil, model.NewNotConfiguredError("Bling")
}

var _ Service = (*Mock)(nil)
