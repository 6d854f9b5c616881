package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"order-bridge/internal/bling"
	"order-bridge/internal/catalog"
	"order-bridge/internal/mercadopago"
	"order-bridge/internal/model"
	"order-bridge/internal/shipping"
)

// DefaultOriginCEP is the warehouse postal code.
const DefaultOriginCEP = "51021-150"

// PreferenceCreator creates payment preferences. mercadopago.Client implements it.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, items []mercadopago.LineItem, externalRef string) (*mercadopago.Preference, error)
}

// OrderSubmitter creates ERP orders. bling.Client implements it.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, o bling.Order) (*bling.OrderResult, error)
}

// Deps are the Shop's collaborators. Payments and Orders may be nil when the
// integration is not configured; the operations needing them then fail with
// a NOT_CONFIGURED error.
type Deps struct {
	Catalog   *catalog.Catalog
	Coupons   *catalog.Coupons
	Quoter    *shipping.Quoter
	Payments  PreferenceCreator
	Orders    OrderSubmitter
	OriginCEP string

	// OrderDefaults fill the customer and product of direct orders that
	// leave them out.
	OrderDefaults bling.Defaults
}

// Shop implements Service.
type Shop struct {
	deps   Deps
	logger *slog.Logger
	newRef func() string
}

// New creates a Shop.
func New(deps Deps, logger *slog.Logger) *Shop {
	if deps.OriginCEP == "" {
		deps.OriginCEP = DefaultOriginCEP
	}
	return &Shop{deps: deps, logger: logger, newRef: uuid.NewString}
}

// Products implements Service.
func (s *Shop) Products(_ context.Context) []catalog.Product {
	return s.deps.Catalog.Products()
}

// QuoteShipping implements Service.
func (s *Shop) QuoteShipping(ctx context.Context, sku, cep string) (*Quote, error) {
	product, err := s.product(sku)
	if err != nil {
		return nil, err
	}
	dest, err := destination(cep)
	if err != nil {
		return nil, err
	}

	return &Quote{SKU: product.SKU, Result: s.quote(ctx, product, dest)}, nil
}

// ValidateCoupon implements Service.
func (s *Shop) ValidateCoupon(_ context.Context, sku, code string) (*CouponResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, model.NewValidationError("codigoCupom", "required")
	}
	product, err := s.product(sku)
	if err != nil {
		return nil, err
	}
	coupon, ok := s.deps.Coupons.Lookup(code)
	if !ok {
		return nil, model.NewNotFoundError("coupon")
	}

	d := catalog.ApplyCoupon(product, coupon)
	return &CouponResult{
		SKU:             product.SKU,
		Code:            coupon.Code,
		OriginalPrice:   d.Original,
		DiscountedPrice: d.Discounted,
		Discount:        d.Applied,
	}, nil
}

// CreateCheckout implements Service. Shipping is re-quoted here; the price
// the client sent is only compared and logged.
func (s *Shop) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	product, err := s.product(req.SKU)
	if err != nil {
		return nil, err
	}
	dest, err := destination(req.CEP)
	if err != nil {
		return nil, err
	}
	price, err := s.price(product, req)
	if err != nil {
		return nil, err
	}
	if s.deps.Payments == nil {
		return nil, model.NewNotConfiguredError("Mercado Pago")
	}

	quote := s.quote(ctx, product, dest)
	freight := quote.Best()
	if req.ShippingPrice != nil && !req.ShippingPrice.Equal(freight.Price) {
		s.logger.Warn("client shipping price differs from quote, using quote",
			slog.String("sku", product.SKU),
			slog.String("client_price", req.ShippingPrice.String()),
			slog.String("quoted_price", freight.Price.String()),
			slog.String("source", string(quote.Kind)),
		)
	}

	ref := s.newRef()
	items := []mercadopago.LineItem{
		{ID: product.ERPCode, Title: product.Name, Quantity: 1, UnitPrice: price},
		{ID: mercadopago.ShippingItemID, Title: "Frete", Quantity: 1, UnitPrice: freight.Price},
	}

	pref, err := s.deps.Payments.CreatePreference(ctx, items, ref)
	if err != nil {
		return nil, err
	}

	s.logger.Info("checkout created",
		slog.String("sku", product.SKU),
		slog.String("preference_id", pref.ID),
		slog.String("external_reference", ref),
		slog.String("price", price.String()),
		slog.String("shipping", freight.Price.String()),
	)

	return &CheckoutResult{
		PreferenceID:      pref.ID,
		RedirectURL:       pref.RedirectURL,
		ExternalReference: ref,
		ProductPrice:      price,
		Shipping:          freight,
		ShippingSource:    quote.Kind,
	}, nil
}

// CreateOrder implements Service.
func (s *Shop) CreateOrder(ctx context.Context, o bling.Order) (*bling.OrderResult, error) {
	if s.deps.Orders == nil {
		return nil, model.NewNotConfiguredError("Bling")
	}
	if o.CustomerID == 0 {
		o.CustomerID = s.deps.OrderDefaults.CustomerID
	}
	if o.ProductCode == "" {
		o.ProductCode = s.deps.OrderDefaults.ProductCode
	}
	return s.deps.Orders.SubmitOrder(ctx, o)
}

func (s *Shop) product(sku string) (catalog.Product, error) {
	if strings.TrimSpace(sku) == "" {
		return catalog.Product{}, model.NewValidationError("sku", "required")
	}
	p, ok := s.deps.Catalog.Product(sku)
	if !ok {
		return catalog.Product{}, model.NewNotFoundError("product")
	}
	return p, nil
}

func (s *Shop) quote(ctx context.Context, p catalog.Product, dest string) shipping.Result {
	return s.deps.Quoter.Quote(ctx, shipping.Request{
		OriginZip: s.deps.OriginCEP,
		DestZip:   dest,
		WeightKg:  p.WeightKg,
		Dimensions: shipping.Dimensions{
			LengthCm: p.LengthCm,
			HeightCm: p.HeightCm,
			WidthCm:  p.WidthCm,
		},
		DeclaredValue: p.Price,
	})
}

// price decides the product line price. A client-supplied discounted price
// is accepted only when a known coupon produces it.
func (s *Shop) price(p catalog.Product, req CheckoutRequest) (model.Amount, error) {
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		coupon, ok := s.deps.Coupons.Lookup(code)
		if !ok {
			return model.Amount{}, model.NewNotFoundError("coupon")
		}
		price := catalog.ApplyCoupon(p, coupon).Discounted
		if req.DiscountedPrice != nil && !req.DiscountedPrice.Equal(price) {
			return model.Amount{}, model.NewValidationError("precoComDesconto",
				fmt.Sprintf("does not match coupon %s (expected %s)", coupon.Code, price))
		}
		return positive(price)
	}

	if req.DiscountedPrice == nil {
		return p.Price, nil
	}
	if !s.deps.Coupons.Achievable(p, *req.DiscountedPrice) {
		return model.Amount{}, model.NewValidationError("precoComDesconto", "not a valid price for this product")
	}
	return positive(*req.DiscountedPrice)
}

func positive(a model.Amount) (model.Amount, error) {
	if !a.IsPositive() {
		return model.Amount{}, model.NewValidationError("precoComDesconto", "must be greater than zero")
	}
	return a, nil
}

func destination(cep string) (string, error) {
	if strings.TrimSpace(cep) == "" {
		return "", model.NewValidationError("cep", "required")
	}
	dest, ok := shipping.NormalizeCEP(cep)
	if !ok {
		return "", model.NewValidationError("cep", "must have 8 digits")
	}
	return dest, nil
}

var _ Service = (*Shop)(nil)
