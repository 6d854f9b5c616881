// MCP transport handler using the official MCP Go SDK.
// Exposes the storefront operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"order-bridge/internal/model"
	"order-bridge/internal/shipping"
	"order-bridge/internal/storefront"
)

// === MCP Tool Input/Output Types ===
// Money crosses the MCP boundary as plain numbers.

// ListProductsInput is the input schema for list_products tool.
type ListProductsInput struct{}

// ProductsOutput lists the catalog.
type ProductsOutput struct {
	Products []ProductOutput `json:"products"`
}

// ProductOutput is one catalog entry.
type ProductOutput struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// QuoteShippingInput is the input schema for quote_shipping tool.
type QuoteShippingInput struct {
	SKU string `json:"sku" jsonschema:"product SKU, e.g. +TQ1"`
	CEP string `json:"cep" jsonschema:"destination postal code (8 digits)"`
}

// QuoteOutput is a shipping quote.
type QuoteOutput struct {
	Source  string              `json:"source" jsonschema:"live for carrier prices, fallback for the fixed default"`
	Options []QuoteOptionOutput `json:"options"`
}

// QuoteOptionOutput is one delivery offer.
type QuoteOptionOutput struct {
	Carrier string  `json:"carrier"`
	Price   float64 `json:"price"`
	EtaDays int     `json:"eta_days"`
}

// ValidateCouponInput is the input schema for validate_coupon tool.
type ValidateCouponInput struct {
	SKU  string `json:"sku" jsonschema:"product SKU"`
	Code string `json:"code" jsonschema:"coupon code, case-insensitive"`
}

// CouponOutput is an applied coupon.
type CouponOutput struct {
	Code            string  `json:"code"`
	OriginalPrice   float64 `json:"original_price"`
	DiscountedPrice float64 `json:"discounted_price"`
	Discount        float64 `json:"discount"`
}

// CreateCheckoutInput is the input schema for create_checkout tool.
type CreateCheckoutInput struct {
	SKU             string   `json:"sku" jsonschema:"product SKU"`
	CEP             string   `json:"cep" jsonschema:"destination postal code"`
	CouponCode      string   `json:"coupon_code,omitempty" jsonschema:"coupon to apply"`
	ShippingPrice   *float64 `json:"shipping_price,omitempty" jsonschema:"shipping price shown to the buyer; the server re-quotes"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty" jsonschema:"product price after coupon shown to the buyer"`
}

// CheckoutOutput is a created payment preference.
type CheckoutOutput struct {
	PreferenceID      string  `json:"preference_id"`
	RedirectURL       string  `json:"redirect_url"`
	ExternalReference string  `json:"external_reference"`
	ProductPrice      float64 `json:"product_price"`
	ShippingPrice     float64 `json:"shipping_price"`
	ShippingSource    string  `json:"shipping_source"`
	Total             float64 `json:"total"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	version := h.opts.Version
	if version == "" {
		version = "v0.0.0-dev"
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "order-bridge",
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Storefront operations: list products, quote shipping, " +
				"validate coupons and create Mercado Pago checkouts. Prices are in BRL.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List the products that can be sold, with their prices.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "quote_shipping",
		Description: "Quote delivery of one product to a Brazilian postal code. Always answers; source tells live prices from the fallback.",
	}, h.mcpQuoteShipping)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_coupon",
		Description: "Apply a coupon code to a product price.",
	}, h.mcpValidateCoupon)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_checkout",
		Description: "Create a Mercado Pago checkout for one product plus shipping and return the payment URL.",
	}, h.mcpCreateCheckout)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, ProductsOutput, error) {
	products := h.svc.Products(ctx)
	out := ProductsOutput{Products: make([]ProductOutput, len(products))}
	for i, p := range products {
		out.Products[i] = ProductOutput{SKU: p.SKU, Name: p.Name, Price: p.Price.Float64()}
	}
	return nil, out, nil
}

func (h *Handler) mcpQuoteShipping(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input QuoteShippingInput,
) (*mcp.CallToolResult, QuoteOutput, error) {
	quote, err := h.svc.QuoteShipping(ctx, input.SKU, input.CEP)
	if err != nil {
		return nil, QuoteOutput{}, h.mcpError(ctx, err)
	}
	return nil, quoteOutput(quote.Result), nil
}

func (h *Handler) mcpValidateCoupon(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ValidateCouponInput,
) (*mcp.CallToolResult, CouponOutput, error) {
	res, err := h.svc.ValidateCoupon(ctx, input.SKU, input.Code)
	if err != nil {
		return nil, CouponOutput{}, h.mcpError(ctx, err)
	}
	return nil, CouponOutput{
		Code:            res.Code,
		OriginalPrice:   res.OriginalPrice.Float64(),
		DiscountedPrice: res.DiscountedPrice.Float64(),
		Discount:        res.Discount.Float64(),
	}, nil
}

func (h *Handler) mcpCreateCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input CreateCheckoutInput,
) (*mcp.CallToolResult, CheckoutOutput, error) {
	res, err := h.svc.CreateCheckout(ctx, storefront.CheckoutRequest{
		SKU:             input.SKU,
		CEP:             input.CEP,
		CouponCode:      input.CouponCode,
		ShippingPrice:   optionalAmount(input.ShippingPrice),
		DiscountedPrice: optionalAmount(input.DiscountedPrice),
	})
	if err != nil {
		return nil, CheckoutOutput{}, h.mcpError(ctx, err)
	}
	return nil, CheckoutOutput{
		PreferenceID:      res.PreferenceID,
		RedirectURL:       res.RedirectURL,
		ExternalReference: res.ExternalReference,
		ProductPrice:      res.ProductPrice.Float64(),
		ShippingPrice:     res.Shipping.Price.Float64(),
		ShippingSource:    string(res.ShippingSource),
		Total:             res.Total().Float64(),
	}, nil
}

func quoteOutput(r shipping.Result) QuoteOutput {
	out := QuoteOutput{Source: string(r.Kind), Options: make([]QuoteOptionOutput, len(r.Options))}
	for i, o := range r.Options {
		out.Options[i] = QuoteOptionOutput{Carrier: o.Carrier, Price: o.Price.Float64(), EtaDays: o.EtaDays}
	}
	return out
}

func optionalAmount(v *float64) *model.Amount {
	if v == nil {
		return nil
	}
	a := model.NewAmount(*v)
	return &a
}

// mcpError converts service errors to MCP-friendly errors.
func (h *Handler) mcpError(ctx context.Context, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	apiErr = h.apiError(ctx, err)
	return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
}
