package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"order-bridge/internal/model"
	"order-bridge/internal/shipping"
	"order-bridge/internal/storefront"
)

type quoteRequest struct {
	SKU string `json:"sku"`
	CEP string `json:"cep"`
}

// quoteOption is one delivery offer as the storefront renders it.
type quoteOption struct {
	Name     string       `json:"nome"`
	Price    model.Amount `json:"valor"`
	Deadline int          `json:"prazo"`
}

type couponRequest struct {
	SKU  string `json:"sku"`
	Code string `json:"codigoCupom"`
}

type couponResponse struct {
	Success bool `json:"success"`
	*storefront.CouponResult
}

type couponFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type checkoutRequest struct {
	SKU             string        `json:"sku"`
	CEP             string        `json:"cep"`
	CouponCode      string        `json:"codigoCupom,omitempty"`
	ShippingPrice   *model.Amount `json:"valorFrete,omitempty"`
	DiscountedPrice *model.Amount `json:"precoComDesconto,omitempty"`
}

type checkoutResponse struct {
	PreferenceID string `json:"preferenceId"`
	RedirectURL  string `json:"redirectUrl"`
}

// handleQuoteShipping prices delivery of a product. The Shipping-Quote
// header tells live carrier prices from the fallback.
// POST /api/consultar-frete
func (h *Handler) handleQuoteShipping(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	quote, err := h.svc.QuoteShipping(r.Context(), req.SKU, req.CEP)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if v, err := quote.Result.Header(); err == nil {
		w.Header().Set(shipping.HeaderName, v)
	} else {
		h.logger.Warn("encoding quote header", slog.String("error", err.Error()))
	}

	options := make([]quoteOption, len(quote.Result.Options))
	for i, o := range quote.Result.Options {
		options[i] = quoteOption{Name: o.Carrier, Price: o.Price, Deadline: o.EtaDays}
	}
	h.writeJSON(w, http.StatusOK, options)
}

// handleValidateCoupon applies a coupon to a product price. Unknown products
// and coupons answer 404 with {success:false} so the storefront can show the
// message as is.
// POST /api/validar-cupom
func (h *Handler) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.ValidateCoupon(r.Context(), req.SKU, req.Code)
	if errors.Is(err, model.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, couponFailure{Success: false, Message: h.apiError(r.Context(), err).Message})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, couponResponse{Success: true, CouponResult: res})
}

// handleCreateCheckout creates a payment preference and returns where to
// send the buyer.
// POST /api/criar-checkout
func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.CreateCheckout(r.Context(), storefront.CheckoutRequest{
		SKU:             req.SKU,
		CEP:             req.CEP,
		CouponCode:      req.CouponCode,
		ShippingPrice:   req.ShippingPrice,
		DiscountedPrice: req.DiscountedPrice,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, checkoutResponse{
		PreferenceID: res.PreferenceID,
		RedirectURL:  res.RedirectURL,
	})
}
