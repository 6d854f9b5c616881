package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"order-bridge/internal/bling"
	"order-bridge/internal/model"
	"order-bridge/internal/token"
)

// AdminSecretHeader authenticates operator routes.
const AdminSecretHeader = "x-admin-secret"

// requireAdmin rejects requests without the shared admin secret. With no
// secret configured every request is rejected.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(AdminSecretHeader)
		if h.opts.AdminSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.AdminSecret)) != 1 {
			h.logger.Warn("admin request rejected",
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
			)
			h.writeError(w, r, model.NewUnauthorizedError("invalid admin secret"))
			return
		}
		next(w, r)
	}
}

type pushTokensRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type tokenResponse struct {
	OK        bool      `json:"ok"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handlePushTokens installs tokens obtained outside the service, e.g. from
// the ERP's authorization flow.
// POST /admin/push-bling-tokens
func (h *Handler) handlePushTokens(w http.ResponseWriter, r *http.Request) {
	if h.opts.Tokens == nil {
		h.writeError(w, r, model.NewNotConfiguredError("Bling"))
		return
	}

	var req pushTokensRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AccessToken == "" {
		h.writeError(w, r, model.NewValidationError("accessToken", "required"))
		return
	}
	if req.ExpiresIn < 0 {
		h.writeError(w, r, model.NewValidationError("expiresIn", "must not be negative"))
		return
	}
	lifetime := token.DefaultLifetime
	if req.ExpiresIn > 0 {
		lifetime = time.Duration(req.ExpiresIn) * time.Second
	}

	tok := token.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    time.Now().Add(lifetime).UTC().Truncate(time.Second),
	}
	if err := h.opts.Tokens.Seed(r.Context(), tok); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{OK: true, ExpiresAt: tok.ExpiresAt})
}

// handleRefreshToken forces a refresh-token exchange, seeding the cache from
// the configured refresh token when nothing is stored yet.
// POST /admin/refresh-bling-token
func (h *Handler) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if h.opts.Tokens == nil {
		h.writeError(w, r, model.NewNotConfiguredError("Bling"))
		return
	}

	tok, err := h.opts.Tokens.Refresh(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, tokenResponse{OK: true, ExpiresAt: tok.ExpiresAt.UTC()})
}

type orderRequest struct {
	CustomerID    int64        `json:"idCliente"`
	ProductCode   string       `json:"codigoProduto"`
	Quantity      int          `json:"quantidade"`
	UnitPrice     model.Amount `json:"valor"`
	ShippingCost  model.Amount `json:"frete"`
	Notes         string       `json:"observacoes"`
	InternalNotes string       `json:"observacoesInternas"`
}

// handleCreateOrder creates an ERP order directly, without a payment.
// POST /api/pedidos
func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		h.writeError(w, r, model.NewValidationError("quantidade", "must be positive"))
		return
	}

	res, err := h.svc.CreateOrder(r.Context(), bling.Order{
		CustomerID:    req.CustomerID,
		ProductCode:   req.ProductCode,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		TotalValue:    req.UnitPrice.Mul(req.Quantity).Add(req.ShippingCost),
		ShippingCost:  req.ShippingCost,
		Notes:         req.Notes,
		InternalNotes: req.InternalNotes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, res)
}
