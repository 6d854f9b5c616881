// Package handler provides the HTTP and MCP handlers of the bridge server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"order-bridge/internal/model"
	"order-bridge/internal/storefront"
	"order-bridge/internal/token"
	"order-bridge/internal/webhook"
)

// WebhookProcessor runs a payment notification. webhook.Receiver implements it.
type WebhookProcessor interface {
	Handle(ctx context.Context, n webhook.Notification) (webhook.Result, error)
}

// TokenAdmin manages the ERP tokens. token.Manager implements it.
type TokenAdmin interface {
	Seed(ctx context.Context, tok token.Token) error
	Refresh(ctx context.Context) (*token.Token, error)
}

// Options carries the optional collaborators. A nil Webhook or Tokens makes
// the routes that need it answer 503 NOT_CONFIGURED.
type Options struct {
	Webhook     WebhookProcessor
	Tokens      TokenAdmin
	AdminSecret string

	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler

	Version      string
	Integrations map[string]bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc    storefront.Service
	opts   Options
	logger *slog.Logger
}

// New creates a new Handler for the storefront service.
func New(svc storefront.Service, opts Options, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Storefront
	mux.HandleFunc("POST /api/consultar-frete", h.handleQuoteShipping)
	mux.HandleFunc("POST /api/validar-cupom", h.handleValidateCoupon)
	mux.HandleFunc("POST /api/criar-checkout", h.handleCreateCheckout)

	// Payment provider callback
	mux.HandleFunc("POST /mercadopago/webhook", h.handleWebhook)

	// Operator routes, authenticated by x-admin-secret
	mux.HandleFunc("POST /admin/push-bling-tokens", h.requireAdmin(h.handlePushTokens))
	mux.HandleFunc("POST /admin/refresh-bling-token", h.requireAdmin(h.handleRefreshToken))
	mux.HandleFunc("POST /api/pedidos", h.requireAdmin(h.handleCreateOrder))

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	if h.opts.Metrics != nil {
		mux.Handle("GET /metrics", h.opts.Metrics)
	}
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := h.apiError(r.Context(), err)
	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// apiError finds the APIError in err's chain, logging server-side failures
// with their full detail since clients only see the code and message.
func (h *Handler) apiError(ctx context.Context, err error) *model.APIError {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
	}
	if apiErr.StatusCode >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
	return apiErr
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
