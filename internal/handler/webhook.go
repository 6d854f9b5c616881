package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"order-bridge/internal/middleware"
	"order-bridge/internal/model"
	"order-bridge/internal/webhook"
)

// notificationBody is the Mercado Pago webhook payload. Only the fields the
// bridge routes on are decoded.
type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

type webhookResponse struct {
	Received bool            `json:"received"`
	Outcome  webhook.Outcome `json:"outcome"`
	OrderID  int64           `json:"orderId,omitempty"`
}

// handleWebhook receives payment notifications. Once the signature checks
// out it always answers 200, including when the order could not be created:
// that failure is alerted on, and a provider retry could not fix it.
// POST /mercadopago/webhook
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.opts.Webhook == nil {
		h.writeError(w, r, model.NewNotConfiguredError("Mercado Pago webhook"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, r, model.NewValidationError("body", "too large or unreadable"))
		return
	}

	var body notificationBody
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			h.writeError(w, r, model.NewValidationError("body", "invalid JSON"))
			return
		}
	}

	q := r.URL.Query()
	n := webhook.Notification{
		Topic:     firstNonEmpty(body.Type, body.Topic, q.Get("type"), q.Get("topic")),
		PaymentID: firstNonEmpty(rawID(body.Data.ID), q.Get("data.id"), q.Get("id")),
		Signature: r.Header.Get(webhook.SignatureHeader),
		RequestID: firstNonEmpty(r.Header.Get("x-request-id"), middleware.RequestIDFrom(r.Context())),
	}
	if n.PaymentID == "" {
		h.writeError(w, r, model.NewValidationError("data.id", "required"))
		return
	}

	res, err := h.opts.Webhook.Handle(r.Context(), n)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{
		Received: true,
		Outcome:  res.Outcome,
		OrderID:  res.OrderID,
	})
}

// rawID accepts the id as a JSON string or number.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
