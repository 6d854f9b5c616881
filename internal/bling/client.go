// Package bling submits sales orders to the Bling ERP (API v3).
package bling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"order-bridge/internal/model"
)

const (
	// BaseURL is the production API root.
	BaseURL = "https://api.bling.com.br/Api/v3"

	// TokenURL is the OAuth2 token endpoint.
	TokenURL = "https://api.bling.com.br/Api/v3/oauth/token"

	pathOrders  = "/pedidos/vendas"
	serviceName = "Bling"
	dateLayout  = "2006-01-02"

	// expectedLeadTime is how far out the expected delivery date is set.
	expectedLeadTime = 7 * 24 * time.Hour
)

// TokenSource supplies bearer tokens. token.Manager implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context, stale string) (string, error)
}

// Client creates orders in Bling.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a Bling client. An empty baseURL uses BaseURL.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
		now:        time.Now,
	}
}

// errRejectedToken is returned by post when Bling answers 401.
type errRejectedToken struct {
	body []byte
}

func (e *errRejectedToken) Error() string { return "bearer token rejected" }

// SubmitOrder creates o in Bling. A 401 triggers one forced token refresh and
// one retry; a second 401 returns an error wrapping model.ErrAuthExpired.
// No deduplication happens here.
func (c *Client) SubmitOrder(ctx context.Context, o Order) (*OrderResult, error) {
	if err := validate(o); err != nil {
		return nil, err
	}

	body, err := json.Marshal(c.payload(o))
	if err != nil {
		return nil, fmt.Errorf("marshaling order: %w", err)
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting bearer token: %w", err)
	}

	res, err := c.post(ctx, tok, body)
	var rejected *errRejectedToken
	if errors.As(err, &rejected) {
		c.logger.Warn("Bling rejected bearer token, forcing refresh")
		tok, err = c.tokens.ForceRefresh(ctx, tok)
		if err != nil {
			return nil, fmt.Errorf("refreshing rejected token: %w", err)
		}
		res, err = c.post(ctx, tok, body)
		if errors.As(err, &rejected) {
			return nil, model.NewAuthExpiredError(serviceName, rejected.body)
		}
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("Bling order created",
		slog.Int64("order_id", res.ID),
		slog.String("store_number", o.StoreNumber),
	)
	return res, nil
}

func (c *Client) post(ctx context.Context, token string, body []byte) (*OrderResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathOrders, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading order response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &errRejectedToken{body: respBody}
	}
	if resp.StatusCode >= 300 {
		return nil, c.parseError(resp.StatusCode, respBody)
	}

	var out orderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}

	res := &OrderResult{ID: out.Data.ID, Number: out.Data.Numero}
	for _, a := range out.Data.Alertas {
		res.Warnings = append(res.Warnings, a.Message)
	}
	return res, nil
}

// parseError logs Bling's structured error and returns an upstream rejection
// carrying the raw body.
func (c *Client) parseError(statusCode int, body []byte) error {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		c.logger.Error("Bling rejected order",
			slog.Int("status", statusCode),
			slog.String("type", e.Error.Type),
			slog.String("message", e.Error.Message),
			slog.String("description", e.Error.Description),
		)
	}
	return model.NewUpstreamRejection(serviceName, statusCode, body)
}

func (c *Client) payload(o Order) orderPayload {
	date := o.Date
	if date.IsZero() {
		date = c.now()
	}
	expected := o.ExpectedDate
	if expected.IsZero() {
		expected = date.Add(expectedLeadTime)
	}
	qty := o.Quantity
	if qty <= 0 {
		qty = 1
	}

	p := orderPayload{
		Date:         date.Format(dateLayout),
		ExpectedDate: expected.Format(dateLayout),
		StoreNumber:  o.StoreNumber,
		Contact:      contact{ID: o.CustomerID},
		Items: []orderItem{{
			Code:        o.ProductCode,
			Description: o.Description,
			Quantity:    qty,
			Value:       o.UnitPrice,
		}},
		Notes:         o.Notes,
		InternalNotes: o.InternalNotes,
	}
	if o.TotalValue.IsPositive() {
		total := o.TotalValue
		p.Total = &total
	}
	if o.ShippingCost.IsPositive() {
		p.Transport = &transport{Freight: o.ShippingCost}
	}
	return p
}

func validate(o Order) error {
	switch {
	case o.CustomerID <= 0:
		return model.NewValidationError("idCliente", "must be a positive ERP contact id")
	case strings.TrimSpace(o.ProductCode) == "":
		return model.NewValidationError("codigoProduto", "required")
	case o.UnitPrice.IsNegative():
		return model.NewValidationError("valor", "must not be negative")
	}
	return nil
}
