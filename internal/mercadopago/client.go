// Package mercadopago is a minimal Mercado Pago REST client: checkout
// preferences and payment lookup.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"order-bridge/internal/model"
)

const (
	// BaseURL is the production API host.
	BaseURL = "https://api.mercadopago.com"

	pathPreferences = "/checkout/preferences"
	pathPayments    = "/v1/payments/"

	serviceName = "Mercado Pago"
	currencyBRL = "BRL"
)

// Config holds account credentials and the fixed checkout settings.
type Config struct {
	BaseURL         string
	AccessToken     string
	BackURLs        BackURLs
	NotificationURL string
	Installments    int

	// PixDiscountPercent, when positive, discounts PIX payments.
	PixDiscountPercent int
}

// Client talks to the Mercado Pago API with a fixed access token.
type Client struct {
	httpClient *http.Client
	cfg        Config
	newKey     func() string
}

// NewClient creates a client. httpClient must carry a timeout.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Installments <= 0 {
		cfg.Installments = 10
	}
	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		newKey:     uuid.NewString,
	}
}

// CreatePreference creates a checkout preference for items and returns its id
// and the buyer redirect URL. It is not retried.
func (c *Client) CreatePreference(ctx context.Context, items []LineItem, externalRef string) (*Preference, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("items", "at least one line item is required")
	}
	for i := range items {
		if items[i].CurrencyID == "" {
			items[i].CurrencyID = currencyBRL
		}
		if items[i].Quantity <= 0 {
			items[i].Quantity = 1
		}
	}

	body := preferenceRequest{
		Items:             items,
		BackURLs:          c.cfg.BackURLs,
		NotificationURL:   c.cfg.NotificationURL,
		ExternalReference: externalRef,
		PaymentMethods:    paymentMethods{Installments: c.cfg.Installments},
	}
	if c.cfg.PixDiscountPercent > 0 {
		body.PaymentMethods.Discounts = []discount{pixDiscount(c.cfg.PixDiscountPercent)}
	}
	// auto_return requires a success URL.
	if c.cfg.BackURLs.Success != "" {
		body.AutoReturn = StatusApproved
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathPreferences, body)
	if err != nil {
		return nil, fmt.Errorf("creating preference request: %w", err)
	}
	req.Header.Set("X-Idempotency-Key", c.newKey())

	var resp preferenceResponse
	if err := c.do(req, &resp); err != nil {
		return nil, fmt.Errorf("creating preference: %w", err)
	}
	if resp.ID == "" || resp.InitPoint == "" {
		return nil, model.NewUpstreamError(serviceName, fmt.Errorf("preference response missing id or init_point"))
	}

	return &Preference{
		ID:          resp.ID,
		RedirectURL: resp.InitPoint,
		SandboxURL:  resp.SandboxInitPoint,
	}, nil
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.NewValidationError("payment id", "required")
	}

	req, err := c.newRequest(ctx, http.MethodGet, pathPayments+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("creating payment request: %w", err)
	}

	var p Payment
	if err := c.do(req, &p); err != nil {
		return nil, fmt.Errorf("fetching payment %s: %w", id, err)
	}
	return &p, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	return req, nil
}

// do executes the request and decodes a 2xx JSON body into result.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return c.parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// parseError maps Mercado Pago error responses. Only a missing payment has a
// caller-facing meaning; everything else is an upstream rejection.
func (c *Client) parseError(statusCode int, body []byte) error {
	if statusCode == http.StatusNotFound {
		var e errorResponse
		json.Unmarshal(body, &e) // best effort
		if e.Error == "not_found" || e.Message != "" {
			return model.NewNotFoundError("payment")
		}
	}
	return model.NewUpstreamRejection(serviceName, statusCode, body)
}
