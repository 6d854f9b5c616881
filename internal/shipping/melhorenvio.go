package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"order-bridge/internal/model"
)

const (
	// MelhorEnvioBaseURL is the production API host.
	MelhorEnvioBaseURL = "https://melhorenvio.com.br"

	pathCalculate = "/api/v2/me/shipment/calculate"
)

// MelhorEnvio quotes through the Melhor Envio freight calculator.
type MelhorEnvio struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

// NewMelhorEnvio creates a carrier client. Melhor Envio rejects requests
// without a User-Agent naming the integrating application.
func NewMelhorEnvio(httpClient *http.Client, baseURL, token, userAgent string) *MelhorEnvio {
	if baseURL == "" {
		baseURL = MelhorEnvioBaseURL
	}
	if userAgent == "" {
		userAgent = "order-bridge"
	}
	return &MelhorEnvio{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
	}
}

type calculateRequest struct {
	From    postalCode  `json:"from"`
	To      postalCode  `json:"to"`
	Package packageSpec `json:"package"`
	Options calcOptions `json:"options"`
}

type postalCode struct {
	PostalCode string `json:"postal_code"`
}

type packageSpec struct {
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Weight float64 `json:"weight"`
}

type calcOptions struct {
	InsuranceValue model.Amount `json:"insurance_value"`
	Receipt        bool         `json:"receipt"`
	OwnHand        bool         `json:"own_hand"`
}

// calculateOption is one service in the calculator response. Unavailable
// services carry an error message instead of a price.
type calculateOption struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Price        json.RawMessage `json:"price"`
	CustomPrice  json.RawMessage `json:"custom_price"`
	DeliveryTime int             `json:"delivery_time"`
	Error        string          `json:"error"`
	Company      struct {
		Name string `json:"name"`
	} `json:"company"`
}

// Calculate implements Carrier.
func (c *MelhorEnvio) Calculate(ctx context.Context, req Request) ([]Option, error) {
	body, err := json.Marshal(calculateRequest{
		From: postalCode{req.OriginZip},
		To:   postalCode{req.DestZip},
		Package: packageSpec{
			Height: req.Dimensions.HeightCm,
			Width:  req.Dimensions.WidthCm,
			Length: req.Dimensions.LengthCm,
			Weight: req.WeightKg,
		},
		Options: calcOptions{InsuranceValue: req.DeclaredValue},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathCalculate, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, model.NewUpstreamError("Melhor Envio", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading quote response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, model.NewUpstreamRejection("Melhor Envio", resp.StatusCode, respBody)
	}

	var raw []calculateOption
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("parsing quote response: %w", err)
	}

	options := make([]Option, 0, len(raw))
	for _, r := range raw {
		if r.Error != "" {
			continue
		}
		price, ok := parsePrice(r.CustomPrice)
		if !ok {
			price, ok = parsePrice(r.Price)
		}
		if !ok {
			continue
		}
		options = append(options, Option{
			Carrier: strings.TrimSpace(r.Company.Name + " " + r.Name),
			Price:   price,
			EtaDays: r.DeliveryTime,
		})
	}
	return options, nil
}

func parsePrice(raw json.RawMessage) (model.Amount, bool) {
	if len(raw) == 0 {
		return model.Amount{}, false
	}
	var a model.Amount
	if err := a.UnmarshalJSON(raw); err != nil || !a.IsPositive() {
		return model.Amount{}, false
	}
	return a, true
}

var _ Carrier = (*MelhorEnvio)(nil)
