package mercadopago

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"order-bridge/internal/model"
)

// Payment statuses used by this service.
const (
	StatusApproved = "approved"
	StatusPending  = "pending"
	StatusRejected = "rejected"
)

// ShippingItemID marks the shipping line in preferences and payments.
const ShippingItemID = "frete"

// LineItem is one preference line.
type LineItem struct {
	ID         string       `json:"id,omitempty"`
	Title      string       `json:"title"`
	Quantity   int          `json:"quantity"`
	CurrencyID string       `json:"currency_id"`
	UnitPrice  model.Amount `json:"unit_price"`
}

// BackURLs are where the buyer lands after checkout.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Pending string `json:"pending,omitempty"`
	Failure string `json:"failure,omitempty"`
}

type preferenceRequest struct {
	Items             []LineItem     `json:"items"`
	BackURLs          BackURLs       `json:"back_urls"`
	AutoReturn        string         `json:"auto_return,omitempty"`
	NotificationURL   string         `json:"notification_url,omitempty"`
	ExternalReference string         `json:"external_reference,omitempty"`
	PaymentMethods    paymentMethods `json:"payment_methods"`
	StatementDesc     string         `json:"statement_descriptor,omitempty"`
}

type paymentMethods struct {
	Installments int        `json:"installments,omitempty"`
	Discounts    []discount `json:"discounts,omitempty"`
}

// discount is a checkout-level price rule, e.g. a percentage off for PIX.
type discount struct {
	Active bool         `json:"active"`
	Name   string       `json:"name"`
	Type   string       `json:"type"`
	Value  string       `json:"value"`
	Rules  discountRule `json:"payment_method_rules"`
}

type discountRule struct {
	PaymentMethods []methodRef `json:"payment_methods"`
}

type methodRef struct {
	ID string `json:"id"`
}

// pixDiscount builds the rule granting percent off when paying with PIX.
func pixDiscount(percent int) discount {
	return discount{
		Active: true,
		Name:   fmt.Sprintf("%d%% de desconto no PIX", percent),
		Type:   "percentage",
		Value:  strconv.Itoa(percent),
		Rules:  discountRule{PaymentMethods: []methodRef{{ID: "pix"}}},
	}
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Preference is a created checkout preference.
type Preference struct {
	ID          string `json:"preferenceId"`
	RedirectURL string `json:"redirectUrl"`
	SandboxURL  string `json:"-"`
}

// Payment is the subset of a Mercado Pago payment this service reads.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	TransactionAmount model.Amount   `json:"transaction_amount"`
	ExternalReference string         `json:"external_reference"`
	Payer             Payer          `json:"payer"`
	AdditionalInfo    AdditionalInfo `json:"additional_info"`
}

// Approved reports whether the payment is approved.
func (p *Payment) Approved() bool {
	return p.Status == StatusApproved
}

// PayerName returns the best available payer name.
func (p *Payment) PayerName() string {
	for _, n := range []string{
		strings.TrimSpace(p.AdditionalInfo.Payer.FirstName + " " + p.AdditionalInfo.Payer.LastName),
		strings.TrimSpace(p.Payer.FirstName + " " + p.Payer.LastName),
		p.Payer.Email,
	} {
		if n != "" {
			return n
		}
	}
	return "Cliente"
}

// Payer identifies the buyer.
type Payer struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Identification struct {
		Type   string `json:"type"`
		Number string `json:"number"`
	} `json:"identification"`
}

// AdditionalInfo echoes what the preference carried.
type AdditionalInfo struct {
	Items []PaymentItem `json:"items"`
	Payer struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"payer"`
}

// PaymentItem is a preference line as echoed back on the payment.
// Mercado Pago sends quantity and unit_price as strings here.
type PaymentItem struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Quantity  Quantity     `json:"quantity"`
	UnitPrice model.Amount `json:"unit_price"`
}

// Quantity decodes from a JSON number or numeric string.
type Quantity int

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*q = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*q = Quantity(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(q))
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}
