package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"order-bridge/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), Config{
		BaseURL:         srv.URL,
		AccessToken:     "APP_USR-test",
		NotificationURL: "https://bridge.example/mercadopago/webhook",
		BackURLs: BackURLs{
			Success: "https://loja.example/obrigado",
			Pending: "https://loja.example/pendente",
			Failure: "https://loja.example/falha",
		},
	})
	c.newKey = func() string { return "idem-key-1" }
	return c
}

func TestCreatePreference(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != pathPreferences {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer APP_USR-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Idempotency-Key") != "idem-key-1" {
			t.Errorf("X-Idempotency-Key = %q", r.Header.Get("X-Idempotency-Key"))
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"123-abc","init_point":"https://mp.example/init?pref=123-abc","sandbox_init_point":"https://sandbox.mp.example/init"}`)
	})

	pref, err := c.CreatePreference(context.Background(), []LineItem{
		{ID: "+V1", Title: "Kit 1 Unidade Mais Vigor", Quantity: 1, UnitPrice: model.NewAmount(89)},
		{ID: ShippingItemID, Title: "Frete", UnitPrice: model.NewAmount(25.5)},
	}, "ref-1")
	if err != nil {
		t.Fatalf("CreatePreference error: %v", err)
	}

	if pref.ID != "123-abc" || pref.RedirectURL != "https://mp.example/init?pref=123-abc" {
		t.Errorf("preference = %+v", pref)
	}

	items := got["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	first := items[0].(map[string]any)
	if first["unit_price"] != 89.0 || first["currency_id"] != "BRL" || first["quantity"] != 1.0 {
		t.Errorf("first item = %v", first)
	}
	second := items[1].(map[string]any)
	if second["id"] != "frete" || second["quantity"] != 1.0 || second["unit_price"] != 25.5 {
		t.Errorf("shipping item = %v", second)
	}
	if got["auto_return"] != "approved" {
		t.Errorf("auto_return = %v", got["auto_return"])
	}
	if got["notification_url"] != "https://bridge.example/mercadopago/webhook" {
		t.Errorf("notification_url = %v", got["notification_url"])
	}
	if got["external_reference"] != "ref-1" {
		t.Errorf("external_reference = %v", got["external_reference"])
	}
	pm := got["payment_methods"].(map[string]any)
	if pm["installments"] != 10.0 {
		t.Errorf("installments = %v", pm["installments"])
	}
	if _, ok := pm["discounts"]; ok {
		t.Errorf("discounts = %v, want none", pm["discounts"])
	}
}

func TestCreatePreference_PixDiscount(t *testing.T) {
	var got struct {
		PaymentMethods paymentMethods `json:"payment_methods"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"p1","init_point":"https://mp.example/init?pref=p1"}`)
	})
	c.cfg.PixDiscountPercent = 10

	_, err := c.CreatePreference(context.Background(), []LineItem{
		{ID: "+TQ1", Title: "Kit Tônico", UnitPrice: model.NewAmount(88)},
	}, "ref-2")
	if err != nil {
		t.Fatalf("CreatePreference error: %v", err)
	}

	want := pixDiscount(10)
	if len(got.PaymentMethods.Discounts) != 1 {
		t.Fatalf("discounts = %+v, want one", got.PaymentMethods.Discounts)
	}
	d := got.PaymentMethods.Discounts[0]
	if d.Name != "10% de desconto no PIX" || d.Type != "percentage" || d.Value != "10" || !d.Active {
		t.Errorf("discount = %+v, want %+v", d, want)
	}
	if len(d.Rules.PaymentMethods) != 1 || d.Rules.PaymentMethods[0].ID != "pix" {
		t.Errorf("rules = %+v", d.Rules)
	}
}

func TestCreatePreference_Errors(t *testing.T) {
	t.Run("no items", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := c.CreatePreference(context.Background(), nil, "")
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("err = %v, want ErrInvalidRequest", err)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"invalid unit_price","error":"bad_request","status":400}`)
		})
		_, err := c.CreatePreference(context.Background(), []LineItem{{Title: "x", UnitPrice: model.NewAmount(1)}}, "")

		var upstream *model.UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("err = %v, want UpstreamError", err)
		}
		if upstream.StatusCode != http.StatusBadRequest {
			t.Errorf("StatusCode = %d", upstream.StatusCode)
		}
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("APIError status = %d, want 500", apiErr.StatusCode)
		}
	})

	t.Run("missing init_point", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"id":"x"}`)
		})
		_, err := c.CreatePreference(context.Background(), []LineItem{{Title: "x", UnitPrice: model.NewAmount(1)}}, "")
		if !errors.Is(err, model.ErrUpstreamError) {
			t.Errorf("err = %v, want ErrUpstreamError", err)
		}
	})
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/555":
			io.WriteString(w, `{
				"id": 555,
				"status": "approved",
				"transaction_amount": 114.5,
				"external_reference": "ref-1",
				"payer": {"email": "ana@example.com", "first_name": null},
				"additional_info": {
					"items": [
						{"id": "+V1", "title": "Kit", "quantity": "1", "unit_price": "89.0"},
						{"id": "frete", "title": "Frete", "quantity": "1", "unit_price": "25.5"}
					],
					"payer": {"first_name": "Ana", "last_name": "Souza"}
				}
			}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Payment not found","error":"not_found","status":404}`)
		}
	})

	p, err := c.GetPayment(context.Background(), "555")
	if err != nil {
		t.Fatalf("GetPayment error: %v", err)
	}
	if p.ID != 555 || !p.Approved() {
		t.Errorf("payment = %+v", p)
	}
	if p.TransactionAmount.String() != "114.50" {
		t.Errorf("TransactionAmount = %s", p.TransactionAmount)
	}
	if len(p.AdditionalInfo.Items) != 2 || p.AdditionalInfo.Items[0].Quantity != 1 {
		t.Errorf("items = %+v", p.AdditionalInfo.Items)
	}
	if p.AdditionalInfo.Items[1].UnitPrice.String() != "25.50" {
		t.Errorf("shipping unit price = %s", p.AdditionalInfo.Items[1].UnitPrice)
	}
	if p.PayerName() != "Ana Souza" {
		t.Errorf("PayerName() = %q", p.PayerName())
	}

	_, err = c.GetPayment(context.Background(), "999")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("missing payment err = %v, want ErrNotFound", err)
	}

	_, err = c.GetPayment(context.Background(), " ")
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("blank id err = %v, want ErrInvalidRequest", err)
	}
}

func TestPayerNameFallbacks(t *testing.T) {
	p := &Payment{}
	if p.PayerName() != "Cliente" {
		t.Errorf("empty payer = %q", p.PayerName())
	}
	p.Payer.Email = "ana@example.com"
	if p.PayerName() != "ana@example.com" {
		t.Errorf("email fallback = %q", p.PayerName())
	}
}
