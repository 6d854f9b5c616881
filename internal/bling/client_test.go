package bling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"order-bridge/internal/mercadopago"
	"order-bridge/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTokens hands out "t0" and rotates to "t1", "t2"... on ForceRefresh.
type fakeTokens struct {
	current string
	forced  int
	err     error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.current, nil
}

func (f *fakeTokens) ForceRefresh(_ context.Context, stale string) (string, error) {
	f.forced++
	if f.current == stale {
		f.current = "t" + string(rune('0'+f.forced))
	}
	return f.current, nil
}

// blingServer accepts only the tokens in valid and records payloads.
func blingServer(t *testing.T, valid map[string]bool) (*httptest.Server, *atomic.Int32, *orderPayload) {
	t.Helper()
	var calls atomic.Int32
	var last orderPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != pathOrders {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		tok := r.Header.Get("Authorization")
		if len(tok) < 7 || !valid[tok[7:]] {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"type":"invalid_token","message":"invalid_token"}}`)
			return
		}
		json.NewDecoder(r.Body).Decode(&last)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":9876543210,"numero":42,"alertas":[]}}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &last
}

func sampleOrder() Order {
	return Order{
		CustomerID:    17000000001,
		ProductCode:   "+V1",
		Quantity:      1,
		UnitPrice:     model.NewAmount(89),
		TotalValue:    model.NewAmount(114.5),
		ShippingCost:  model.NewAmount(25.5),
		StoreNumber:   "555",
		Notes:         "nota",
		InternalNotes: "MP Payment ID: 555",
	}
}

func TestSubmitOrder(t *testing.T) {
	srv, calls, last := blingServer(t, map[string]bool{"t0": true})
	tokens := &fakeTokens{current: "t0"}
	c := NewClient(srv.Client(), srv.URL, tokens, testLogger())
	c.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }

	res, err := c.SubmitOrder(context.Background(), sampleOrder())
	if err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if res.ID != 9876543210 || res.Number != 42 {
		t.Errorf("result = %+v", res)
	}
	if calls.Load() != 1 || tokens.forced != 0 {
		t.Errorf("calls = %d, forced = %d", calls.Load(), tokens.forced)
	}

	if last.Date != "2025-03-10" || last.ExpectedDate != "2025-03-17" {
		t.Errorf("dates = %s / %s", last.Date, last.ExpectedDate)
	}
	if last.Contact.ID != 17000000001 || last.StoreNumber != "555" {
		t.Errorf("contact/store = %+v / %s", last.Contact, last.StoreNumber)
	}
	if len(last.Items) != 1 || last.Items[0].Code != "+V1" || last.Items[0].Value.String() != "89.00" {
		t.Errorf("items = %+v", last.Items)
	}
	if last.Transport == nil || last.Transport.Freight.String() != "25.50" {
		t.Errorf("transport = %+v", last.Transport)
	}
	if last.InternalNotes != "MP Payment ID: 555" {
		t.Errorf("internal notes = %q", last.InternalNotes)
	}
	if last.Total == nil || last.Total.String() != "114.50" {
		t.Errorf("total = %v, want 114.50", last.Total)
	}
}

func TestSubmitOrder_OmitsZeroTotal(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"data":{"id":1}}`)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), srv.URL, &fakeTokens{current: "t0"}, testLogger())

	o := sampleOrder()
	o.TotalValue = model.Amount{}
	if _, err := c.SubmitOrder(context.Background(), o); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if _, ok := raw["total"]; ok {
		t.Errorf("total = %v, want omitted", raw["total"])
	}
}

func TestSubmitOrder_RetriesOnceAfterRefresh(t *testing.T) {
	srv, calls, _ := blingServer(t, map[string]bool{"t1": true})
	tokens := &fakeTokens{current: "t0"}
	c := NewClient(srv.Client(), srv.URL, tokens, testLogger())

	if _, err := c.SubmitOrder(context.Background(), sampleOrder()); err != nil {
		t.Fatalf("SubmitOrder error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if tokens.forced != 1 {
		t.Errorf("forced refreshes = %d, want 1", tokens.forced)
	}
}

func TestSubmitOrder_SecondRejectionIsAuthExpired(t *testing.T) {
	srv, calls, _ := blingServer(t, map[string]bool{})
	tokens := &fakeTokens{current: "t0"}
	c := NewClient(srv.Client(), srv.URL, tokens, testLogger())

	_, err := c.SubmitOrder(context.Background(), sampleOrder())
	if !errors.Is(err, model.ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusUnauthorized {
		t.Errorf("upstream = %+v", upstream)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want exactly 2", calls.Load())
	}
}

func TestSubmitOrder_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"type":"VALIDATION_ERROR","message":"Não foi possível salvar a venda","description":"contato inválido"}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, &fakeTokens{current: "t0"}, testLogger())
	_, err := c.SubmitOrder(context.Background(), sampleOrder())

	var upstream *model.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("err = %v, want UpstreamError", err)
	}
	if upstream.StatusCode != http.StatusBadRequest || upstream.Service != "Bling" {
		t.Errorf("upstream = %+v", upstream)
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	c := NewClient(http.DefaultClient, "http://unused", &fakeTokens{current: "t0"}, testLogger())

	tests := []struct {
		name   string
		mutate func(*Order)
	}{
		{"no customer", func(o *Order) { o.CustomerID = 0 }},
		{"no product", func(o *Order) { o.ProductCode = " " }},
		{"negative price", func(o *Order) { o.UnitPrice = model.NewAmount(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := sampleOrder()
			tt.mutate(&o)
			if _, err := c.SubmitOrder(context.Background(), o); !errors.Is(err, model.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestSubmitOrder_TokenUnavailable(t *testing.T) {
	c := NewClient(http.DefaultClient, "http://unused", &fakeTokens{err: errors.New("no refresh token available")}, testLogger())
	if _, err := c.SubmitOrder(context.Background(), sampleOrder()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOrderFromPayment(t *testing.T) {
	p := &mercadopago.Payment{
		ID:                555,
		Status:            mercadopago.StatusApproved,
		TransactionAmount: model.NewAmount(114.5),
		AdditionalInfo: mercadopago.AdditionalInfo{Items: []mercadopago.PaymentItem{
			{ID: "frete", Title: "Frete", Quantity: 1, UnitPrice: model.NewAmount(25.5)},
			{ID: "+V1", Title: "Kit 1", Quantity: 1, UnitPrice: model.NewAmount(89)},
		}},
	}
	p.AdditionalInfo.Payer.FirstName = "Ana"

	o := OrderFromPayment(p, Defaults{CustomerID: 7, ProductCode: "default-sku"})

	if o.ProductCode != "+V1" || o.Quantity != 1 {
		t.Errorf("product = %s x%d", o.ProductCode, o.Quantity)
	}
	if o.UnitPrice.String() != "89.00" || o.ShippingCost.String() != "25.50" || o.TotalValue.String() != "114.50" {
		t.Errorf("amounts = %s / %s / %s", o.UnitPrice, o.ShippingCost, o.TotalValue)
	}
	if o.CustomerID != 7 || o.StoreNumber != "555" {
		t.Errorf("customer/store = %d / %s", o.CustomerID, o.StoreNumber)
	}
	if o.InternalNotes != "MP Payment ID: 555" {
		t.Errorf("InternalNotes = %q", o.InternalNotes)
	}
	if o.Notes != "Pedido referente ao pagamento #555 do Mercado Pago. Comprador: Ana." {
		t.Errorf("Notes = %q", o.Notes)
	}
}

func TestOrderFromPayment_NoItems(t *testing.T) {
	p := &mercadopago.Payment{ID: 556, TransactionAmount: model.NewAmount(99)}

	o := OrderFromPayment(p, Defaults{CustomerID: 7, ProductCode: "default-sku"})

	if o.ProductCode != "default-sku" || o.Quantity != 1 {
		t.Errorf("product = %s x%d", o.ProductCode, o.Quantity)
	}
	if o.UnitPrice.String() != "99.00" || o.ShippingCost.String() != "0.00" {
		t.Errorf("amounts = %s / %s", o.UnitPrice, o.ShippingCost)
	}
}
