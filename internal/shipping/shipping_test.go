package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-bridge/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCarrier records the last request and returns canned options.
type fakeCarrier struct {
	options []Option
	err     error
	calls   int
	last    Request
}

func (f *fakeCarrier) Calculate(_ context.Context, req Request) ([]Option, error) {
	f.calls++
	f.last = req
	return f.options, f.err
}

func validRequest() Request {
	return Request{
		OriginZip:     "51021-150",
		DestZip:       "01310-100",
		WeightKg:      0.166,
		Dimensions:    Dimensions{LengthCm: 20, HeightCm: 1, WidthCm: 10},
		DeclaredValue: model.NewAmount(88),
	}
}

func TestNormalizeCEP(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"51021-150", "51021150", true},
		{" 01310 100 ", "01310100", true},
		{"01310100", "01310100", true},
		{"1234-567", "1234567", false},
		{"abc", "", false},
		{"", "", false},
		{"123456789", "123456789", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCEP(tt.in)
		if got != tt.want || ok != tt.valid {
			t.Errorf("NormalizeCEP(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.valid)
		}
	}
}

func TestQuote_Live(t *testing.T) {
	carrier := &fakeCarrier{options: []Option{
		{Carrier: "Correios SEDEX", Price: model.NewAmount(41.20), EtaDays: 2},
		{Carrier: "Correios PAC", Price: model.NewAmount(19.90), EtaDays: 6},
		{Carrier: "Broken", Price: model.Amount{}, EtaDays: 1},
	}}
	var observed []Kind
	q := NewQuoter(carrier, testLogger(), func(k Kind) { observed = append(observed, k) })

	res := q.Quote(context.Background(), validRequest())

	if res.Kind != KindLive {
		t.Fatalf("Kind = %s, want live", res.Kind)
	}
	if len(res.Options) != 2 {
		t.Fatalf("Options = %d, want 2 (zero price dropped)", len(res.Options))
	}
	if res.Best().Carrier != "Correios PAC" {
		t.Errorf("Best() = %s, want cheapest", res.Best().Carrier)
	}
	if carrier.last.OriginZip != "51021150" || carrier.last.DestZip != "01310100" {
		t.Errorf("postal codes not normalized: %+v", carrier.last)
	}
	if carrier.last.Dimensions.HeightCm != MinHeightCm || carrier.last.WeightKg != MinWeightKg {
		t.Errorf("minimums not applied: %+v", carrier.last)
	}
	if carrier.last.Dimensions.LengthCm != 20 {
		t.Errorf("length above minimum changed: %v", carrier.last.Dimensions.LengthCm)
	}
	if len(observed) != 1 || observed[0] != KindLive {
		t.Errorf("observed = %v, want [live]", observed)
	}
}

func TestQuote_FallbackNeverFails(t *testing.T) {
	tests := []struct {
		name    string
		carrier Carrier
		req     func() Request
		calls   int
	}{
		{"carrier error", &fakeCarrier{err: errors.New("connection refused")}, validRequest, 1},
		{"no options", &fakeCarrier{}, validRequest, 1},
		{"only unusable options", &fakeCarrier{options: []Option{{Carrier: "x"}}}, validRequest, 1},
		{"no carrier configured", nil, validRequest, 0},
		{"invalid destination", &fakeCarrier{}, func() Request {
			r := validRequest()
			r.DestZip = "123"
			return r
		}, 0},
		{"invalid origin", &fakeCarrier{}, func() Request {
			r := validRequest()
			r.OriginZip = ""
			return r
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuoter(tt.carrier, testLogger(), nil)
			res := q.Quote(context.Background(), tt.req())

			if res.Kind != KindFallback {
				t.Fatalf("Kind = %s, want fallback", res.Kind)
			}
			if len(res.Options) != 1 {
				t.Fatalf("Options = %d, want 1", len(res.Options))
			}
			best := res.Best()
			if best.Price.String() != "25.50" || best.EtaDays != 5 || best.Carrier != "Frete Padrão" {
				t.Errorf("fallback = %+v", best)
			}
			if fc, ok := tt.carrier.(*fakeCarrier); ok && fc.calls != tt.calls {
				t.Errorf("carrier calls = %d, want %d", fc.calls, tt.calls)
			}
		})
	}
}

func TestResultHeader(t *testing.T) {
	live := Result{Kind: KindLive, Options: []Option{{}, {}, {}}}
	h, err := live.Header()
	if err != nil {
		t.Fatalf("Header() error: %v", err)
	}
	if h != "source=live, options=3" {
		t.Errorf("Header() = %q", h)
	}

	kind, err := ParseHeader(h)
	if err != nil || kind != KindLive {
		t.Errorf("ParseHeader(%q) = %q, %v", h, kind, err)
	}

	fb, _ := Result{Kind: KindFallback, Options: []Option{Fallback}}.Header()
	if kind, _ := ParseHeader(fb); kind != KindFallback {
		t.Errorf("ParseHeader(%q) = %q, want fallback", fb, kind)
	}
}

func TestMelhorEnvio_Calculate(t *testing.T) {
	var got calculateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != pathCalculate {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer me-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("User-Agent") != "loja (ops@example.com)" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"id":1,"name":"PAC","price":"22.61","custom_price":"22.61","delivery_time":7,"company":{"name":"Correios"}},
			{"id":2,"name":"SEDEX","price":"48.30","delivery_time":2,"company":{"name":"Correios"}},
			{"id":3,"name":".Package","error":"Transportadora não atende este trecho.","company":{"name":"Jadlog"}},
			{"id":4,"name":"Express","price":"n/a","company":{"name":"Other"}}
		]`)
	}))
	defer srv.Close()

	c := NewMelhorEnvio(&http.Client{Timeout: time.Second}, srv.URL, "me-token", "loja (ops@example.com)")
	opts, err := c.Calculate(context.Background(), Request{
		OriginZip:     "51021150",
		DestZip:       "01310100",
		WeightKg:      0.5,
		Dimensions:    Dimensions{LengthCm: 20, HeightCm: 15, WidthCm: 10},
		DeclaredValue: model.NewAmount(99),
	})
	if err != nil {
		t.Fatalf("Calculate error: %v", err)
	}

	if got.From.PostalCode != "51021150" || got.To.PostalCode != "01310100" {
		t.Errorf("postal codes = %+v -> %+v", got.From, got.To)
	}
	if got.Package.Weight != 0.5 || got.Package.Length != 20 {
		t.Errorf("package = %+v", got.Package)
	}
	if got.Options.InsuranceValue.String() != "99.00" {
		t.Errorf("insurance_value = %s", got.Options.InsuranceValue)
	}

	if len(opts) != 2 {
		t.Fatalf("options = %d, want 2 (error and unparseable dropped)", len(opts))
	}
	if opts[0].Carrier != "Correios PAC" || opts[0].Price.String() != "22.61" || opts[0].EtaDays != 7 {
		t.Errorf("opts[0] = %+v", opts[0])
	}
}

func TestMelhorEnvio_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Unauthenticated."}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"bad json", http.StatusOK, `{"not":"an array"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := NewMelhorEnvio(srv.Client(), srv.URL, "t", "")
			if _, err := c.Calculate(context.Background(), validRequest()); err == nil {
				t.Fatal("expected error")
			}

			// The quoter turns every carrier error into the fallback.
			res := NewQuoter(c, testLogger(), nil).Quote(context.Background(), validRequest())
			if res.Kind != KindFallback {
				t.Errorf("Kind = %s, want fallback", res.Kind)
			}
		})
	}
}
