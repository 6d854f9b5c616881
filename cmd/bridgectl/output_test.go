package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-bridge/internal/handler"
	"order-bridge/internal/shipping"
	"order-bridge/internal/webhook"
)

func TestFormatBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{25.5, "R$ 25,50"},
		{199.9, "R$ 199,90"},
		{1234.56, "R$ 1.234,56"},
		{1000000, "R$ 1.000.000,00"},
		{-3.2, "-R$ 3,20"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBRL(tt.in), "formatBRL(%v)", tt.in)
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "NOT_FOUND: product not found",
		errorMessage([]byte(`{"error":{"code":"NOT_FOUND","message":"product not found"}}`)))
	assert.Equal(t, "Cupom inválido",
		errorMessage([]byte(`{"success":false,"message":"Cupom inválido"}`)))
	assert.Equal(t, "bad gateway", errorMessage([]byte("bad gateway\n")))
}

func useServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	prevURL, prevQuiet := serverURL, quiet
	serverURL, quiet = srv.URL, true
	t.Cleanup(func() { serverURL, quiet = prevURL, prevQuiet })
}

func TestDoJSON(t *testing.T) {
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/consultar-frete", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"sku":"+TQ1","cep":"01310100"}`, string(body))

		w.Header().Set(shipping.HeaderName, "source=live, options=1")
		w.Write([]byte(`[{"nome":"PAC","valor":21.4,"prazo":6}]`))
	})

	var options []quoteOption
	resp, err := doJSON(http.MethodPost, "/api/consultar-frete", nil,
		map[string]string{"sku": "+TQ1", "cep": "01310100"}, &options)
	require.NoError(t, err)
	assert.Equal(t, []quoteOption{{Name: "PAC", Price: 21.4, Days: 6}}, options)

	kind, err := shipping.ParseHeader(resp.Header.Get(shipping.HeaderName))
	require.NoError(t, err)
	assert.Equal(t, shipping.KindLive, kind)
}

func TestDoJSONSendsHeaders(t *testing.T) {
	sig := webhook.Sign("whsec", "123", "1700000000")
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3cret", r.Header.Get(handler.AdminSecretHeader))
		assert.Equal(t, sig, r.Header.Get(webhook.SignatureHeader))
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok":true}`))
	})

	h := http.Header{}
	h.Set(handler.AdminSecretHeader, "s3cret")
	h.Set(webhook.SignatureHeader, sig)
	_, err := doJSON(http.MethodPost, "/admin/refresh-bling-token", h, nil, nil)
	require.NoError(t, err)
}

func TestDoJSONError(t *testing.T) {
	useServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"invalid admin secret"}}`))
	})

	var out map[string]any
	_, err := doJSON(http.MethodPost, "/admin/refresh-bling-token", nil, nil, &out)
	assert.EqualError(t, err, "HTTP 401: UNAUTHORIZED: invalid admin secret")
	assert.Nil(t, out)
}
