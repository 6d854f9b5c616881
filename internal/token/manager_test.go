package token

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-bridge/internal/model"
)

// tokenServer fakes the provider's token endpoint and counts exchanges.
type tokenServer struct {
	*httptest.Server
	calls     atomic.Int32
	delay     time.Duration
	status    int
	omitRT    bool
	expiresIn int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK, expiresIn: 21600}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		if ts.delay > 0 {
			time.Sleep(ts.delay)
		}

		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
			http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
			return
		}
		if ts.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(ts.status)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}

		resp := map[string]any{
			"access_token": "access-" + string(rune('0'+n)),
			"token_type":   "Bearer",
		}
		if !ts.omitRT {
			resp["refresh_token"] = "refresh-" + string(rune('0'+n))
		}
		if ts.expiresIn > 0 {
			resp["expires_in"] = ts.expiresIn
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(ts *tokenServer, store Store, fallback string) *Manager {
	return NewManager(Config{
		ClientID:             "client-id",
		ClientSecret:         "client-secret",
		TokenURL:             ts.URL,
		FallbackRefreshToken: fallback,
	}, store, testLogger())
}

func TestManager_ReturnsCachedTokenWhileFresh(t *testing.T) {
	ts := newTokenServer(t)
	store := NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &Token{
		AccessToken:  "stored",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	m := newTestManager(ts, store, "")

	for range 3 {
		tok, err := m.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "stored", tok)
	}
	assert.Equal(t, int32(0), ts.calls.Load(), "fresh token must not be refreshed")
}

func TestManager_NeverReturnsExpiredToken(t *testing.T) {
	ts := newTokenServer(t)
	store := NewMemoryStore()
	m := newTestManager(ts, store, "")

	base := time.Now()
	require.NoError(t, m.Seed(context.Background(), Token{
		AccessToken:  "old",
		RefreshToken: "r0",
		ExpiresAt:    base.Add(10 * time.Minute),
	}))

	t.Run("inside margin refreshes", func(t *testing.T) {
		m.now = func() time.Time { return base.Add(10*time.Minute - 30*time.Second) }
		tok, err := m.Token(context.Background())
		require.NoError(t, err)
		assert.NotEqual(t, "old", tok)
		assert.Equal(t, int32(1), ts.calls.Load())
	})

	t.Run("after expiry refreshes", func(t *testing.T) {
		m.now = func() time.Time { return base.Add(24 * time.Hour) }
		tok, err := m.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), ts.calls.Load())
		assert.True(t, m.Current().ExpiresAt.After(time.Now()), "returned token %q must be valid", tok)
	})
}

func TestManager_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay = 50 * time.Millisecond
	m := newTestManager(ts, NewMemoryStore(), "seed-refresh")

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), ts.calls.Load(), "exactly one exchange per concurrent batch")
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, tokens[0], tokens[i])
	}
}

func TestManager_RefreshPersistsAndRotates(t *testing.T) {
	ts := newTokenServer(t)
	store := NewMemoryStore()
	m := newTestManager(ts, store, "seed-refresh")

	tok, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(6*time.Hour), tok.ExpiresAt, time.Minute)

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestManager_RefreshKeepsRefreshTokenAndDefaultsLifetime(t *testing.T) {
	ts := newTokenServer(t)
	ts.omitRT = true
	ts.expiresIn = 0
	m := newTestManager(ts, NewMemoryStore(), "seed-refresh")

	tok, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "seed-refresh", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), tok.ExpiresAt, time.Minute)
}

func TestManager_NoRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, NewMemoryStore(), "")

	_, err := m.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Equal(t, int32(0), ts.calls.Load())
}

func TestManager_ProviderRejection(t *testing.T) {
	ts := newTokenServer(t)
	ts.status = http.StatusBadRequest

	var outcomes []string
	m := NewManager(Config{
		ClientID:             "client-id",
		ClientSecret:         "client-secret",
		TokenURL:             ts.URL,
		FallbackRefreshToken: "revoked",
		OnRefresh:            func(o string) { outcomes = append(outcomes, o) },
	}, NewMemoryStore(), testLogger())

	_, err := m.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrUpstreamError)

	var upstream *model.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "invalid_grant")
	assert.Equal(t, []string{OutcomeRejected}, outcomes)
	assert.Equal(t, int32(1), ts.calls.Load(), "rejections are not retried")
}

func TestManager_ForceRefresh(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, NewMemoryStore(), "")
	require.NoError(t, m.Seed(context.Background(), Token{
		AccessToken:  "revoked-by-provider",
		RefreshToken: "r0",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	fresh, err := m.ForceRefresh(context.Background(), "revoked-by-provider")
	require.NoError(t, err)
	assert.Equal(t, "access-1", fresh)

	// A second caller holding the same stale token gets the replacement.
	again, err := m.ForceRefresh(context.Background(), "revoked-by-provider")
	require.NoError(t, err)
	assert.Equal(t, "access-1", again)
	assert.Equal(t, int32(1), ts.calls.Load())
}

func TestManager_SeedValidation(t *testing.T) {
	m := newTestManager(newTokenServer(t), NewMemoryStore(), "")

	err := m.Seed(context.Background(), Token{RefreshToken: "r"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	require.NoError(t, m.Seed(context.Background(), Token{AccessToken: "a", RefreshToken: "r"}))
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), m.Current().ExpiresAt, time.Minute)
}

func TestManager_RunRefreshesAheadOfExpiry(t *testing.T) {
	ts := newTokenServer(t)
	m := newTestManager(ts, NewMemoryStore(), "")
	require.NoError(t, m.Seed(context.Background(), Token{
		AccessToken:  "soon",
		RefreshToken: "r0",
		ExpiresAt:    time.Now().Add(30 * time.Millisecond),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 20*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return ts.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.NotEqual(t, "soon", m.Current().AccessToken)
}
