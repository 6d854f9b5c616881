package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"order-bridge/internal/model"
)

const (
	// DefaultMargin is how long before expiry a token counts as stale.
	DefaultMargin = 60 * time.Second

	// DefaultLifetime applies when the provider omits expires_in.
	DefaultLifetime = time.Hour
)

// Refresh outcomes reported to Config.OnRefresh.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Config describes the provider's token endpoint and refresh policy.
type Config struct {
	Service      string // used in error messages, e.g. "Bling"
	ClientID     string
	ClientSecret string
	TokenURL     string

	// FallbackRefreshToken is used when neither the cache nor the store
	// holds a refresh token, e.g. on first boot.
	FallbackRefreshToken string

	Margin     time.Duration
	HTTPClient *http.Client

	// OnRefresh is called once per exchange with one of the Outcome values.
	OnRefresh func(outcome string)
}

// Manager hands out valid access tokens, refreshing them when stale.
// Safe for concurrent use.
type Manager struct {
	oauth      *oauth2.Config
	service    string
	fallback   string
	margin     time.Duration
	httpClient *http.Client
	onRefresh  func(string)
	store      Store
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current *Token

	group singleflight.Group
}

// NewManager creates a Manager backed by store.
func NewManager(cfg Config, store Store, logger *slog.Logger) *Manager {
	if cfg.Service == "" {
		cfg.Service = "Bling"
	}
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultMargin
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.OnRefresh == nil {
		cfg.OnRefresh = func(string) {}
	}

	return &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		service:    cfg.Service,
		fallback:   cfg.FallbackRefreshToken,
		margin:     cfg.Margin,
		httpClient: cfg.HTTPClient,
		onRefresh:  cfg.OnRefresh,
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns an access token that is valid for at least the safety margin.
// It never returns an expired token: when no valid token can be obtained the
// error explains why.
func (m *Manager) Token(ctx context.Context) (string, error) {
	if cur := m.Current(); m.fresh(cur) {
		return cur.AccessToken, nil
	}

	// Another replica may have refreshed already.
	stored, err := m.store.Load(ctx)
	switch {
	case err == nil:
		m.adopt(stored)
		if m.fresh(stored) {
			return stored.AccessToken, nil
		}
	case errors.Is(err, ErrNotFound):
	default:
		m.logger.Warn("token store load failed", slog.String("error", err.Error()))
	}

	tok, err := m.shared(ctx, func(cur *Token) bool { return m.fresh(cur) })
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Refresh exchanges the refresh token unconditionally.
func (m *Manager) Refresh(ctx context.Context) (*Token, error) {
	return m.shared(ctx, func(*Token) bool { return false })
}

// ForceRefresh is called after the provider rejected stale. If a concurrent
// caller already replaced stale, the replacement is returned without another
// exchange.
func (m *Manager) ForceRefresh(ctx context.Context, stale string) (string, error) {
	tok, err := m.shared(ctx, func(cur *Token) bool {
		return m.fresh(cur) && cur.AccessToken != stale
	})
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Seed installs an externally obtained token, persisting it first.
func (m *Manager) Seed(ctx context.Context, tok Token) error {
	if tok.AccessToken == "" {
		return fmt.Errorf("seeding token: %w", model.NewValidationError("accessToken", "required"))
	}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = m.now().Add(DefaultLifetime)
	}
	if err := m.store.Save(ctx, &tok); err != nil {
		return fmt.Errorf("seeding token: %w", err)
	}
	m.set(&tok)
	m.logger.Info("token seeded", slog.Time("expires_at", tok.ExpiresAt))
	return nil
}

// Current returns a copy of the in-memory token, or nil.
func (m *Manager) Current() *Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Run refreshes the token in the background whenever it would expire within
// two intervals. It returns when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			horizon := 2 * interval
			_, err := m.shared(ctx, func(cur *Token) bool {
				return cur.ValidAt(m.now().Add(horizon))
			})
			if err != nil {
				m.logger.Error("background token refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// shared runs at most one exchange at a time. Callers that arrive while an
// exchange is in flight receive its result. reuse is evaluated inside the
// flight against the latest token; returning true skips the exchange.
func (m *Manager) shared(ctx context.Context, reuse func(*Token) bool) (*Token, error) {
	// The flight outlives any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		if cur := m.Current(); cur != nil && reuse(cur) {
			return cur, nil
		}
		return m.exchange(flightCtx)
	})
	if err != nil {
		return nil, err
	}
	tok := *(v.(*Token))
	return &tok, nil
}

// exchange performs the refresh_token grant against the provider.
func (m *Manager) exchange(ctx context.Context) (*Token, error) {
	refresh := m.refreshToken(ctx)
	if refresh == "" {
		m.onRefresh(OutcomeError)
		return nil, ErrNoRefreshToken
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	issued, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			m.onRefresh(OutcomeRejected)
			m.logger.Error("token refresh rejected",
				slog.String("service", m.service),
				slog.Int("status", re.Response.StatusCode),
			)
			return nil, model.NewUpstreamRejection(m.service, re.Response.StatusCode, re.Body)
		}
		m.onRefresh(OutcomeError)
		return nil, model.NewUpstreamError(m.service, err)
	}

	tok := &Token{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		ExpiresAt:    issued.Expiry,
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refresh
	}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = m.now().Add(DefaultLifetime)
	}

	// A failed save is not fatal: the token is still good for this process.
	if err := m.store.Save(ctx, tok); err != nil {
		m.logger.Warn("token store save failed", slog.String("error", err.Error()))
	}
	m.set(tok)
	m.onRefresh(OutcomeSuccess)
	m.logger.Info("token refreshed",
		slog.String("service", m.service),
		slog.Time("expires_at", tok.ExpiresAt),
	)
	return tok, nil
}

// refreshToken picks the refresh token: cache, then store, then configuration.
func (m *Manager) refreshToken(ctx context.Context) string {
	if cur := m.Current(); cur != nil && cur.RefreshToken != "" {
		return cur.RefreshToken
	}
	if stored, err := m.store.Load(ctx); err == nil && stored.RefreshToken != "" {
		return stored.RefreshToken
	}
	return m.fallback
}

func (m *Manager) fresh(tok *Token) bool {
	return tok.ValidAt(m.now().Add(m.margin))
}

func (m *Manager) set(tok *Token) {
	cp := *tok
	m.mu.Lock()
	m.current = &cp
	m.mu.Unlock()
}

// adopt takes a stored token unless the cache already holds a later one.
func (m *Manager) adopt(tok *Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || tok.ExpiresAt.After(m.current.ExpiresAt) {
		cp := *tok
		m.current = &cp
	}
}
