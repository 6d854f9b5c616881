// Package token caches and refreshes the ERP's OAuth2 bearer token.
//
// A Store persists the token triple between restarts and across replicas.
// The Manager owns the in-process copy, decides when it is stale, and
// serializes refresh-token exchanges so a burst of callers triggers at most
// one exchange with the provider.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Store that holds no token.
	ErrNotFound = errors.New("token not found")

	// ErrNoRefreshToken means neither the cache, the store nor the
	// configuration can supply a refresh token. Operator action is required.
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// Token is an access/refresh token pair with its absolute expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ValidAt reports whether the access token is usable at t.
func (t *Token) ValidAt(at time.Time) bool {
	return t != nil && t.AccessToken != "" && at.Before(t.ExpiresAt)
}

// storedToken is the persisted form. expires_at is epoch seconds.
type storedToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// MarshalJSON encodes the token with epoch-second expiry.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(storedToken{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.ExpiresAt.Unix(),
	})
}

// UnmarshalJSON decodes the persisted form.
func (t *Token) UnmarshalJSON(data []byte) error {
	var s storedToken
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.AccessToken = s.AccessToken
	t.RefreshToken = s.RefreshToken
	t.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	return nil
}

// Store persists a single token triple.
type Store interface {
	// Load returns ErrNotFound when nothing has been saved yet.
	Load(ctx context.Context) (*Token, error)
	Save(ctx context.Context, tok *Token) error
}
