// Package session manages the client's bearer-token lifecycle. Expiry is
// decoded locally from the token for UX only; the backend re-validates every
// call, so no signature verification happens here.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pesaflow/internal/storage"
)

// skew is subtracted from the token expiry so a token about to lapse is
// treated as already expired rather than failing mid-request.
const skew = 30 * time.Second

// Manager reads and writes the access token through the durable store.
type Manager struct {
	store *storage.Store
	now   func() time.Time
}

func NewManager(store *storage.Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Token returns the stored access token, or "" when logged out.
func (m *Manager) Token() (string, error) {
	return m.store.Get(storage.TokenKey)
}

// SetToken persists a new access token. Empty input is ignored so a valid
// stored token is never clobbered by a bad response.
func (m *Manager) SetToken(token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Set(storage.TokenKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// ClearToken erases the stored token. Clearing an absent token is a no-op.
func (m *Manager) ClearToken() error {
	if err := m.store.Delete(storage.TokenKey); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// IsExpired decodes the token's claims without verifying the signature and
// compares the exp claim against the clock with a 30s buffer. Tokens that
// cannot be decoded, or that carry no exp claim, count as expired.
func (m *Manager) IsExpired(token string) bool {
	if token == "" {
		return true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !m.now().Before(exp.Add(-skew))
}

// IsAuthenticated reports whether a live session exists. A token found
// expired is erased before returning false.
func (m *Manager) IsAuthenticated() (bool, error) {
	token, err := m.Token()
	if err != nil {
		return false, err
	}
	if token == "" {
		return false, nil
	}
	if m.IsExpired(token) {
		if err := m.ClearToken(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
