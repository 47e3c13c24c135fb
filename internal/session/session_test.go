package session

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pesaflow/internal/storage"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewManager(store)
}

// signedToken builds an HS256 token with the given expiry. The signing key
// is irrelevant: expiry checks never verify signatures.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "42",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// tokenWithoutExp builds a structurally valid token with no exp claim.
func tokenWithoutExp(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestIsExpiredMalformedTokens(t *testing.T) {
	m := testManager(t)

	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "not-a-jwt"},
		{"two segments", "aaaa.bbbb"},
		{"four segments", "a.b.c.d"},
		{"payload not base64", header + ".!!!.sig"},
		{"payload not json", header + "." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + ".sig"},
		{"no exp claim", tokenWithoutExp(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !m.IsExpired(tt.token) {
				t.Errorf("IsExpired(%q) = false, want true (fail closed)", tt.token)
			}
		})
	}
}

func TestIsExpiredSkewBuffer(t *testing.T) {
	m := testManager(t)
	now := time.Now()
	m.now = func() time.Time { return now }

	tests := []struct {
		name string
		exp  time.Time
		want bool
	}{
		{"long since expired", now.Add(-time.Hour), true},
		{"exactly now", now, true},
		{"inside skew buffer", now.Add(10 * time.Second), true},
		{"at skew boundary", now.Add(30 * time.Second), true},
		{"just past buffer", now.Add(31 * time.Second), false},
		{"comfortably live", now.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.IsExpired(signedToken(t, tt.exp)); got != tt.want {
				t.Errorf("IsExpired(exp=%v) = %v, want %v", tt.exp.Sub(now), got, tt.want)
			}
		})
	}
}

func TestSetTokenEmptyIsNoop(t *testing.T) {
	m := testManager(t)

	if err := m.SetToken("valid-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := m.SetToken(""); err != nil {
		t.Fatalf("set empty token: %v", err)
	}
	tok, err := m.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "valid-token" {
		t.Errorf("token = %q, want previous value kept", tok)
	}
}

func TestIsAuthenticated(t *testing.T) {
	m := testManager(t)

	ok, err := m.IsAuthenticated()
	if err != nil {
		t.Fatalf("is authenticated: %v", err)
	}
	if ok {
		t.Error("authenticated with no token")
	}

	if err := m.SetToken(signedToken(t, time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	ok, err = m.IsAuthenticated()
	if err != nil {
		t.Fatalf("is authenticated: %v", err)
	}
	if !ok {
		t.Error("not authenticated with live token")
	}
}

func TestIsAuthenticatedClearsExpiredToken(t *testing.T) {
	m := testManager(t)

	if err := m.SetToken(signedToken(t, time.Now().Add(-time.Hour))); err != nil {
		t.Fatalf("set token: %v", err)
	}
	ok, err := m.IsAuthenticated()
	if err != nil {
		t.Fatalf("is authenticated: %v", err)
	}
	if ok {
		t.Error("authenticated with expired token")
	}

	tok, err := m.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "" {
		t.Errorf("token = %q, want erased after expiry detection", tok)
	}
}

func TestClearTokenIdempotent(t *testing.T) {
	m := testManager(t)

	if err := m.ClearToken(); err != nil {
		t.Errorf("clear with no token: %v", err)
	}
	if err := m.SetToken("tok"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	if err := m.ClearToken(); err != nil {
		t.Fatalf("clear token: %v", err)
	}
	if err := m.ClearToken(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}
