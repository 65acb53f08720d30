package jwt

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var issued = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newManager(at time.Time) *TokenManager {
	tm := NewTokenManager("test-secret", 24, 168)
	tm.SetClock(func() time.Time { return at })
	return tm
}

func TestNewTokenManager(t *testing.T) {
	tm := NewTokenManager("test-secret", 24, 168)
	if string(tm.secret) != "test-secret" {
		t.Errorf("Expected secret test-secret, got %s", string(tm.secret))
	}
	if tm.expireDur != 24*time.Hour {
		t.Errorf("Expected expireDur 24h, got %v", tm.expireDur)
	}
	if tm.refreshDur != 168*time.Hour {
		t.Errorf("Expected refreshDur 168h, got %v", tm.refreshDur)
	}
}

func TestGenerateAndParse(t *testing.T) {
	tm := newManager(issued)

	token, err := tm.GenerateToken("user123")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.UserID != "user123" {
		t.Errorf("Expected UserID user123, got %s", claims.UserID)
	}
	if claims.Subject != "user123" || claims.Issuer != Issuer {
		t.Errorf("Unexpected registered claims: %+v", claims.RegisteredClaims)
	}
	if !claims.ExpiresAt.Time.Equal(issued.Add(24 * time.Hour)) {
		t.Errorf("Expected expiry %v, got %v", issued.Add(24*time.Hour), claims.ExpiresAt.Time)
	}

	if _, err := tm.GenerateToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for empty user, got %v", err)
	}
}

func TestParseToken_Errors(t *testing.T) {
	token, err := newManager(issued).GenerateToken("user123")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "user123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
		},
	})
	foreignToken, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	tests := []struct {
		name  string
		tm    *TokenManager
		token string
		want  error
	}{
		{"garbage", newManager(issued), "not.a.token", ErrInvalidToken},
		{"wrong secret", &TokenManager{secret: []byte("other"), now: func() time.Time { return issued }}, token, ErrInvalidToken},
		{"expired", newManager(issued.Add(25 * time.Hour)), token, ErrExpiredToken},
		{"not yet valid", newManager(issued.Add(-time.Hour)), token, ErrTokenNotYetValid},
		{"wrong issuer", newManager(issued), foreignToken, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tm.ParseToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		UserID:           "user123",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	if _, err := newManager(issued).ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	tm := NewTokenManager("test-secret", 24, 2)
	tm.SetClock(func() time.Time { return issued })
	token, err := tm.GenerateToken("user123")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"fresh token is not refreshable", issued.Add(time.Hour), ErrNotRefreshable},
		{"close to expiry", issued.Add(23 * time.Hour), nil},
		{"recently expired", issued.Add(25 * time.Hour), nil},
		{"expired beyond window", issued.Add(27 * time.Hour), ErrNotRefreshable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm.SetClock(func() time.Time { return tt.at })
			refreshed, err := tm.RefreshToken(token)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
			if tt.want != nil {
				return
			}
			claims, err := tm.ParseToken(refreshed)
			if err != nil {
				t.Fatalf("ParseToken on refreshed token failed: %v", err)
			}
			if !claims.ExpiresAt.Time.Equal(tt.at.Add(24 * time.Hour)) {
				t.Errorf("Expected new expiry %v, got %v", tt.at.Add(24*time.Hour), claims.ExpiresAt.Time)
			}
		})
	}

	if _, err := tm.RefreshToken("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}
