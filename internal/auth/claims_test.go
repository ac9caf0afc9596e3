package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-32b"

func TestGenerateAndParseAccessToken(t *testing.T) {
	op := Operator{Username: "alice", Role: RoleOperator}

	token, err := GenerateAccessToken(op, testSecret, 15*time.Minute, time.Now())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("Subject = %q, want alice", claims.Subject)
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	now := time.Now()
	token, err := GenerateAccessToken(Operator{Username: "alice", Role: RoleViewer}, testSecret, 0, now)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	diff := claims.ExpiresAt.Time.Sub(now.Add(defaultTokenTTL))
	if diff < -time.Second || diff > time.Second {
		t.Errorf("default TTL expiry off by %v", diff)
	}
}

func TestGenerateAccessToken_NoSecret(t *testing.T) {
	_, err := GenerateAccessToken(Operator{Username: "alice", Role: RoleViewer}, "", time.Minute, time.Now())
	if !errors.Is(err, ErrNoSecret) {
		t.Errorf("error = %v, want ErrNoSecret", err)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	valid, err := GenerateAccessToken(Operator{Username: "alice", Role: RoleAdmin}, testSecret, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	expired, err := GenerateAccessToken(Operator{Username: "alice", Role: RoleAdmin}, testSecret, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Role: "owner",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "another-service",
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Role: RoleAdmin,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	future, err := GenerateAccessToken(Operator{Username: "alice", Role: RoleAdmin}, testSecret, time.Hour, time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Role:             RoleAdmin,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"empty", "", testSecret},
		{"garbage", "not-a-valid-jwt", testSecret},
		{"malformed", "abc.def", testSecret},
		{"wrong secret", valid, "another-secret-another-secret-xx"},
		{"expired", expired, testSecret},
		{"unknown role", badRole, testSecret},
		{"no expiry", noExpiry, testSecret},
		{"foreign issuer", foreign, testSecret},
		{"issued in the future", future, testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.secret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_ClockSkew(t *testing.T) {
	op := Operator{Username: "alice", Role: RoleOperator}
	token, err := GenerateAccessToken(op, testSecret, time.Minute, time.Now().Add(10*time.Second))
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() within skew error = %v", err)
	}
	if claims.Issuer != TokenIssuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, TokenIssuer)
	}
}
