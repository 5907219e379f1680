package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-must-be-32-chars!"

func TestNewJWTService_ValidConfig(t *testing.T) {
	service, err := NewJWTService(JWTConfig{
		Secret:        testSecret,
		Issuer:        "test-issuer",
		TokenDuration: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if service == nil {
		t.Fatal("Expected service to be non-nil")
	}
	if service.TokenDuration() != 15*time.Minute {
		t.Errorf("TokenDuration = %v, want 15m", service.TokenDuration())
	}
}

func TestNewJWTService_ShortSecret(t *testing.T) {
	for _, secret := range []string{"", "short"} {
		_, err := NewJWTService(JWTConfig{Secret: secret})
		if !errors.Is(err, ErrInvalidSecretLength) {
			t.Errorf("secret %q: err = %v, want ErrInvalidSecretLength", secret, err)
		}
	}
}

func TestNewJWTService_Defaults(t *testing.T) {
	service, err := NewJWTService(JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if service.TokenDuration() != 24*time.Hour {
		t.Errorf("default TokenDuration = %v, want 24h", service.TokenDuration())
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{
		Secret:        testSecret,
		Issuer:        "test-issuer",
		TokenDuration: 15 * time.Minute,
	})

	token, err := service.GenerateToken("asset-admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token.AccessToken == "" {
		t.Error("Expected non-empty access token")
	}
	if token.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", token.TokenType)
	}
	if token.ExpiresIn != int64(15*time.Minute/time.Second) {
		t.Errorf("ExpiresIn = %d, want %d", token.ExpiresIn, int64(15*time.Minute/time.Second))
	}

	claims, err := service.ValidateToken(token.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "asset-admin" {
		t.Errorf("Subject = %q, want asset-admin", claims.Subject)
	}
	if claims.Issuer != "test-issuer" {
		t.Errorf("Issuer = %q, want test-issuer", claims.Issuer)
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: testSecret})

	_, err := service.ValidateToken("not-a-token")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: testSecret})
	other, _ := NewJWTService(JWTConfig{Secret: "another-secret-key-of-32-chars!!!"})

	token, err := other.GenerateToken("subject")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := service.ValidateToken(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateToken_Expired(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: testSecret})

	// Sign an already-expired token with the same secret.
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "filemount",
			Subject:   "subject",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := service.ValidateToken(signed); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired token: err = %v, want ErrExpiredToken", err)
	}
}

func TestValidateToken_WrongAlgorithm(t *testing.T) {
	service, _ := NewJWTService(JWTConfig{Secret: testSecret})

	// An unsigned token must be rejected by the method check.
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to create unsigned token: %v", err)
	}

	if _, err := service.ValidateToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unsigned token: err = %v, want ErrInvalidToken", err)
	}
}
