package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceWithExpiration(t, 15*time.Minute)
}

func newTestServiceWithExpiration(t *testing.T, expiration time.Duration) *Service {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return NewTestService(privateKey, "test-issuer", expiration)
}

func accountClaims(id string) Claims {
	return Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}}
}

// ============================================================================
// Claims Tests
// ============================================================================

func TestClaims_AccountID_ReturnsSubject(t *testing.T) {
	t.Parallel()
	claims := accountClaims("account:123")

	if got := claims.AccountID(); got != "account:123" {
		t.Errorf("expected account:123, got %q", got)
	}
}

func TestClaims_IsAdmin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		role     string
		expected bool
	}{
		{"admin", true},
		{"moderator", false},
		{"user", false},
		{"", false},
	}
	for _, tt := range tests {
		claims := Claims{Role: tt.role}
		if got := claims.IsAdmin(); got != tt.expected {
			t.Errorf("IsAdmin() with role %q = %v, want %v", tt.role, got, tt.expected)
		}
	}
}

// ============================================================================
// Sign Tests
// ============================================================================

func TestSign_ValidClaims_ReturnsToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	token, err := svc.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3 token segments, got %d", len(parts))
	}
}

func TestSign_NilPrivateKey_ReturnsErrInvalidKey(t *testing.T) {
	t.Parallel()
	svc := &Service{issuer: "test", expiration: time.Minute, now: time.Now}

	_, err := svc.Sign(accountClaims("account:123"))
	if err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSign_SetsRegisteredClaims(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	before := time.Now().Add(-time.Second)

	token, err := svc.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if claims.Issuer != "test-issuer" {
		t.Errorf("expected issuer test-issuer, got %q", claims.Issuer)
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Before(before) {
		t.Errorf("expected issued-at to be set to now, got %v", claims.IssuedAt)
	}
	if claims.ID == "" {
		t.Error("expected a token id")
	}
	wantExpiry := claims.IssuedAt.Add(15 * time.Minute)
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expected expiry %v, got %v", wantExpiry, claims.ExpiresAt)
	}
}

func TestSign_PreservesCustomExpiration(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	custom := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	claims := accountClaims("account:123")
	claims.ExpiresAt = jwt.NewNumericDate(custom)
	token, err := svc.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parsed, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !parsed.ExpiresAt.Equal(custom) {
		t.Errorf("expected expiry %v, got %v", custom, parsed.ExpiresAt)
	}
}

func TestSignAndValidate_PreservesCustomClaims(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	claims := accountClaims("account:abc")
	claims.DisplayName = "Wren"
	claims.Role = "admin"
	token, err := svc.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parsed, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if parsed.AccountID() != "account:abc" {
		t.Errorf("expected account:abc, got %q", parsed.AccountID())
	}
	if parsed.DisplayName != "Wren" {
		t.Errorf("expected display name Wren, got %q", parsed.DisplayName)
	}
	if !parsed.IsAdmin() {
		t.Error("expected admin role to survive a round trip")
	}
}

// ============================================================================
// Validate Tests
// ============================================================================

func TestValidate_NilPublicKey_ReturnsErrInvalidKey(t *testing.T) {
	t.Parallel()
	svc := &Service{issuer: "test", now: time.Now}

	_, err := svc.Validate("a.b.c")
	if err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestValidate_Malformed_ReturnsErrInvalidToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", "not.a.token"} {
		if _, err := svc.Validate(token); err != ErrInvalidToken {
			t.Errorf("Validate(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestValidate_DifferentKey_ReturnsErrInvalidSignature(t *testing.T) {
	t.Parallel()
	signer := newTestService(t)
	verifier := newTestService(t)

	token, err := signer.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := verifier.Validate(token); err != ErrInvalidSignature {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestValidate_TamperedClaims_ReturnsErrInvalidSignature(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	token, err := svc.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other, err := svc.Sign(accountClaims("account:admin"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	if _, err := svc.Validate(tampered); err != ErrInvalidSignature {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestValidate_ExpiredToken_ReturnsErrTokenExpired(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	claims := accountClaims("account:123")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	token, err := svc.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := svc.Validate(token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidate_TokenNotYetValid_ReturnsErrTokenNotYetValid(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	claims := accountClaims("account:123")
	claims.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))

	token, err := svc.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := svc.Validate(token); err != ErrTokenNotYetValid {
		t.Errorf("expected ErrTokenNotYetValid, got %v", err)
	}
}

func TestValidate_WrongIssuer_ReturnsErrInvalidToken(t *testing.T) {
	t.Parallel()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer := NewTestService(privateKey, "someone-else", time.Minute)
	verifier := NewTestService(privateKey, "test-issuer", time.Minute)

	token, err := signer.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := verifier.Validate(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_MissingSubject_ReturnsErrInvalidToken(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	token, err := svc.Sign(Claims{})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := svc.Validate(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)
	claims := accountClaims("account:123")
	claims.Issuer = "test-issuer"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := svc.Validate(token); err == nil {
		t.Error("expected HS256 token to be rejected")
	}
}

func TestGetExpiration_ReturnsConfiguredDuration(t *testing.T) {
	t.Parallel()
	svc := newTestServiceWithExpiration(t, 42*time.Minute)

	if svc.GetExpiration() != 42*time.Minute {
		t.Errorf("expected 42m, got %v", svc.GetExpiration())
	}
}

// ============================================================================
// Key Loading Tests
// ============================================================================

func writeKeyPair(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	privatePath := filepath.Join(dir, "private.pem")
	publicPath := filepath.Join(dir, "public.pem")
	if err := GenerateKeyPair(privatePath, publicPath); err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return privatePath, publicPath
}

func TestGenerateKeyPair_KeysSignAndValidate(t *testing.T) {
	t.Parallel()
	privatePath, publicPath := writeKeyPair(t)

	signer, err := NewService(Config{PrivateKeyPath: privatePath, Issuer: "iss", ExpirationMins: 5})
	if err != nil {
		t.Fatalf("NewService(private): %v", err)
	}
	verifier, err := NewService(Config{PublicKeyPath: publicPath, Issuer: "iss", ExpirationMins: 5})
	if err != nil {
		t.Fatalf("NewService(public): %v", err)
	}

	token, err := signer.Sign(accountClaims("account:123"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := verifier.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.AccountID() != "account:123" {
		t.Errorf("expected account:123, got %q", claims.AccountID())
	}
}

func TestGenerateKeyPair_InvalidPath_ReturnsError(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	err := GenerateKeyPair(filepath.Join(dir, "missing", "private.pem"), filepath.Join(dir, "public.pem"))
	if err == nil {
		t.Error("expected error for unwritable private key path")
	}
}

func TestNewService_NoKeys_CannotSignOrValidate(t *testing.T) {
	t.Parallel()
	svc, err := NewService(Config{Issuer: "iss", ExpirationMins: 5})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.Sign(accountClaims("account:1")); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey from Sign, got %v", err)
	}
	if _, err := svc.Validate("a.b.c"); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey from Validate, got %v", err)
	}
}

func TestNewService_PrivateKeyNotFound_ReturnsError(t *testing.T) {
	t.Parallel()
	_, err := NewService(Config{PrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	if err == nil {
		t.Error("expected error for missing private key")
	}
}

func TestNewService_PublicKeyNotFound_ReturnsError(t *testing.T) {
	t.Parallel()
	_, err := NewService(Config{PublicKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	if err == nil {
		t.Error("expected error for missing public key")
	}
}

func TestNewService_PrivateKeyCoversMissingPublicKey(t *testing.T) {
	t.Parallel()
	privatePath, _ := writeKeyPair(t)

	svc, err := NewService(Config{
		PrivateKeyPath: privatePath,
		PublicKeyPath:  filepath.Join(t.TempDir(), "nope.pem"),
		Issuer:         "iss",
		ExpirationMins: 5,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	token, err := svc.Sign(accountClaims("account:1"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := svc.Validate(token); err != nil {
		t.Errorf("expected token to validate with derived public key, got %v", err)
	}
}

func TestNewService_InvalidPEM_ReturnsErrInvalidKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "garbage.pem")
	if err := os.WriteFile(path, []byte("not a pem file"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, cfg := range []Config{{PrivateKeyPath: path}, {PublicKeyPath: path}} {
		_, err := NewService(cfg)
		if err == nil || !strings.Contains(err.Error(), ErrInvalidKey.Error()) {
			t.Errorf("NewService(%+v): expected invalid key error, got %v", cfg, err)
		}
	}
}
