package auth

import (
	"testing"
	"time"

	"github.com/erazemk/oprema/internal/model"
)

var testUser = &model.User{
	ID:          "0b6f7c1e-5a8e-4d8b-9c55-2f1f0a3e9b11",
	Username:    "admin",
	DisplayName: "Administrator",
	Email:       "admin@example.com",
	Role:        model.RoleAdmin,
}

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, testUser)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != testUser.ID {
		t.Errorf("expected user_id %q, got %q", testUser.ID, claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("expected username 'admin', got %q", claims.Username)
	}
	if claims.Role != model.RoleAdmin {
		t.Errorf("expected role 'admin', got %q", claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}

	id := claims.Identity()
	if id.UID != testUser.ID || id.DisplayName != "Administrator" || id.Email != "admin@example.com" {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestNilClaimsIdentity(t *testing.T) {
	var claims *Claims
	if claims.Identity().Authenticated() {
		t.Error("nil claims must not be authenticated")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", testUser)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestTokenExpiry(t *testing.T) {
	// Just verify the expiry is set correctly.
	secret := "test"
	token, _ := GenerateToken(secret, testUser)
	claims, _ := ValidateToken(secret, token)

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := time.Now().Add(TokenExpiry)

	// Should be within a few seconds.
	diff := expectedExpiry.Sub(expiresAt)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
