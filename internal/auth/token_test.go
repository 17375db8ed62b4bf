package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"catty/api/internal/rbac"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewClaims("user-1", "ana@example.com", false, time.Hour, time.Now()))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Email != "ana@example.com" || claims.Role() != rbac.RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !strings.HasPrefix(claims.JTI, "at_") {
		t.Fatalf("unexpected jti %q", claims.JTI)
	}
}

func TestAdminClaimsCarryAdminRole(t *testing.T) {
	claims := NewClaims("user-2", "root@example.com", true, time.Minute, time.Now())
	if claims.Role() != rbac.RoleAdmin {
		t.Fatalf("Role() = %q, want admin", claims.Role())
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, NewClaims("user-1", "ana@example.com", false, time.Hour, time.Now().Add(-2*time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	_, err = ParseToken(secret, issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("ParseToken() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	issued, err := IssueToken([]byte("secret"), NewClaims("user-1", "ana@example.com", false, time.Hour, time.Now()))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseToken([]byte("other"), issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: error = %v, want ErrInvalidToken", err)
	}
	if _, err := ParseToken([]byte("secret"), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("malformed: error = %v, want ErrInvalidToken", err)
	}
}
